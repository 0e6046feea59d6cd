// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufpool

import (
	"sync"
	"testing"

	"code.hybscloud.com/iox"
)

func TestAcquireReleaseAccounting(t *testing.T) {
	p := New(1024, 4)

	b, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if b.Pos() != 0 || b.Limit() != b.Cap() {
		t.Fatalf("unexpected cursors after acquire: pos=%d limit=%d cap=%d", b.Pos(), b.Limit(), b.Cap())
	}
	if _, referenced := p.Stats(); referenced != 1 {
		t.Fatalf("referenced = %d, want 1", referenced)
	}

	p.Release(b)
	cached, referenced := p.Stats()
	if referenced != 0 {
		t.Fatalf("referenced = %d, want 0", referenced)
	}
	if cached != 1 {
		t.Fatalf("cached = %d, want 1", cached)
	}
}

func TestAcquireReusesReleasedBlock(t *testing.T) {
	p := New(64, 4)
	b1, _ := p.Acquire()
	raw1 := b1.Raw()
	p.Release(b1)

	b2, _ := p.Acquire()
	if &b2.Raw()[0] != &raw1[0] {
		t.Fatalf("expected LIFO reuse of released block's backing array")
	}
}

func TestCapRefusesAcquireBeyondCap(t *testing.T) {
	p := New(64, 1)
	b1, _ := p.Acquire()
	b2, err := p.Acquire()
	if err != iox.ErrWouldBlock || b2 != nil {
		t.Fatalf("second Acquire at cap 1: block=%v err=%v, want nil, iox.ErrWouldBlock", b2, err)
	}
	p.Release(b1)
	p.Release(b2)
	cached, referenced := p.Stats()
	if cached != 1 {
		t.Fatalf("cached = %d, want 1 (capped)", cached)
	}
	if referenced != 0 {
		t.Fatalf("referenced = %d, want 0", referenced)
	}
}

func TestCloseDropsCacheAndFailsAcquire(t *testing.T) {
	p := New(64, 4)
	b, _ := p.Acquire()
	p.Release(b)
	p.Close()

	if cached, _ := p.Stats(); cached != 0 {
		t.Fatalf("cached after close = %d, want 0", cached)
	}
	if _, err := p.Acquire(); err != ErrClosed {
		t.Fatalf("Acquire after close: err = %v, want ErrClosed", err)
	}
}

func TestReleaseAfterCloseIsNoop(t *testing.T) {
	p := New(64, 4)
	b, _ := p.Acquire()
	p.Close()
	p.Release(b) // must not panic or resurrect the cache
	if cached, _ := p.Stats(); cached != 0 {
		t.Fatalf("cached after release-post-close = %d, want 0", cached)
	}
}

func TestConcurrentAcquireRelease(t *testing.T) {
	p := New(256, 64)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b, err := p.Acquire()
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				b.Append([]byte("x"))
				p.Release(b)
			}
		}()
	}
	wg.Wait()
	if _, referenced := p.Stats(); referenced != 0 {
		t.Fatalf("referenced after drain = %d, want 0", referenced)
	}
}

func TestSizeBucketing(t *testing.T) {
	p := New(64, 8)
	small, _ := p.AcquireSized(16)
	big, _ := p.AcquireSized(512)
	if small.Cap() != 16 || big.Cap() != 512 {
		t.Fatalf("unexpected capacities: %d, %d", small.Cap(), big.Cap())
	}
	p.Release(small)
	p.Release(big)

	// Re-acquiring the same sizes should reuse the bucketed blocks.
	small2, _ := p.AcquireSized(16)
	if small2.Cap() != 16 {
		t.Fatalf("expected bucketed reuse at size 16, got cap %d", small2.Cap())
	}
}
