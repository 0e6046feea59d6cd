// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/terracore/message"
	"code.hybscloud.com/terracore/wire"
)

// TestSendFragmentsAcrossMultipleEnvelopes exercises a logical message whose
// opaque payload exceeds wire.MaxPayload, forcing Connection.Send's single
// wire.Write call to be split into multiple envelopes on the write side and
// reassembled on the read side (spec.md §4.3).
func TestSendFragmentsAcrossMultipleEnvelopes(t *testing.T) {
	mgr, c1, _, received := pairedConnections(t)
	defer mgr.Shutdown()

	payload := make([]byte, wire.MaxPayload*2+777)
	for i := range payload {
		payload[i] = byte(i)
	}
	msg := &message.Message{NVPairs: []message.NVPair{
		message.Str(1, "big"),
		message.BytesVal(2, payload),
	}}

	var wg sync.WaitGroup
	wg.Add(1)
	if err := c1.Send(msg, func(err error) {
		if err != nil {
			t.Errorf("send completion: %v", err)
		}
		wg.Done()
	}); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	select {
	case got := <-received:
		if len(got.NVPairs) != 2 {
			t.Fatalf("got %d pairs, want 2", len(got.NVPairs))
		}
		bv := got.NVPairs[1]
		if len(bv.Bytes) != len(payload) {
			t.Fatalf("payload length = %d, want %d", len(bv.Bytes), len(payload))
		}
		for i := range payload {
			if bv.Bytes[i] != payload[i] {
				t.Fatalf("payload mismatch at byte %d", i)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for fragmented message")
	}
}

// TestShutdownUnderLoadCompletesOutstandingWrites mirrors spec.md §8
// scenario 6: shutdown() while many writes are outstanding must still
// complete every write's callback, either with success or
// ErrConnectionClosed, within a bounded time.
func TestShutdownUnderLoadCompletesOutstandingWrites(t *testing.T) {
	mgr := New(nil)
	c1Conn, c2Conn := net.Pipe()

	var delivered atomic.Int64
	c1, err := mgr.registerConnection(c1Conn, SinkFunc(func(*message.Message) {}), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = mgr.registerConnection(c2Conn, SinkFunc(func(*message.Message) {
		delivered.Add(1)
	}), nil)
	if err != nil {
		t.Fatal(err)
	}

	const n = 1000
	var wg sync.WaitGroup
	wg.Add(n)
	var unexpected atomic.Int64
	for i := 0; i < n; i++ {
		msg := &message.Message{NVPairs: []message.NVPair{message.I32(1, int32(i))}}
		if err := c1.Send(msg, func(err error) {
			if err != nil && err != ErrConnectionClosed {
				unexpected.Add(1)
			}
			wg.Done()
		}); err != nil {
			if err != ErrConnectionClosed {
				unexpected.Add(1)
			}
			wg.Done()
		}
	}

	mgr.Shutdown()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("not every outstanding write completed within 500ms")
	}
	if unexpected.Load() != 0 {
		t.Fatalf("%d writes completed with an unexpected error", unexpected.Load())
	}
}
