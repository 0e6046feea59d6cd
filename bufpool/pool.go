// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bufpool

import (
	"errors"
	"sync"

	"code.hybscloud.com/iox"
)

// ErrClosed is returned by Acquire once the pool has been closed.
var ErrClosed = errors.New("bufpool: pool closed")

// Pool supplies and recycles fixed-size direct byte blocks. It is safe for
// concurrent use from arbitrary goroutines. A single mutex guards the free
// list, matching the spec's contention-optimized hot-path requirement: the
// critical section only ever touches slice bookkeeping, never I/O.
//
// Blocks are bucketed by requested size so the same pool can serve both the
// fixed-size direct buffers used for socket I/O (DefaultSize) and the
// variably-sized blocks a growing output-stream chain asks for.
//
// cap is the pool's high-water mark: the total number of blocks in play
// (cached idle plus referenced outstanding) never exceeds it. A cached block
// can always be handed out by moving it from the free list to "referenced"
// without growing the total, but once the pool is at cap with no cached
// block available, AcquireSized speaks the same iox.ErrWouldBlock
// control-flow sentinel as the wire framer rather than allocating past the
// cap — this is the connection-level back-pressure of spec.md §4.4
// ("refusing to acquire further blocks if the pool is exhausted").
type Pool struct {
	mu sync.Mutex

	defaultSize int
	cap         int // high-water mark on cached+referenced across all buckets
	free        map[int][]*Block
	cached      int
	referenced  int
	closed      bool
}

// New creates a pool whose default acquire size is defaultSize bytes and
// whose total outstanding-plus-cached block count never exceeds cap.
// cap <= 0 means unbounded.
func New(defaultSize, cap int) *Pool {
	if defaultSize <= 0 {
		defaultSize = 4096
	}
	return &Pool{
		defaultSize: defaultSize,
		cap:         cap,
		free:        make(map[int][]*Block),
	}
}

// DefaultSize returns the pool's default block size.
func (p *Pool) DefaultSize() int { return p.defaultSize }

// Acquire returns a block of the pool's default size, position=0,
// limit=capacity. It fails with ErrClosed once the pool has been closed, and
// with iox.ErrWouldBlock at the pool's cap, exactly as AcquireSized does.
func (p *Pool) Acquire() (*Block, error) {
	return p.AcquireSized(p.defaultSize)
}

// AcquireSized returns a block with the requested capacity. Used by the
// scatter/gather output stream, whose block-growth policy produces sizes
// other than the pool's default.
//
// Once cached+referenced is at the pool's cap and no cached block of this
// size is available to reuse, AcquireSized returns iox.ErrWouldBlock instead
// of growing past the cap: the caller (typically a connection's receive
// loop) is expected to treat this exactly like a non-blocking socket read
// that would block — stop, wait for a release, and retry.
func (p *Pool) AcquireSized(size int) (*Block, error) {
	if size <= 0 {
		size = p.defaultSize
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	var b *Block
	if bucket := p.free[size]; len(bucket) > 0 {
		// LIFO: pop the most recently released block for cache-friendliness.
		last := len(bucket) - 1
		b = bucket[last]
		p.free[size] = bucket[:last]
		p.cached--
	} else if p.cap > 0 && p.cached+p.referenced >= p.cap {
		p.mu.Unlock()
		return nil, iox.ErrWouldBlock
	}
	p.referenced++
	p.mu.Unlock()

	if b == nil {
		b = &Block{buf: make([]byte, size), size: size, pool: p}
	}
	b.reset()
	return b, nil
}

// Release returns a block to the pool's free list, or discards it if the
// cache is at capacity or the pool has been closed. Safe to call more than
// once is NOT supported: a double release double-decrements referenced and
// is a programmer fault, matching the "mutability forbidden after enqueue,
// ownership is explicit handoff" invariant in spec.md §5.
func (p *Pool) Release(b *Block) {
	if b == nil {
		return
	}
	b.reset()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.referenced--
	if p.closed || (p.cap > 0 && p.cached >= p.cap) {
		return
	}
	p.free[b.size] = append(p.free[b.size], b)
	p.cached++
}

// Close drops all cached blocks. Subsequent Acquire calls fail with
// ErrClosed; Release after Close simply discards (already accounted for by
// the closed check above), matching spec.md §4.1.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.free = make(map[int][]*Block)
	p.cached = 0
}

// Stats reports the current cached and referenced counts for diagnostics
// (spec.md §6 observability: buffers.cached, buffers.referenced).
func (p *Pool) Stats() (cached, referenced int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached, p.referenced
}
