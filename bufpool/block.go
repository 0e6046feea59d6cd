// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bufpool implements a direct-buffer pool: a bounded set of recycled,
// fixed-capacity byte blocks used for socket reads/writes and for the scatter/
// gather output stream's own block chain.
//
// A Block exposes Java-NIO-style position/limit/capacity cursors: position is
// the read/write cursor, limit bounds how far position may advance, capacity
// is the size of the backing array. Acquire returns a block ready for writing
// (position=0, limit=capacity); Flip switches it to read mode.
package bufpool

// Block is a contiguous, pool-owned byte region. A Block must never be
// mutated once it has been enqueued to a connection's write queue (spec
// invariant); callers that need to keep writing must acquire a new block.
type Block struct {
	buf   []byte
	pos   int
	limit int
	size  int // bucket size this block belongs to, for release bucketing
	pool  *Pool
}

// Cap returns the block's backing capacity.
func (b *Block) Cap() int { return cap(b.buf) }

// Pos returns the current cursor position.
func (b *Block) Pos() int { return b.pos }

// SetPos sets the cursor position. Panics if out of [0, limit].
func (b *Block) SetPos(pos int) {
	if pos < 0 || pos > b.limit {
		panic("bufpool: position out of range")
	}
	b.pos = pos
}

// Limit returns the current limit.
func (b *Block) Limit() int { return b.limit }

// SetLimit sets the limit. Panics if out of [0, capacity]. Clamps pos down
// if pos currently exceeds the new limit.
func (b *Block) SetLimit(limit int) {
	if limit < 0 || limit > cap(b.buf) {
		panic("bufpool: limit out of range")
	}
	b.limit = limit
	if b.pos > limit {
		b.pos = limit
	}
}

// Remaining returns limit - position.
func (b *Block) Remaining() int { return b.limit - b.pos }

// Bytes returns the slice between position and limit. The caller may read
// or write through it directly but must keep mutation rules (see Block)
// when the block has already been enqueued.
func (b *Block) Bytes() []byte { return b.buf[b.pos:b.limit] }

// Raw returns the full backing array regardless of cursors, for bulk copy
// helpers inside this module.
func (b *Block) Raw() []byte { return b.buf }

// Data returns the bytes written so far, buf[:pos]. Only meaningful before
// the block has been flipped to read mode (i.e. while a stream.Stream that
// owns it is still open): a Mark inspects or overwrites bytes in this
// region. After Flip, use Bytes instead.
func (b *Block) Data() []byte { return b.buf[:b.pos] }

// Release returns the block to its owning pool, if any.
func (b *Block) Release() {
	if b.pool != nil {
		b.pool.Release(b)
	}
}

// Append copies p into the block starting at position, advancing position.
// Returns the number of bytes copied, which may be less than len(p) if the
// block does not have enough remaining capacity.
func (b *Block) Append(p []byte) int {
	n := copy(b.buf[b.pos:b.limit], p)
	b.pos += n
	return n
}

// Flip switches the block from write mode to read mode: limit becomes the
// current position (the written extent) and position resets to zero.
func (b *Block) Flip() {
	b.limit = b.pos
	b.pos = 0
}

// reset restores a block to fresh write-mode cursors without touching the
// backing array; used by the pool when recycling a block.
func (b *Block) reset() {
	b.pos = 0
	b.limit = cap(b.buf)
}
