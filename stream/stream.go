// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stream implements the scatter/gather buffered output stream of
// spec.md §4.2: primitive and bulk writes accumulate across a growing chain
// of pool blocks, with Marks for O(1)-bounds-checked back-patching.
//
// Errors split the way spec.md §7 prescribes: boundary/state violations
// (negative lengths, writes past a mark's written extent, writes to a closed
// stream) are programmer faults and panic with a *Fault; pool exhaustion is
// a resource fault and is returned as an ordinary error from the write call
// that triggered it.
package stream

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"code.hybscloud.com/terracore/bufpool"
)

const (
	// DefaultInitialBlockSize is the first block a new Stream allocates.
	DefaultInitialBlockSize = 1024
	// DefaultMaxBlockSize caps the growth-by-doubling policy (spec.md §4.2, §9).
	DefaultMaxBlockSize = 512 * 1024
)

// Wire constants for the nullable-string encoding (spec.md §4.2). Exported
// because the message package's Decode must parse the same format a Stream
// produces.
const (
	StrNull    byte = 0
	StrNonNull byte = 1

	StrFramingUTF8  byte = 0
	StrFramingChars byte = 1
)

// Stream is a scatter/gather buffered output stream: an append-only (while
// open) chain of blocks borrowed from a bufpool.Pool.
type Stream struct {
	pool     *bufpool.Pool
	initial  int
	max      int
	nextSize int

	blocks  []*bufpool.Block
	written int64
	closed  bool
}

// New creates a Stream drawing blocks from pool. initialBlockSize and
// maxBlockSize default to DefaultInitialBlockSize/DefaultMaxBlockSize when
// <= 0.
func New(pool *bufpool.Pool, initialBlockSize, maxBlockSize int) *Stream {
	if initialBlockSize <= 0 {
		initialBlockSize = DefaultInitialBlockSize
	}
	if maxBlockSize <= 0 {
		maxBlockSize = DefaultMaxBlockSize
	}
	if initialBlockSize > maxBlockSize {
		initialBlockSize = maxBlockSize
	}
	return &Stream{
		pool:     pool,
		initial:  initialBlockSize,
		max:      maxBlockSize,
		nextSize: initialBlockSize,
	}
}

// Len returns the number of bytes written so far.
func (s *Stream) Len() int64 { return s.written }

func (s *Stream) cur() *bufpool.Block {
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

// newBlock allocates the next block in the chain sized by the growth
// policy: min(2×previous, max), capped on every step (spec.md §9's
// resolution of the adaptive-doubling open question), widened if the
// immediate write needs more than that.
func (s *Stream) newBlock(minSize int) error {
	size := s.nextSize
	if size > s.max {
		size = s.max
	}
	if size < minSize {
		size = minSize
	}
	blk, err := s.pool.AcquireSized(size)
	if err != nil {
		return err
	}
	s.blocks = append(s.blocks, blk)

	next := size * 2
	if next <= 0 || next > s.max {
		next = s.max
	}
	s.nextSize = next
	return nil
}

func (s *Stream) ensure(n int) error {
	if s.closed {
		fault("stream: write to closed stream")
	}
	if n < 0 {
		fault("stream: negative length")
	}
	if c := s.cur(); c != nil && c.Remaining() >= n {
		return nil
	}
	return s.newBlock(n)
}

func (s *Stream) append(p []byte) error {
	for len(p) > 0 {
		// Ask for no more than the growth policy's next block size, so a
		// large write fills successive blocks instead of one oversized one.
		need := len(p)
		if need > s.nextSize {
			need = s.nextSize
		}
		if err := s.ensure(need); err != nil {
			return err
		}
		c := s.cur()
		n := c.Append(p)
		p = p[n:]
		s.written += int64(n)
	}
	return nil
}

// Mark captures the current position before further writes.
func (s *Stream) Mark() Mark {
	if s.closed {
		fault("stream: mark on closed stream")
	}
	idx := len(s.blocks) - 1
	off := 0
	if idx >= 0 {
		off = s.blocks[idx].Pos()
	} else {
		idx = 0
	}
	return Mark{s: s, blockIndex: idx, blockOffset: off, absOffset: s.written}
}

// WriteByte appends a single byte.
func (s *Stream) WriteByte(v byte) error { return s.append([]byte{v}) }

// WriteBool appends a boolean as a single byte (1 = true, 0 = false).
func (s *Stream) WriteBool(v bool) error {
	if v {
		return s.WriteByte(1)
	}
	return s.WriteByte(0)
}

// WriteI16 appends a big-endian 16-bit signed integer.
func (s *Stream) WriteI16(v int16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	return s.append(buf[:])
}

// WriteI32 appends a big-endian 32-bit signed integer.
func (s *Stream) WriteI32(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return s.append(buf[:])
}

// WriteI64 appends a big-endian 64-bit signed integer.
func (s *Stream) WriteI64(v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return s.append(buf[:])
}

// WriteF32 appends a big-endian IEEE-754 32-bit float.
func (s *Stream) WriteF32(v float32) error {
	return s.WriteI32(int32(math.Float32bits(v)))
}

// WriteF64 appends a big-endian IEEE-754 64-bit float.
func (s *Stream) WriteF64(v float64) error {
	return s.WriteI64(int64(math.Float64bits(v)))
}

// WriteBulk appends length bytes of b starting at offset. Out-of-range
// arguments are a boundary fault.
func (s *Stream) WriteBulk(b []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(b) {
		fault("stream: bulk write out of range: offset=%d length=%d len(b)=%d", offset, length, len(b))
	}
	return s.append(b[offset : offset+length])
}

// WriteBlocks transfers ownership of blocks into the stream's chain. When
// the stream is currently aligned on a block boundary (no partially filled
// current block), the blocks are appended by reference with no copy;
// otherwise their content is copied byte-for-byte into the stream and the
// borrowed blocks are released back to their pool immediately (spec.md
// §4.2). Each block in blocks is assumed to use the same "position = bytes
// written so far" convention as the stream's own open blocks.
func (s *Stream) WriteBlocks(blocks []*bufpool.Block) error {
	if s.closed {
		fault("stream: write to closed stream")
	}
	c := s.cur()
	aligned := c == nil || c.Remaining() == 0
	if aligned {
		for _, b := range blocks {
			s.blocks = append(s.blocks, b)
			s.written += int64(b.Pos())
		}
		return nil
	}
	for _, b := range blocks {
		if err := s.append(b.Data()); err != nil {
			return err
		}
		b.Release()
	}
	return nil
}

// writeStrBody chooses compact UTF-8 framing when the encoded byte length
// fits a 16-bit length field, otherwise falls back to a raw UTF-16 char
// array. Per spec.md §9's re-architecture note, the choice is made by
// probing the known UTF-8 byte length up front rather than by attempting
// the compact encoding and recovering from a fault: Go strings already
// store their UTF-8 byte length, so there is nothing to probe-and-retry.
func (s *Stream) writeStrBody(str string) error {
	b := []byte(str)
	if len(b) <= math.MaxUint16 {
		if err := s.WriteByte(StrFramingUTF8); err != nil {
			return err
		}
		if err := s.WriteI16(int16(uint16(len(b)))); err != nil {
			return err
		}
		return s.append(b)
	}
	if err := s.WriteByte(StrFramingChars); err != nil {
		return err
	}
	return s.writeCharsBody(str)
}

func (s *Stream) writeCharsBody(str string) error {
	units := utf16.Encode([]rune(str))
	if err := s.WriteI32(int32(len(units))); err != nil {
		return err
	}
	for _, u := range units {
		if err := s.WriteI16(int16(u)); err != nil {
			return err
		}
	}
	return nil
}

// WriteStr appends a nullable string: a null-ness byte, then (if non-nil) a
// framing-choice byte and the chosen encoding (spec.md §4.2). A nil str
// writes only the null marker.
func (s *Stream) WriteStr(str *string) error {
	if str == nil {
		return s.WriteByte(StrNull)
	}
	if err := s.WriteByte(StrNonNull); err != nil {
		return err
	}
	return s.writeStrBody(*str)
}

// WriteChars appends str unconditionally as a raw UTF-16 char array (a
// 32-bit count followed by that many big-endian code units), with no
// null-ness wrapper and no compact-UTF-8 attempt. This is the explicit
// "always raw chars" operation spec.md §4.2 lists alongside write_str.
func (s *Stream) WriteChars(str string) error {
	return s.writeCharsBody(str)
}

// Close finalizes every block in the chain (flips each to read mode: limit
// becomes the written extent, position resets to zero so Bytes() yields
// exactly the unsent payload) and forbids further appends.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	for _, b := range s.blocks {
		b.Flip()
	}
	s.closed = true
}

// ToChain closes the stream (if not already closed) and returns its block
// chain, ready for transmission.
func (s *Stream) ToChain() *Chain {
	s.Close()
	return &Chain{Blocks: s.blocks, Len: s.written}
}
