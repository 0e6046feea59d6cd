// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

// Mark names a prior byte position in a Stream's block chain, captured
// before further writes, so a caller can back-patch a length prefix once it
// becomes known (spec.md §3). A Mark is only valid against the Stream that
// produced it, and writes through a Mark may never extend beyond the
// Stream's written length. Write also works after Close, back-patching the
// resulting Chain; CopyTo requires the Stream to be still open.
type Mark struct {
	s           *Stream
	blockIndex  int
	blockOffset int
	absOffset   int64
}

// AbsOffset returns the mark's absolute byte offset within the stream.
func (m Mark) AbsOffset() int64 { return m.absOffset }

// Write overwrites len(p) bytes starting at the mark. The window
// [absOffset, absOffset+len(p)) must lie entirely within bytes already
// written to the stream; otherwise this is a boundary fault (programmer
// error, spec.md §7).
func (m Mark) Write(p []byte) {
	if m.s == nil {
		fault("stream: mark is zero-valued")
	}
	if m.absOffset+int64(len(p)) > m.s.written {
		fault("stream: mark write extends past written extent")
	}
	bi, bo := m.blockIndex, m.blockOffset
	remaining := p
	for len(remaining) > 0 {
		if bi >= len(m.s.blocks) {
			fault("stream: mark write ran past end of chain")
		}
		blk := m.s.blocks[bi]
		// Written extent: position while open, limit once Close has flipped it.
		extent := blk.Pos()
		if m.s.closed {
			extent = blk.Limit()
		}
		avail := extent - bo
		if avail <= 0 {
			bi++
			bo = 0
			continue
		}
		n := len(remaining)
		if n > avail {
			n = avail
		}
		copy(blk.Raw()[bo:bo+n], remaining[:n])
		remaining = remaining[n:]
		bo += n
	}
}

// CopyTo copies a length-byte window starting at absOffset+offset (relative
// to the mark) into dest, via dest's normal bulk-write path. The window must
// lie entirely within bytes already written to the stream; the bounds check
// is O(1) because the mark stores its absolute offset (spec.md §4.2).
func (m Mark) CopyTo(dest *Stream, offset, length int) error {
	if m.s == nil {
		fault("stream: mark is zero-valued")
	}
	if offset < 0 || length < 0 {
		fault("stream: negative offset or length")
	}
	if m.absOffset+int64(offset)+int64(length) > m.s.written {
		fault("stream: mark copy window extends past written extent")
	}

	bi, bo := m.blockIndex, m.blockOffset
	toSkip := offset
	for toSkip > 0 {
		if bi >= len(m.s.blocks) {
			fault("stream: mark copy ran past end of chain")
		}
		blk := m.s.blocks[bi]
		avail := blk.Pos() - bo
		if avail <= 0 {
			bi++
			bo = 0
			continue
		}
		n := toSkip
		if n > avail {
			n = avail
		}
		bo += n
		toSkip -= n
	}

	remaining := length
	for remaining > 0 {
		if bi >= len(m.s.blocks) {
			fault("stream: mark copy ran past end of chain")
		}
		blk := m.s.blocks[bi]
		avail := blk.Pos() - bo
		if avail <= 0 {
			bi++
			bo = 0
			continue
		}
		n := remaining
		if n > avail {
			n = avail
		}
		if err := dest.WriteBulk(blk.Data(), bo, n); err != nil {
			return err
		}
		remaining -= n
		bo += n
	}
	return nil
}
