// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"
	"runtime"
	"time"
)

type framer struct {
	rd  io.Reader
	rbo binary.ByteOrder
	rpr Protocol
	wr  io.Writer
	wbo binary.ByteOrder
	wpr Protocol

	readLimit int64
	sessionID uint64
	writeType MessageType

	retryDelay time.Duration

	// Stream-mode reassembly state. A logical message may span several
	// envelopes (FlagFragment set on all but the last); the state machine
	// below walks AWAIT_HEADER -> AWAIT_PAYLOAD per envelope and only
	// reaches DISPATCH (returning to the caller) once a non-fragment
	// envelope has been fully read.
	header    [envelopeHeaderLen]byte
	headerOff int   // bytes of the current envelope's header read so far
	length    int64 // payload length of the current envelope
	payOff    int64 // payload bytes of the current envelope read so far
	fragTotal int64 // bytes of the logical message delivered into p across prior fragments

	// reusable scratch buffer for Reader.WriteTo fast path
	rbuf []byte

	// wtOff/wtLen are not read or written by WriteTo: when dst.Write
	// returns ErrWouldBlock/ErrMore partway through a message, WriteTo
	// returns and the unwritten rest of that message is not kept for the
	// next call.
	wtOff int
	wtLen int

	// Stream-mode write state: p is split into ceil(len(p)/MaxPayload)
	// envelopes; fragOff tracks how many bytes of p have been fully
	// flushed in completed earlier envelopes, wHeader holds the header of
	// the envelope currently being written (separate from the read-side
	// header, so one framer can read and write concurrently), and
	// wHeaderOff/wPayOff track progress within that envelope.
	fragOff    int64
	wHeader    [envelopeHeaderLen]byte
	wHeaderOff int
	wPayOff    int64

	// reusable scratch buffer for Writer.ReadFrom fast path
	wbuf []byte
}

func newFramer(r io.Reader, w io.Writer, opts ...Option) *framer {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}

	fr := &framer{
		rd:        r,
		wr:        w,
		rbo:       o.ReadByteOrder,
		wbo:       o.WriteByteOrder,
		rpr:       o.ReadProto,
		wpr:       o.WriteProto,
		readLimit: int64(o.ReadLimit),
		sessionID: o.SessionID,
		writeType: o.WriteType,

		retryDelay: o.RetryDelay,
	}
	return fr
}

func (fr *framer) reset() {
	fr.headerOff = 0
	fr.length = 0
	fr.payOff = 0
	fr.fragTotal = 0
}

func (fr *framer) resetWrite() {
	fr.fragOff = 0
	fr.wHeaderOff = 0
	fr.wPayOff = 0
}

func (fr *framer) yieldOnce() {
	// Cooperative yield to avoid burning a full core when emulating blocking
	// on top of a non-blocking transport.
	runtime.Gosched()
}

func (fr *framer) read(p []byte) (n int, err error) {
	if fr.rd == nil {
		return 0, ErrInvalidArgument
	}
	if fr.rpr.preserveBoundary() {
		return fr.readPacket(p)
	}
	return fr.readStream(p)
}

func (fr *framer) write(p []byte) (n int, err error) {
	if fr.wr == nil {
		return 0, ErrInvalidArgument
	}
	if fr.wpr.preserveBoundary() {
		return fr.writePacket(p)
	}
	return fr.writeStream(p)
}

func (fr *framer) waitOnceOnWouldBlock() bool {
	// returns whether the caller should retry
	if fr.retryDelay < 0 {
		return false
	}
	if fr.retryDelay == 0 {
		runtime.Gosched()
		return true
	}
	time.Sleep(fr.retryDelay)
	return true
}

func (fr *framer) readOnce(p []byte) (n int, err error) {
	for {
		n, err = fr.rd.Read(p)
		// Guard against broken Readers that violate the io.Reader contract by
		// returning (0, nil) on a non-empty buffer. Without this, the stream
		// state machine can spin indefinitely.
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrNoProgress
		}
		if n > 0 {
			return n, err
		}
		if err != ErrWouldBlock {
			return n, err
		}
		if !fr.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

func (fr *framer) writeOnce(p []byte) (n int, err error) {
	for {
		n, err = fr.wr.Write(p)
		// Guard against broken Writers that violate the io.Writer contract by
		// returning (0, nil) on a non-empty buffer. Without this, the stream
		// writer can spin indefinitely.
		if len(p) != 0 && n == 0 && err == nil {
			return 0, io.ErrShortWrite
		}
		if n > 0 {
			return n, err
		}
		if err != ErrWouldBlock {
			return n, err
		}
		if !fr.waitOnceOnWouldBlock() {
			return n, err
		}
	}
}

func (fr *framer) readPacket(p []byte) (n int, err error) {
	n, err = fr.readOnce(p)
	if fr.readLimit > 0 && int64(n) > fr.readLimit {
		return n, ErrTooLong
	}
	return n, err
}

func (fr *framer) writePacket(p []byte) (n int, err error) {
	if int64(len(p)) > MaxPayload {
		return 0, ErrTooLong
	}
	n, err = fr.writeOnce(p)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// readStream implements the envelope reassembly state machine of spec.md
// §4.3: AWAIT_HEADER reads the fixed 24-byte header, AWAIT_PAYLOAD reads
// that many payload bytes and verifies their checksum, and DISPATCH hands
// the assembled logical message back to the caller once an envelope with no
// FlagFragment bit has completed. Partial progress across iox.ErrWouldBlock
// is resumable: the caller must retry with the same buffer p.
func (fr *framer) readStream(p []byte) (n int, err error) {
	for {
		// AWAIT_HEADER
		for fr.headerOff < envelopeHeaderLen {
			rn, re := fr.readOnce(fr.header[fr.headerOff:envelopeHeaderLen])
			fr.headerOff += rn
			if re != nil {
				if re == io.EOF {
					if fr.headerOff == 0 && fr.fragTotal == 0 {
						return int(fr.fragTotal), io.EOF
					}
					return int(fr.fragTotal), io.ErrUnexpectedEOF
				}
				return int(fr.fragTotal), re
			}
		}

		hdr, perr := parseEnvelopeHeader(fr.header[:], fr.rbo)
		if perr != nil {
			fr.reset()
			return int(fr.fragTotal), perr
		}
		fr.length = int64(hdr.length)
		if fr.length < 0 || fr.length > MaxPayload {
			fr.reset()
			return int(fr.fragTotal), ErrTooLong
		}
		if fr.readLimit > 0 && fr.fragTotal+fr.length > fr.readLimit {
			fr.reset()
			return int(fr.fragTotal), ErrTooLong
		}
		if fr.fragTotal+fr.length > int64(len(p)) {
			return int(fr.fragTotal), io.ErrShortBuffer
		}

		// AWAIT_PAYLOAD
		dst := p[fr.fragTotal : fr.fragTotal+fr.length]
		for fr.payOff < fr.length {
			rn, re := fr.readOnce(dst[fr.payOff:])
			fr.payOff += int64(rn)
			if re != nil {
				if re == io.EOF {
					return int(fr.fragTotal), io.ErrUnexpectedEOF
				}
				return int(fr.fragTotal), re
			}
		}
		if envelopeChecksum(fr.header[:20], dst) != hdr.checksum {
			fr.reset()
			return int(fr.fragTotal), ErrChecksumMismatch
		}

		fr.fragTotal += fr.length
		n = int(fr.fragTotal)
		more := hdr.flags&FlagFragment != 0
		fr.headerOff, fr.length, fr.payOff = 0, 0, 0
		if !more {
			total := int(fr.fragTotal)
			fr.fragTotal = 0
			return total, nil
		}
		// continue the loop: read the next fragment's header
	}
}

// writeStream splits p into ceil(len(p)/MaxPayload) envelopes (spec.md
// §4.3), each stamped with fr.sessionID and fr.writeType and checksummed
// individually. All but the last envelope carry FlagFragment.
func (fr *framer) writeStream(p []byte) (n int, err error) {
	for fr.fragOff < int64(len(p)) || (len(p) == 0 && fr.fragOff == 0) {
		end := fr.fragOff + MaxPayload
		if end > int64(len(p)) {
			end = int64(len(p))
		}
		chunk := p[fr.fragOff:end]
		flags := uint16(0)
		if end < int64(len(p)) {
			flags = FlagFragment
		}

		if fr.wHeaderOff == 0 && fr.wPayOff == 0 {
			putEnvelopeHeader(fr.wHeader[:], fr.wbo, fr.writeType, flags, fr.sessionID, chunk)
		}
		for fr.wHeaderOff < envelopeHeaderLen {
			wn, we := fr.writeOnce(fr.wHeader[fr.wHeaderOff:envelopeHeaderLen])
			fr.wHeaderOff += wn
			if we != nil {
				return int(fr.fragOff), we
			}
		}
		for fr.wPayOff < int64(len(chunk)) {
			wn, we := fr.writeOnce(chunk[fr.wPayOff:])
			fr.wPayOff += int64(wn)
			n += wn
			if we != nil {
				return n, we
			}
		}

		fr.fragOff = end
		fr.wHeaderOff, fr.wPayOff = 0, 0
		if len(p) == 0 {
			break
		}
	}
	fr.resetWrite()
	return n, nil
}
