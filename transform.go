// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// Transform is the buffer-manager factory collaborator of spec.md §6: an
// optional wrap layer around raw socket I/O (TLS, compression, ...) that
// operates on the same io.Reader/io.Writer seam the wire framer already
// consumes.
type Transform interface {
	WrapRead(r io.Reader) io.Reader
	WrapWrite(w io.Writer) io.Writer
}

// IdentityTransform passes socket I/O through unmodified.
type IdentityTransform struct{}

func (IdentityTransform) WrapRead(r io.Reader) io.Reader  { return r }
func (IdentityTransform) WrapWrite(w io.Writer) io.Writer { return w }

// FlateTransform compresses outgoing bytes and decompresses incoming bytes
// with DEFLATE, grounded on the compression stack already present in the
// example pack (klauspost/compress, used by nishisan-dev-n-backup).
type FlateTransform struct {
	Level int
}

func (t FlateTransform) WrapRead(r io.Reader) io.Reader {
	return flate.NewReader(r)
}

func (t FlateTransform) WrapWrite(w io.Writer) io.Writer {
	level := t.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	fw, err := flate.NewWriter(w, level)
	if err != nil {
		// Only invalid levels reach here; flate.DefaultCompression is
		// always valid, so this is a construction-time programmer fault.
		fault("terracore: flate transform: %v", err)
	}
	return &flushingWriter{w: fw}
}

// flushingWriter flushes the underlying flate.Writer after every Write so
// that wire's envelope framing (one Write call per logical message) does
// not stall waiting on DEFLATE's internal block buffering.
type flushingWriter struct {
	w *flate.Writer
}

func (f *flushingWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}
