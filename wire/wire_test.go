// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"io"
	"testing"

	"code.hybscloud.com/terracore/wire"
)

func TestReadWriteRoundTrip(t *testing.T) {
	r, w := wire.NewPipe(wire.WithSessionID(7))

	msgs := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte("x"), 4096),
	}

	done := make(chan error, 1)
	go func() {
		for _, m := range msgs {
			if _, err := w.Write(m); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i, want := range msgs {
		buf := make([]byte, len(want)+1)
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("read[%d]: %v", i, err)
		}
		if !bytes.Equal(buf[:n], want) {
			t.Fatalf("read[%d] = %q, want %q", i, buf[:n], want)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("writer: %v", err)
	}
}

// TestFragmentation exercises spec.md §8's scenario: a payload larger than
// wire.MaxPayload is split across multiple envelopes and reassembled
// transparently by Reader.Read.
func TestFragmentation(t *testing.T) {
	r, w := wire.NewPipe()

	payload := bytes.Repeat([]byte("z"), 2*wire.MaxPayload+37)
	done := make(chan error, 1)
	go func() {
		_, err := w.Write(payload)
		done <- err
	}()

	buf := make([]byte, len(payload))
	got := 0
	for got < len(payload) {
		n, err := r.Read(buf[got:])
		got += n
		if err != nil && err != io.ErrShortBuffer {
			t.Fatalf("read: %v", err)
		}
		if n == 0 && err == nil {
			t.Fatal("no progress without error")
		}
		if err == nil {
			break
		}
	}
	if !bytes.Equal(buf[:got], payload) {
		t.Fatal("reassembled payload does not match original")
	}
	if err := <-done; err != nil {
		t.Fatalf("writer: %v", err)
	}
}

func TestReadShortBufferReportsLength(t *testing.T) {
	r, w := wire.NewPipe()
	go func() { _, _ = w.Write([]byte("0123456789")) }()

	buf := make([]byte, 4)
	_, err := r.Read(buf)
	if err != io.ErrShortBuffer {
		t.Fatalf("err = %v, want io.ErrShortBuffer", err)
	}
}

func TestCorruptedChecksumIsProtocolFault(t *testing.T) {
	var wireBuf bytes.Buffer
	w := wire.NewWriter(&wireBuf, wire.WithWriteTCP())
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	corrupted := wireBuf.Bytes()
	// Flip a byte inside the payload region (after the 24-byte header) so the
	// envelope's CRC32 no longer matches.
	corrupted[len(corrupted)-1] ^= 0xFF

	r := wire.NewReader(bytes.NewReader(corrupted), wire.WithReadTCP())
	buf := make([]byte, 32)
	if _, err := r.Read(buf); err != wire.ErrChecksumMismatch {
		t.Fatalf("err = %v, want ErrChecksumMismatch", err)
	}
}

func TestCorruptedHeaderFieldIsProtocolFault(t *testing.T) {
	var wireBuf bytes.Buffer
	w := wire.NewWriter(&wireBuf, wire.WithWriteTCP(), wire.WithSessionID(9))
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	corrupted := wireBuf.Bytes()
	// Flip a byte inside the flags field (offset 6, still within header[0:20])
	// without touching the payload: the checksum must cover the header too,
	// or this corruption would go undetected.
	corrupted[6] ^= 0xFF

	r := wire.NewReader(bytes.NewReader(corrupted), wire.WithReadTCP())
	buf := make([]byte, 32)
	if _, err := r.Read(buf); err != wire.ErrChecksumMismatch {
		t.Fatalf("err = %v, want ErrChecksumMismatch", err)
	}
}

func TestBadMagicIsProtocolFault(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xAB}, 24)
	r := wire.NewReader(bytes.NewReader(garbage), wire.WithReadTCP())
	buf := make([]byte, 8)
	if _, err := r.Read(buf); err != wire.ErrBadMagic {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestPacketModePassThrough(t *testing.T) {
	r, w := io.Pipe()
	defer r.Close()
	defer w.Close()

	fw := wire.NewWriter(w, wire.WithWriteUDP())
	fr := wire.NewReader(r, wire.WithReadUDP())

	go func() { _, _ = fw.Write([]byte("datagram")) }()

	buf := make([]byte, 64)
	n, err := fr.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "datagram" {
		t.Fatalf("got %q, want %q", buf[:n], "datagram")
	}
}
