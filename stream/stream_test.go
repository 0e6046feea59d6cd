// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/binary"
	"testing"

	"code.hybscloud.com/terracore/bufpool"
)

func TestBasicRoundTrip(t *testing.T) {
	pool := bufpool.New(64, 16)
	s := New(pool, 16, 256)

	if err := s.WriteBool(true); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteI32(0x11223344); err != nil {
		t.Fatal(err)
	}
	str := "hello"
	if err := s.WriteStr(&str); err != nil {
		t.Fatal(err)
	}

	chain := s.ToChain()
	defer chain.Release()

	var all []byte
	for _, b := range chain.Blocks {
		all = append(all, b.Bytes()...)
	}
	if int64(len(all)) != chain.Len {
		t.Fatalf("assembled %d bytes, chain.Len=%d", len(all), chain.Len)
	}

	if all[0] != 1 {
		t.Fatalf("bool byte = %d, want 1", all[0])
	}
	got32 := binary.BigEndian.Uint32(all[1:5])
	if got32 != 0x11223344 {
		t.Fatalf("i32 = %#x, want 0x11223344", got32)
	}
	rest := all[5:]
	if rest[0] != StrNonNull {
		t.Fatalf("string null marker = %d, want non-null", rest[0])
	}
	if rest[1] != StrFramingUTF8 {
		t.Fatalf("string framing = %d, want compact utf8", rest[1])
	}
	l := binary.BigEndian.Uint16(rest[2:4])
	if l != 5 {
		t.Fatalf("string length = %d, want 5", l)
	}
	if string(rest[4:4+l]) != "hello" {
		t.Fatalf("string payload = %q, want hello", rest[4:4+l])
	}

	cached, referenced := pool.Stats()
	_ = cached
	if referenced == 0 {
		t.Fatalf("expected blocks still referenced until chain released")
	}
}

func TestPoolAccountingAfterRelease(t *testing.T) {
	pool := bufpool.New(32, 16)
	s := New(pool, 8, 64)
	for i := 0; i < 500; i++ {
		if err := s.WriteByte(byte(i)); err != nil {
			t.Fatal(err)
		}
	}
	chain := s.ToChain()
	chain.Release()
	if _, referenced := pool.Stats(); referenced != 0 {
		t.Fatalf("referenced = %d, want 0 after chain release", referenced)
	}
}

func TestMarkBackpatchLengthPrefix(t *testing.T) {
	pool := bufpool.New(64, 16)
	s := New(pool, 16, 256)

	m := s.Mark()
	if err := s.WriteI32(0); err != nil { // placeholder length
		t.Fatal(err)
	}
	payload := []byte("payload-bytes")
	if err := s.WriteBulk(payload, 0, len(payload)); err != nil {
		t.Fatal(err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	m.Write(lenBuf[:])

	chain := s.ToChain()
	defer chain.Release()

	var all []byte
	for _, b := range chain.Blocks {
		all = append(all, b.Bytes()...)
	}
	gotLen := binary.BigEndian.Uint32(all[0:4])
	if int(gotLen) != len(payload) {
		t.Fatalf("backpatched length = %d, want %d", gotLen, len(payload))
	}
	if string(all[4:]) != string(payload) {
		t.Fatalf("payload = %q, want %q", all[4:], payload)
	}
}

func TestMarkIdempotence(t *testing.T) {
	pool := bufpool.New(64, 16)
	s := New(pool, 16, 256)
	m := s.Mark()
	if err := s.WriteBulk([]byte{0, 0, 0, 0}, 0, 4); err != nil {
		t.Fatal(err)
	}
	chain := s.ToChain()
	defer chain.Release()

	var before []byte
	for _, b := range chain.Blocks {
		before = append(before, b.Bytes()...)
	}

	m.Write([]byte{1, 2, 3, 4})
	var after1 []byte
	for _, b := range chain.Blocks {
		after1 = append(after1, b.Bytes()...)
	}
	m.Write([]byte{1, 2, 3, 4})
	var after2 []byte
	for _, b := range chain.Blocks {
		after2 = append(after2, b.Bytes()...)
	}
	if string(after1) != string(after2) {
		t.Fatalf("mark write is not idempotent: %v != %v", after1, after2)
	}
}

func TestMarkWritePastWrittenExtentFaults(t *testing.T) {
	pool := bufpool.New(64, 16)
	s := New(pool, 16, 256)
	m := s.Mark()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a fault from writing through a mark past the written extent")
		}
	}()
	m.Write([]byte{1, 2, 3, 4})
}

func TestWriteBulkOutOfRangeFaults(t *testing.T) {
	pool := bufpool.New(64, 16)
	s := New(pool, 16, 256)
	defer func() {
		if recover() == nil {
			t.Fatal("expected a boundary fault for an out-of-range bulk write")
		}
	}()
	_ = s.WriteBulk([]byte("abc"), 1, 10)
}

func TestWriteToClosedStreamFaults(t *testing.T) {
	pool := bufpool.New(64, 16)
	s := New(pool, 16, 256)
	s.Close()
	defer func() {
		if recover() == nil {
			t.Fatal("expected a state fault for writing to a closed stream")
		}
	}()
	_ = s.WriteByte(1)
}

func TestBlockGrowthCapsAtMax(t *testing.T) {
	pool := bufpool.New(16, 64)
	s := New(pool, 16, 64)
	// Enough bytes to force several block rollovers: 16 -> 32 -> 64 (capped).
	big := make([]byte, 200)
	if err := s.WriteBulk(big, 0, len(big)); err != nil {
		t.Fatal(err)
	}
	for _, b := range s.blocks {
		if b.Cap() > 64 {
			t.Fatalf("block cap %d exceeds max 64", b.Cap())
		}
	}
}

func TestLargeStringFallsBackToChars(t *testing.T) {
	pool := bufpool.New(1<<16, 8)
	s := New(pool, 1<<16, 1<<20)
	big := make([]rune, 70000)
	for i := range big {
		big[i] = 'a'
	}
	str := string(big)
	if err := s.WriteStr(&str); err != nil {
		t.Fatal(err)
	}
	chain := s.ToChain()
	defer chain.Release()

	var all []byte
	for _, b := range chain.Blocks {
		all = append(all, b.Bytes()...)
	}
	if all[0] != StrNonNull {
		t.Fatalf("null marker = %d, want non-null", all[0])
	}
	if all[1] != StrFramingChars {
		t.Fatalf("framing = %d, want raw chars fallback", all[1])
	}
}

func TestNullString(t *testing.T) {
	pool := bufpool.New(64, 4)
	s := New(pool, 16, 64)
	if err := s.WriteStr(nil); err != nil {
		t.Fatal(err)
	}
	chain := s.ToChain()
	defer chain.Release()
	if chain.Len != 1 {
		t.Fatalf("chain.Len = %d, want 1 for a null string marker", chain.Len)
	}
}
