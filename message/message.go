// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package message implements the NV-pair logical-message codec of spec.md
// §3/§4.3: a header of name/value pairs, each tagged by a small byte, plus
// an optional opaque block-chain payload. Decode aborts on any unknown NV
// tag rather than attempting to resync, matching the teacher's own
// fail-closed parsing style (wire/internal.go's readStream never tries to
// recover from a malformed header).
package message

import (
	"errors"
	"math"

	"code.hybscloud.com/terracore/bufpool"
	"code.hybscloud.com/terracore/stream"
)

// Tag identifies the wire type of an NV pair's value.
type Tag byte

const (
	TagByte Tag = iota + 1
	TagBool
	TagI16
	TagI32
	TagI64
	TagF32
	TagF64
	TagString
	TagBytes
)

// ErrUnknownTag is returned by Decode when an NV pair carries a type tag
// this codec does not recognize. Per spec.md §3, this aborts the whole
// decode rather than skipping the pair.
var ErrUnknownTag = errors.New("message: unknown NV tag")

// ErrTruncated is returned by Decode when the input ends mid-pair.
var ErrTruncated = errors.New("message: truncated NV header")

// NVPair is one name/value pair in a logical message's header. Name is the
// small application-defined tag byte; Type selects which of the value
// fields is meaningful.
type NVPair struct {
	Name  byte
	Type  Tag
	I64   int64
	F64   float64
	Str   *string
	Bytes []byte
}

func Byte(name byte, v byte) NVPair    { return NVPair{Name: name, Type: TagByte, I64: int64(v)} }
func Bool(name byte, v bool) NVPair {
	i := int64(0)
	if v {
		i = 1
	}
	return NVPair{Name: name, Type: TagBool, I64: i}
}
func I16(name byte, v int16) NVPair    { return NVPair{Name: name, Type: TagI16, I64: int64(v)} }
func I32(name byte, v int32) NVPair    { return NVPair{Name: name, Type: TagI32, I64: int64(v)} }
func I64(name byte, v int64) NVPair    { return NVPair{Name: name, Type: TagI64, I64: v} }
func F32(name byte, v float32) NVPair  { return NVPair{Name: name, Type: TagF32, F64: float64(v)} }
func F64(name byte, v float64) NVPair  { return NVPair{Name: name, Type: TagF64, F64: v} }
func Str(name byte, v string) NVPair   { return NVPair{Name: name, Type: TagString, Str: &v} }
func NullStr(name byte) NVPair         { return NVPair{Name: name, Type: TagString, Str: nil} }
func BytesVal(name byte, v []byte) NVPair { return NVPair{Name: name, Type: TagBytes, Bytes: v} }

// Message is a typed record: a header of NV pairs plus an optional opaque
// block-chain payload (spec.md §3).
type Message struct {
	NVPairs []NVPair
	Payload *stream.Chain
}

// Encode writes the NV header into s, then (if msg.Payload is non-nil)
// appends the opaque payload by reference via Stream.WriteBlocks, which is a
// zero-copy transfer whenever s is currently block-aligned.
func Encode(s *stream.Stream, msg *Message) error {
	if err := s.WriteI32(int32(len(msg.NVPairs))); err != nil {
		return err
	}
	for _, p := range msg.NVPairs {
		if err := s.WriteByte(p.Name); err != nil {
			return err
		}
		if err := s.WriteByte(byte(p.Type)); err != nil {
			return err
		}
		if err := encodeValue(s, p); err != nil {
			return err
		}
	}
	if msg.Payload != nil && len(msg.Payload.Blocks) > 0 {
		return s.WriteBlocks(msg.Payload.Blocks)
	}
	return nil
}

func encodeValue(s *stream.Stream, p NVPair) error {
	switch p.Type {
	case TagByte:
		return s.WriteByte(byte(p.I64))
	case TagBool:
		return s.WriteBool(p.I64 != 0)
	case TagI16:
		return s.WriteI16(int16(p.I64))
	case TagI32:
		return s.WriteI32(int32(p.I64))
	case TagI64:
		return s.WriteI64(p.I64)
	case TagF32:
		return s.WriteF32(float32(p.F64))
	case TagF64:
		return s.WriteF64(p.F64)
	case TagString:
		return s.WriteStr(p.Str)
	case TagBytes:
		if err := s.WriteI32(int32(len(p.Bytes))); err != nil {
			return err
		}
		return s.WriteBulk(p.Bytes, 0, len(p.Bytes))
	default:
		return ErrUnknownTag
	}
}

// Decode parses a flattened logical-message byte slice (header NV pairs
// followed by the raw opaque payload, if any) produced by Flatten. The
// remaining, unconsumed bytes become msg.Payload as a single block borrowed
// from pool (nil pool is allowed when the caller does not need a pooled
// payload block, e.g. in tests).
func Decode(data []byte, pool *bufpool.Pool) (*Message, error) {
	r := &reader{buf: data}
	count, err := r.readI32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, ErrTruncated
	}
	pairs := make([]NVPair, 0, count)
	for i := int32(0); i < count; i++ {
		name, err := r.readByte()
		if err != nil {
			return nil, err
		}
		typByte, err := r.readByte()
		if err != nil {
			return nil, err
		}
		pair := NVPair{Name: name, Type: Tag(typByte)}
		if err := decodeValue(r, &pair); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	msg := &Message{NVPairs: pairs}
	rest := data[r.pos:]
	if len(rest) > 0 && pool != nil {
		blk, err := pool.AcquireSized(len(rest))
		if err != nil {
			return nil, err
		}
		blk.Append(rest)
		blk.Flip()
		msg.Payload = &stream.Chain{Blocks: []*bufpool.Block{blk}, Len: int64(len(rest))}
	}
	return msg, nil
}

func decodeValue(r *reader, p *NVPair) error {
	switch p.Type {
	case TagByte:
		v, err := r.readByte()
		p.I64 = int64(v)
		return err
	case TagBool:
		v, err := r.readByte()
		p.I64 = int64(v)
		return err
	case TagI16:
		v, err := r.readI16()
		p.I64 = int64(v)
		return err
	case TagI32:
		v, err := r.readI32()
		p.I64 = int64(v)
		return err
	case TagI64:
		v, err := r.readI64()
		p.I64 = v
		return err
	case TagF32:
		v, err := r.readI32()
		p.F64 = float64(math.Float32frombits(uint32(v)))
		return err
	case TagF64:
		v, err := r.readI64()
		p.F64 = math.Float64frombits(uint64(v))
		return err
	case TagString:
		v, err := r.readStr()
		p.Str = v
		return err
	case TagBytes:
		n, err := r.readI32()
		if err != nil {
			return err
		}
		if n < 0 {
			return ErrTruncated
		}
		b, err := r.readN(int(n))
		p.Bytes = append([]byte(nil), b...)
		return err
	default:
		return ErrUnknownTag
	}
}

// Flatten concatenates a chain's blocks into a contiguous slice, for
// handing the whole logical message to Decode. Not zero-copy; Connection.Send
// also uses it to hand each encoded message to the wire writer.
func Flatten(c *stream.Chain) []byte {
	out := make([]byte, 0, c.Len)
	for _, b := range c.Blocks {
		out = append(out, b.Bytes()...)
	}
	return out
}
