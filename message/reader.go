// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package message

import (
	"encoding/binary"
	"unicode/utf16"

	"code.hybscloud.com/terracore/stream"
)

// reader is a minimal bounds-checked cursor over a flattened message byte
// slice, used only by Decode.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) readByte() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readI16() (int16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *reader) readI32() (int32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *reader) readI64() (int64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) readStr() (*string, error) {
	null, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if null == stream.StrNull {
		return nil, nil
	}
	framing, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if framing == stream.StrFramingUTF8 {
		l, err := r.readI16()
		if err != nil {
			return nil, err
		}
		b, err := r.readN(int(uint16(l)))
		if err != nil {
			return nil, err
		}
		s := string(b)
		return &s, nil
	}
	// Raw UTF-16 char array: count prefix then that many big-endian units.
	count, err := r.readI32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, ErrTruncated
	}
	units := make([]uint16, count)
	for i := range units {
		u, err := r.readI16()
		if err != nil {
			return nil, err
		}
		units[i] = uint16(u)
	}
	s := string(utf16.Decode(units))
	return &s, nil
}
