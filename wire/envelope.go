// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// Envelope header layout (spec.md §4.3): a fixed 24-byte header precedes
// every message on a stream transport.
//
//	offset  size  field
//	0       4     magic
//	4       1     version
//	5       1     type
//	6       2     flags
//	8       8     session id
//	16      4     payload length
//	20      4     crc32 (IEEE) of header[0:20] + payload
const (
	envelopeHeaderLen = 24

	envelopeMagic   uint32 = 0x54435253 // "TCRS"
	envelopeVersion byte   = 1

	// MaxPayload bounds a single envelope's payload (spec.md §4.3, §14): a
	// logical message larger than this is fragmented across multiple
	// envelopes by Writer.Write rather than widening the wire limit.
	MaxPayload = 256 * 1024
)

// FlagFragment marks an envelope as a non-final fragment of a larger logical
// message; the receiver keeps reassembling until an envelope without this
// flag arrives.
const FlagFragment uint16 = 1 << 0

// MessageType distinguishes dispatch-relevant envelope kinds from opaque
// application payloads. Values are small to leave room for spec-defined
// application message types above them.
type MessageType byte

const (
	TypeData MessageType = iota
	TypeHeartbeat
	TypeClose
)

// envelopeHeader is the decoded form of the 24-byte wire header.
type envelopeHeader struct {
	version   byte
	typ       MessageType
	flags     uint16
	sessionID uint64
	length    uint32
	checksum  uint32
}

// putEnvelopeHeader encodes hdr and its checksum into buf[:24] using bo for
// all multi-byte fields. The checksum covers header[0:20] as well as
// payload, so corruption of the length, flags, type, or session id fields is
// detected the same as payload corruption.
func putEnvelopeHeader(buf []byte, bo binary.ByteOrder, typ MessageType, flags uint16, sessionID uint64, payload []byte) {
	bo.PutUint32(buf[0:4], envelopeMagic)
	buf[4] = envelopeVersion
	buf[5] = byte(typ)
	bo.PutUint16(buf[6:8], flags)
	bo.PutUint64(buf[8:16], sessionID)
	bo.PutUint32(buf[16:20], uint32(len(payload)))
	bo.PutUint32(buf[20:24], envelopeChecksum(buf[0:20], payload))
}

// envelopeChecksum computes the CRC32 (IEEE) over headerPrefix (a header's
// bytes 0:20, i.e. everything but the checksum field itself) concatenated
// with payload. Pack and parse both call this so they can never drift apart.
func envelopeChecksum(headerPrefix, payload []byte) uint32 {
	sum := crc32.Update(0, crc32.IEEETable, headerPrefix)
	return crc32.Update(sum, crc32.IEEETable, payload)
}

// parseEnvelopeHeader decodes buf[:24] into hdr. It validates the magic and
// version but not the checksum, which requires the payload bytes and is
// checked once they have been read.
func parseEnvelopeHeader(buf []byte, bo binary.ByteOrder) (envelopeHeader, error) {
	var hdr envelopeHeader
	if bo.Uint32(buf[0:4]) != envelopeMagic {
		return hdr, ErrBadMagic
	}
	hdr.version = buf[4]
	if hdr.version != envelopeVersion {
		return hdr, ErrUnsupportedVersion
	}
	hdr.typ = MessageType(buf[5])
	hdr.flags = bo.Uint16(buf[6:8])
	hdr.sessionID = bo.Uint64(buf[8:16])
	hdr.length = bo.Uint32(buf[16:20])
	hdr.checksum = bo.Uint32(buf[20:24])
	return hdr, nil
}
