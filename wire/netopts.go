// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "encoding/binary"

// Network option helpers and mapping.
//
// Single source of truth — transport → (Protocol, ByteOrder), trimmed to the
// transports code.hybscloud.com/terracore actually dials or listens on via
// the standard net package:
//
//   - TCP        → BinaryStream, BigEndian (network byte order)
//   - UDP        → Datagram,     BigEndian
//   - Unix       → BinaryStream, BigEndian  // stream-mode Unix domain socket
//   - UnixPacket → Datagram,     BigEndian  // SOCK_DGRAM Unix domain socket
type netKind uint8

const (
	netTCP netKind = iota
	netUDP
	netUnixStream
	netUnixPacket
)

func defaultsFor(kind netKind) (Protocol, binary.ByteOrder) {
	switch kind {
	case netTCP:
		return BinaryStream, binary.BigEndian
	case netUDP:
		return Datagram, binary.BigEndian
	case netUnixStream:
		return BinaryStream, binary.BigEndian
	case netUnixPacket:
		return Datagram, binary.BigEndian
	default:
		return BinaryStream, binary.BigEndian
	}
}

// WithReadTCP configures the reader side for TCP: BinaryStream with BigEndian length prefix.
func WithReadTCP() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netTCP)
		o.ReadProto = p
		o.ReadByteOrder = bo
	}
}

// WithWriteTCP configures the writer side for TCP: BinaryStream with BigEndian length prefix.
func WithWriteTCP() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netTCP)
		o.WriteProto = p
		o.WriteByteOrder = bo
	}
}

// WithReadUDP configures the reader side for UDP: Datagram (pass-through), BigEndian default.
func WithReadUDP() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netUDP)
		o.ReadProto = p
		o.ReadByteOrder = bo
	}
}

// WithWriteUDP configures the writer side for UDP: Datagram (pass-through), BigEndian default.
func WithWriteUDP() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netUDP)
		o.WriteProto = p
		o.WriteByteOrder = bo
	}
}

// WithReadUnix configures the reader side for Unix stream sockets: BinaryStream, BigEndian.
func WithReadUnix() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netUnixStream)
		o.ReadProto = p
		o.ReadByteOrder = bo
	}
}

// WithWriteUnix configures the writer side for Unix stream sockets: BinaryStream, BigEndian.
func WithWriteUnix() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netUnixStream)
		o.WriteProto = p
		o.WriteByteOrder = bo
	}
}

// WithReadUnixPacket configures the reader side for Unix datagram sockets: Datagram (pass-through), BigEndian.
func WithReadUnixPacket() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netUnixPacket)
		o.ReadProto = p
		o.ReadByteOrder = bo
	}
}

// WithWriteUnixPacket configures the writer side for Unix datagram sockets: Datagram (pass-through), BigEndian.
func WithWriteUnixPacket() Option {
	return func(o *Options) {
		p, bo := defaultsFor(netUnixPacket)
		o.WriteProto = p
		o.WriteByteOrder = bo
	}
}

// OptionsForNetwork returns the read/write framing options matching the
// net.Addr.Network() value of a dialed or accepted connection (e.g. "tcp",
// "tcp4", "udp6", "unix", "unixgram"). Unrecognized networks — including
// net.Pipe's "pipe" — default to TCP-shaped stream framing, since an
// in-memory pipe behaves like a boundary-erasing stream transport.
func OptionsForNetwork(network string) (read, write Option) {
	switch network {
	case "udp", "udp4", "udp6":
		return WithReadUDP(), WithWriteUDP()
	case "unixgram":
		return WithReadUnixPacket(), WithWriteUnixPacket()
	case "unix":
		return WithReadUnix(), WithWriteUnix()
	default:
		return WithReadTCP(), WithWriteTCP()
	}
}
