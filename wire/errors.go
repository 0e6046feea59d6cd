// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "errors"

var (
	// ErrInvalidArgument reports an invalid configuration or nil reader/writer.
	ErrInvalidArgument = errors.New("wire: invalid argument")

	// ErrTooLong reports that a frame length exceeds limits or the supported wire format.
	ErrTooLong = errors.New("wire: message too long")

	// ErrBadMagic reports an envelope header whose magic number does not
	// match. This is a protocol fault (spec.md §7): the connection must be
	// closed, it cannot be resynchronized.
	ErrBadMagic = errors.New("wire: bad envelope magic")

	// ErrUnsupportedVersion reports an envelope header version this build
	// does not understand. Also a protocol fault.
	ErrUnsupportedVersion = errors.New("wire: unsupported envelope version")

	// ErrChecksumMismatch reports that a payload's CRC32 did not match the
	// checksum carried in its envelope header. Protocol fault.
	ErrChecksumMismatch = errors.New("wire: envelope checksum mismatch")
)
