// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package terracore is the connection manager, reactor, and worker pool
// that sit on top of bufpool, stream, message, and wire: it multiplexes
// many connections over a small set of workers and drives the
// accumulate-fragment-dispatch cycle described by wire's envelope framer.
package terracore

import (
	"errors"
	"fmt"
)

// Lifecycle faults (spec.md §7): typed errors, idempotent where possible.
var (
	// ErrShutdown is returned by every create_* call once Manager.Shutdown
	// has run. Shutdown is a one-shot flag; this error never clears.
	ErrShutdown = errors.New("terracore: manager is shut down")

	// ErrConnectionClosed is returned by Send and by queued writes'
	// completions when the connection has already moved to Closing/Closed.
	ErrConnectionClosed = errors.New("terracore: connection closed")

	// ErrCloseTimeout is returned by Close when the send queue did not
	// drain within the requested timeout; the socket is closed regardless.
	ErrCloseTimeout = errors.New("terracore: close timed out with pending writes")
)

// Fault is a programmer-fault panic value (spec.md §7): invariant
// violations that are never recoverable, mirroring stream.Fault.
type Fault struct{ msg string }

func (f *Fault) Error() string { return f.msg }

func fault(format string, args ...any) {
	panic(&Fault{msg: fmt.Sprintf(format, args...)})
}
