// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import "fmt"

// Fault is a programmer-error invariant violation (spec.md §7): writing past
// the written extent through a mark, a negative length, or writing to a
// closed stream. These are not meant to be caught by ordinary callers; a
// connection's worker loop may recover one at its boundary so a single bad
// caller does not take down unrelated connections, but the fault itself
// always indicates a bug at the call site, never a transient condition.
type Fault struct{ msg string }

func (f *Fault) Error() string { return f.msg }

func fault(format string, args ...any) {
	panic(&Fault{msg: fmt.Sprintf(format, args...)})
}
