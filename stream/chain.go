// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import "code.hybscloud.com/terracore/bufpool"

// Chain is an ordered, append-only-while-open sequence of blocks
// representing the body of one logical message (spec.md §3). Once a Stream
// has been closed and turned into a Chain, the chain is immutable except
// through a Mark that targets a region already written.
type Chain struct {
	Blocks []*bufpool.Block
	Len    int64
}

// Release returns every block in the chain to its owning pool. Callers must
// not touch the chain afterward.
func (c *Chain) Release() {
	for _, b := range c.Blocks {
		b.Release()
	}
	c.Blocks = nil
}
