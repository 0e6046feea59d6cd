// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

import "sync"

// Worker is a bookkeeping bucket of connections (spec.md §4.4): "W worker
// threads, each owning a disjoint subset of the connection set, least-loaded
// wins at registration, a connection is never migrated." Each connection
// already runs its own send/receive goroutines scheduled by the Go runtime's
// netpoller, so a Worker does not itself run an event loop; it exists so
// load-balanced assignment and the per-worker stats in spec.md §6 have
// somewhere to live, deliberately choosing the goroutine+netpoller model
// over a hand-rolled epoll/kqueue reactor (see SPEC_FULL.md §12).
type Worker struct {
	id int

	mu    sync.Mutex
	conns map[uint64]*Connection
}

func newWorker(id int) *Worker {
	return &Worker{id: id, conns: make(map[uint64]*Connection)}
}

func (w *Worker) load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

func (w *Worker) add(c *Connection) {
	w.mu.Lock()
	w.conns[c.id] = c
	w.mu.Unlock()
}

func (w *Worker) remove(id uint64) {
	w.mu.Lock()
	delete(w.conns, id)
	w.mu.Unlock()
}

// workerPool holds a fixed set of Workers and picks the least-loaded one at
// connection-registration time. A zero-sized pool (spec.md §6's
// worker_count=0, "inline") degenerates to a single shared bucket.
type workerPool struct {
	workers []*Worker
}

func newWorkerPool(n int) *workerPool {
	if n <= 0 {
		n = 1
	}
	wp := &workerPool{workers: make([]*Worker, n)}
	for i := range wp.workers {
		wp.workers[i] = newWorker(i)
	}
	return wp
}

func (wp *workerPool) leastLoaded() *Worker {
	best := wp.workers[0]
	bestLoad := best.load()
	for _, w := range wp.workers[1:] {
		if l := w.load(); l < bestLoad {
			best, bestLoad = w, l
		}
	}
	return best
}
