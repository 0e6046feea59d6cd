// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

// ConnectionSummary is one entry of Manager.Stats' pull-based connection
// snapshot (spec.md §6).
type ConnectionSummary struct {
	ID         uint64
	RemoteAddr string
	State      State
	BytesIn    int64
	BytesOut   int64
	QueueDepth int
}

// WorkerSummary reports how many connections a worker currently owns.
type WorkerSummary struct {
	ID              int
	ConnectionCount int
}

// BufferStats mirrors bufpool.Pool.Stats.
type BufferStats struct {
	Cached     int
	Referenced int
}

// Stats is the manager's full pull-based observability snapshot.
type Stats struct {
	Connections []ConnectionSummary
	Workers     []WorkerSummary
	Buffers     BufferStats
}

// Stats takes a snapshot of every connection, worker, and the shared buffer
// pool. It never blocks a worker's I/O loop: each lock it acquires is held
// only long enough to copy small fixed-size fields.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	conns := make([]ConnectionSummary, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c.summary())
	}
	workers := make([]WorkerSummary, 0, len(m.workers.workers))
	for _, w := range m.workers.workers {
		workers = append(workers, WorkerSummary{ID: w.id, ConnectionCount: w.load()})
	}
	m.mu.Unlock()

	cached, referenced := m.pool.Stats()
	return Stats{
		Connections: conns,
		Workers:     workers,
		Buffers:     BufferStats{Cached: cached, Referenced: referenced},
	}
}
