// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"code.hybscloud.com/terracore/bufpool"
)

// Manager owns the reactor's worker pool, the live connection and listener
// sets, and the shared buffer pool (spec.md §4.5). It breaks the
// connection/manager/listener reference cycle the spec's redesign notes
// flag by having connections and listeners look up their manager only
// through the handle-style registries below rather than walking back-edges
// in the other direction; Go's garbage collector already tolerates a
// straightforward back-pointer cycle, so the handle discipline here is
// about ownership clarity (shutdown iterates owned sets), not collectability.
type Manager struct {
	opts Options
	pool *bufpool.Pool
	log  *slog.Logger

	workers *workerPool

	mu          sync.Mutex
	nextID      uint64
	connections map[uint64]*Connection
	listeners   map[*Listener]struct{}

	shutdown atomic.Bool
}

// New constructs a Manager. A nil logger defaults to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Manager {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:        o,
		pool:        bufpool.New(o.InitialBlockSize, o.BufferPoolCap),
		log:         logger,
		workers:     newWorkerPool(o.WorkerCount),
		connections: make(map[uint64]*Connection),
		listeners:   make(map[*Listener]struct{}),
	}
}

// CreateListener binds addr over network and accepts connections,
// dispatching each to factory (spec.md §4.5).
func (m *Manager) CreateListener(network, addr string, factory ProtocolAdaptorFactory) (*Listener, error) {
	if m.shutdown.Load() {
		return nil, ErrShutdown
	}
	lc := net.ListenConfig{}
	nl, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, err
	}
	l := newListener(m, nl, factory)

	m.mu.Lock()
	if m.shutdown.Load() {
		m.mu.Unlock()
		_ = l.Close()
		return nil, ErrShutdown
	}
	m.listeners[l] = struct{}{}
	m.mu.Unlock()
	return l, nil
}

// CreateConnection dials addr and registers the resulting connection under
// a freshly chosen worker (spec.md §4.5).
func (m *Manager) CreateConnection(network, addr string, factory ProtocolAdaptorFactory) (*Connection, error) {
	if m.shutdown.Load() {
		return nil, ErrShutdown
	}
	d := net.Dialer{Timeout: dialTimeout(m.opts.ConnectionTimeout)}
	conn, err := d.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	sink, listeners := factory(conn)
	return m.registerConnection(conn, sink, listeners)
}

func dialTimeout(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func (m *Manager) registerConnection(conn net.Conn, sink Sink, listeners []Listener) (*Connection, error) {
	if m.shutdown.Load() {
		return nil, ErrShutdown
	}

	m.mu.Lock()
	if m.shutdown.Load() {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	c := newConnection(id, conn, m, sink, listeners)
	w := m.workers.leastLoaded()
	c.worker = w
	w.add(c)

	m.mu.Lock()
	m.connections[id] = c
	m.mu.Unlock()
	return c, nil
}

func (m *Manager) forgetConnection(id uint64) {
	m.mu.Lock()
	delete(m.connections, id)
	m.mu.Unlock()
}

// CloseAllConnections closes a snapshot of every currently live connection,
// each bounded by timeout.
func (m *Manager) CloseAllConnections(timeout time.Duration) {
	m.mu.Lock()
	snapshot := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		snapshot = append(snapshot, c)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range snapshot {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			_ = c.Close(timeout)
		}(c)
	}
	wg.Wait()
}

// CloseAllListeners closes every listener the manager owns.
func (m *Manager) CloseAllListeners() {
	m.mu.Lock()
	snapshot := make([]*Listener, 0, len(m.listeners))
	for l := range m.listeners {
		snapshot = append(snapshot, l)
	}
	m.mu.Unlock()

	for _, l := range snapshot {
		_ = l.Close()
	}
}

// Shutdown is idempotent (spec.md §4.5): closes every listener, closes every
// connection asynchronously, drops the buffer pool, and flips the one-shot
// flag that fails every subsequent create_* call.
func (m *Manager) Shutdown() {
	if !m.shutdown.CompareAndSwap(false, true) {
		return
	}
	m.CloseAllListeners()

	m.mu.Lock()
	snapshot := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		snapshot = append(snapshot, c)
	}
	m.mu.Unlock()
	for _, c := range snapshot {
		c.CloseAsync()
	}

	m.pool.Close()
}
