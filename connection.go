// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"code.hybscloud.com/terracore/bufpool"
	"code.hybscloud.com/terracore/message"
	"code.hybscloud.com/terracore/stream"
	"code.hybscloud.com/terracore/wire"
)

// State is a connection's position in the state machine of spec.md §4.4:
//
//	Init -> Connecting -> Open -> Closing -> Closed
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind identifies a connection lifecycle event dispatched to Listeners
// (spec.md §4.4).
type EventKind int

const (
	EventConnected EventKind = iota
	EventClosed
	EventEOF
	EventError
)

// Listener receives connection lifecycle events on the goroutine that
// triggers them (the registering caller, the connection's send or receive
// loop, or a Close caller); it must not block (spec.md §4.4).
type Listener func(c *Connection, kind EventKind, err error)

// Sink receives decoded logical messages in the order they were dispatched
// by the wire framer (spec.md §4.3's on_message contract). OnMessage takes
// ownership of msg.Payload (if non-nil) and must release it.
type Sink interface {
	OnMessage(msg *message.Message)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(msg *message.Message)

func (f SinkFunc) OnMessage(msg *message.Message) { f(msg) }

type writeRequest struct {
	payload []byte
	done    func(error)
}

// Connection wires one net.Conn through the wire envelope framer and
// dispatches decoded messages to a Sink, grounded on SagerNet-smux's
// Session: a dedicated sendLoop goroutine drains a FIFO write queue and a
// recvLoop goroutine feeds the framer, both signaled to stop by closing a
// single "die" channel guarded by sync.Once (session.go's own shutdown
// idiom), generalized from smux's multiplexed per-stream frames down to one
// wire-framed logical-message stream per connection.
type Connection struct {
	id   uint64
	conn net.Conn
	mgr  *Manager

	rd io.Reader
	wr io.Writer

	pool *bufpool.Pool

	sink      Sink
	listeners []Listener

	worker *Worker

	state atomic.Int32

	mu       sync.Mutex
	sendCh   chan writeRequest
	queueLen int

	die     chan struct{}
	dieOnce sync.Once

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

func newConnection(id uint64, conn net.Conn, mgr *Manager, sink Sink, listeners []Listener) *Connection {
	c := &Connection{
		id:        id,
		conn:      conn,
		mgr:       mgr,
		pool:      mgr.pool,
		sink:      sink,
		listeners: listeners,
		sendCh:    make(chan writeRequest, 256),
		die:       make(chan struct{}),
	}
	readOpt, writeOpt := wire.OptionsForNetwork(conn.RemoteAddr().Network())
	c.rd = wire.NewReader(conn, readOpt, wire.WithSessionID(id), wire.WithReadLimit(mgr.opts.MaxMessageSize))
	c.wr = wire.NewWriter(conn, writeOpt, wire.WithSessionID(id))
	c.state.Store(int32(StateOpen))

	go c.sendLoop()
	go c.recvLoop()
	c.fire(EventConnected, nil)
	return c
}

func (c *Connection) State() State { return State(c.state.Load()) }

func (c *Connection) fire(kind EventKind, err error) {
	for _, l := range c.listeners {
		l(c, kind, err)
	}
}

func (c *Connection) summary() ConnectionSummary {
	c.mu.Lock()
	depth := c.queueLen
	c.mu.Unlock()
	return ConnectionSummary{
		ID:         c.id,
		RemoteAddr: c.conn.RemoteAddr().String(),
		State:      c.State(),
		BytesIn:    c.bytesIn.Load(),
		BytesOut:   c.bytesOut.Load(),
		QueueDepth: depth,
	}
}

// Send encodes msg and enqueues it for delivery; done (if non-nil) is
// invoked on the send-loop goroutine once the write completes or fails.
// Writes are strictly FIFO per connection (spec.md §5).
func (c *Connection) Send(msg *message.Message, done func(error)) error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	s := stream.New(c.pool, c.mgr.opts.InitialBlockSize, c.mgr.opts.MaxBlockSize)
	if err := message.Encode(s, msg); err != nil {
		return err
	}
	chain := s.ToChain()
	payload := message.Flatten(chain)
	chain.Release()

	req := writeRequest{payload: payload, done: done}
	c.mu.Lock()
	c.queueLen++
	c.mu.Unlock()

	select {
	case c.sendCh <- req:
		return nil
	case <-c.die:
		return ErrConnectionClosed
	}
}

func (c *Connection) sendLoop() {
	for {
		select {
		case req := <-c.sendCh:
			c.mu.Lock()
			c.queueLen--
			c.mu.Unlock()

			_, err := c.wr.Write(req.payload)
			if err != nil {
				// Listeners get the underlying error; the completion reports
				// the now-closed connection, like every write still queued.
				c.failWrite(err)
			} else {
				c.bytesOut.Add(int64(len(req.payload)))
			}
			if req.done != nil {
				if err != nil {
					req.done(ErrConnectionClosed)
				} else {
					req.done(nil)
				}
			}
			if err != nil {
				c.drainPendingWrites()
				return
			}
		case <-c.die:
			c.drainPendingWrites()
			return
		}
	}
}

func (c *Connection) drainPendingWrites() {
	for {
		select {
		case req := <-c.sendCh:
			c.mu.Lock()
			c.queueLen--
			c.mu.Unlock()
			if req.done != nil {
				req.done(ErrConnectionClosed)
			}
		default:
			return
		}
	}
}

func (c *Connection) failWrite(err error) {
	c.closeAsyncWithEvent(EventError, err)
}

// recvLoop reads one reassembled logical message at a time (spec.md §4.3's
// AWAIT_HEADER/AWAIT_PAYLOAD/DISPATCH accumulator, driven from inside
// c.rd.Read) into a block borrowed from the shared pool rather than a fixed
// stack buffer: a message may span several MaxPayload-sized envelopes, and
// the pool, not a hand-picked constant, is what bounds how large one is
// allowed to get (mgr.opts.MaxMessageSize, enforced as wire's ReadLimit).
func (c *Connection) recvLoop() {
	for {
		blk, err := c.acquireRecvBlock()
		if err != nil {
			c.closeAsyncWithEvent(EventError, err)
			return
		}

		n, err := c.rd.Read(blk.Raw())
		if n > 0 {
			c.bytesIn.Add(int64(n))
			msg, derr := message.Decode(blk.Raw()[:n], c.pool)
			blk.Release()
			if derr != nil {
				c.closeAsyncWithEvent(EventError, derr)
				return
			}
			c.sink.OnMessage(msg)
		} else {
			blk.Release()
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.closeAsyncWithEvent(EventEOF, nil)
			case isProtocolFault(err):
				c.closeAsyncWithEvent(EventError, err)
			default:
				c.closeAsyncWithEvent(EventError, err)
			}
			return
		}
	}
}

// acquireRecvBlock borrows a pool block sized to the connection's maximum
// logical message. When the shared pool is at its high-water mark, Acquire
// reports iox.ErrWouldBlock (re-exported as wire.ErrWouldBlock); per spec.md
// §4.4's back-pressure contract this is not a fault, so the loop waits for a
// block to free up (or the connection to close) instead of tearing down the
// connection.
func (c *Connection) acquireRecvBlock() (*bufpool.Block, error) {
	for {
		blk, err := c.pool.AcquireSized(c.mgr.opts.MaxMessageSize)
		if err == nil {
			return blk, nil
		}
		if !errors.Is(err, wire.ErrWouldBlock) {
			return nil, err
		}
		select {
		case <-c.die:
			return nil, ErrConnectionClosed
		case <-time.After(time.Millisecond):
		}
	}
}

func isProtocolFault(err error) bool {
	return errors.Is(err, wire.ErrBadMagic) ||
		errors.Is(err, wire.ErrUnsupportedVersion) ||
		errors.Is(err, wire.ErrChecksumMismatch) ||
		errors.Is(err, wire.ErrTooLong)
}

// Close performs a graceful close (spec.md §4.4): stop accepting new writes,
// drain the outstanding queue bounded by timeout, then close the socket.
func (c *Connection) Close(timeout time.Duration) error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		if c.State() == StateClosed {
			return nil
		}
	}

	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		depth := c.queueLen
		c.mu.Unlock()
		if depth == 0 {
			break
		}
		select {
		case <-deadline:
			c.shutdownSocket(EventClosed, nil)
			return ErrCloseTimeout
		case <-time.After(time.Millisecond):
		}
	}
	c.shutdownSocket(EventClosed, nil)
	return nil
}

// CloseAsync schedules a graceful close with a zero timeout and returns
// immediately (spec.md §4.4).
func (c *Connection) CloseAsync() {
	go func() { _ = c.Close(0) }()
}

func (c *Connection) closeAsyncWithEvent(kind EventKind, err error) {
	c.state.Store(int32(StateClosing))
	c.shutdownSocket(kind, err)
}

func (c *Connection) shutdownSocket(kind EventKind, err error) {
	c.dieOnce.Do(func() {
		close(c.die)
		_ = c.conn.Close()
		c.state.Store(int32(StateClosed))
		if c.worker != nil {
			c.worker.remove(c.id)
		}
		c.mgr.forgetConnection(c.id)
		c.fire(kind, err)
	})
}
