// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// ProtocolAdaptorFactory is invoked once per accepted (or dialed)
// connection to produce the Sink that will receive its decoded messages,
// and any lifecycle Listeners to attach (spec.md §6's "Protocol adaptor
// factory" collaborator interface).
type ProtocolAdaptorFactory func(conn net.Conn) (Sink, []Listener)

// Listener accepts connections on a bound net.Listener and registers each
// one with the owning Manager, grounded on the accept-loop shape common to
// the pack's server examples (bind once, loop-accept, dispatch per
// connection on its own goroutine).
type Listener struct {
	mgr     *Manager
	ln      net.Listener
	factory ProtocolAdaptorFactory
	limiter *rate.Limiter
	log     *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newListener(mgr *Manager, nl net.Listener, factory ProtocolAdaptorFactory) *Listener {
	l := &Listener{
		mgr:     mgr,
		ln:      nl,
		factory: factory,
		log:     mgr.log.With("listener", nl.Addr().String()),
		done:    make(chan struct{}),
	}
	if mgr.opts.AcceptRateLimit > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(mgr.opts.AcceptRateLimit), 1)
	}
	go l.acceptLoop()
	return l
}

func (l *Listener) acceptLoop() {
	for {
		if l.limiter != nil {
			_ = l.limiter.Wait(context.Background()) // pacing only, never cancels a single accept
		}
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			l.log.Warn("accept failed", "error", err)
			return
		}
		sink, listeners := l.factory(conn)
		if _, err := l.mgr.registerConnection(conn, sink, listeners); err != nil {
			l.log.Warn("register connection failed", "error", err, "remote", conn.RemoteAddr())
			_ = conn.Close()
		}
	}
}

// Close stops the accept loop and closes the underlying net.Listener.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.ln.Close()
	})
	return err
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
