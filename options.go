// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package terracore

import "time"

// Options configures a Manager (spec.md §6's "Configurable options" table).
type Options struct {
	// WorkerCount is the number of I/O workers. Zero means "inline": every
	// connection is tracked under a single shared worker bucket rather than
	// load-balanced across many.
	WorkerCount int

	// InitialBlockSize and MaxBlockSize configure every stream.Stream this
	// manager's connections build for outgoing messages.
	InitialBlockSize int
	MaxBlockSize     int

	// BufferPoolCap bounds the total number of blocks (cached plus
	// outstanding) the shared bufpool.Pool allows at once; AcquireSized
	// returns iox.ErrWouldBlock past this high-water mark.
	BufferPoolCap int

	// MaxMessageSize bounds the size of a single logical message a
	// connection will receive, including fragment reassembly across
	// multiple wire envelopes. It sizes the pool block recvLoop reads into
	// and is passed to wire as its ReadLimit, so an oversized message is
	// rejected as a protocol fault instead of overflowing the receive
	// buffer.
	MaxMessageSize int

	// AcceptBacklog is stored but not applied: CreateListener does not pass
	// it on, and listeners get the net package's default backlog.
	AcceptBacklog int

	// ReuseAddr is stored but not applied: CreateListener does not set
	// SO_REUSEADDR from it, and listeners get the net package's default
	// socket options.
	ReuseAddr bool

	// CloseTimeout is stored but not read: Connection.Close and
	// CloseAllConnections take an explicit timeout, and CloseAsync and
	// Shutdown close with a zero timeout.
	CloseTimeout time.Duration

	// ConnectionTimeout bounds outbound connect attempts; <0 means no
	// timeout.
	ConnectionTimeout time.Duration

	// AcceptRateLimit caps accepted connections per second for each listener
	// owned by the manager (every listener has its own limiter); zero
	// disables pacing.
	AcceptRateLimit float64
}

var defaultOptions = Options{
	WorkerCount:       0,
	InitialBlockSize:  1024,
	MaxBlockSize:      512 * 1024,
	BufferPoolCap:     4096,
	MaxMessageSize:    1 << 20, // 1 MiB: 4 full-size wire envelopes' worth of fragments
	AcceptBacklog:     1024,
	ReuseAddr:         true,
	CloseTimeout:      5 * time.Second,
	ConnectionTimeout: -1,
	AcceptRateLimit:   0,
}

// Option configures Options; constructed with the teacher's own functional-
// options idiom (wire.Option / wire.Options).
type Option func(*Options)

func WithWorkerCount(n int) Option          { return func(o *Options) { o.WorkerCount = n } }
func WithInitialBlockSize(n int) Option     { return func(o *Options) { o.InitialBlockSize = n } }
func WithMaxBlockSize(n int) Option         { return func(o *Options) { o.MaxBlockSize = n } }
func WithBufferPoolCap(n int) Option        { return func(o *Options) { o.BufferPoolCap = n } }
func WithMaxMessageSize(n int) Option       { return func(o *Options) { o.MaxMessageSize = n } }
func WithAcceptBacklog(n int) Option        { return func(o *Options) { o.AcceptBacklog = n } }
func WithReuseAddr(b bool) Option           { return func(o *Options) { o.ReuseAddr = b } }
func WithCloseTimeout(d time.Duration) Option {
	return func(o *Options) { o.CloseTimeout = d }
}
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectionTimeout = d }
}

// WithAcceptRateLimit paces each listener's accept loop to at most n
// connections per second (golang.org/x/time/rate), smoothing connection
// storms across the manager's listeners.
func WithAcceptRateLimit(n float64) Option {
	return func(o *Options) { o.AcceptRateLimit = n }
}
