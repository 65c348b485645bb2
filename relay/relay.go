// Package relay keeps the latest position of every tracking driver and fans
// position changes out to connected parties.
//
// All state (store, registry, nearby index and connection set) is owned by a
// single loop started with Run. Every exported method hands a command to that
// loop, so handlers never interleave and no locks are needed. Commands
// submitted from one goroutine are processed in submission order.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"location-relay/geohash"
)

// ErrStopped is returned once the relay loop has exited.
var ErrStopped = errors.New("relay stopped")

const defaultCommandBuffer = 1024

type Options struct {
	Mode          Mode
	StrictIngest  bool
	CommandBuffer int
	Sinks         []Sink
	Logger        *slog.Logger
	// Now stamps location records; defaults to time.Now.
	Now func() time.Time
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
	Records     int `json:"records"`
}

type Relay struct {
	cmds chan func()
	done chan struct{}

	store      *Store
	registry   *Registry
	index      *geohash.Index
	dispatcher *dispatcher

	strictIngest bool
	log          *slog.Logger
}

func New(opts Options) *Relay {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	buf := opts.CommandBuffer
	if buf <= 0 {
		buf = defaultCommandBuffer
	}
	return &Relay{
		cmds:         make(chan func(), buf),
		done:         make(chan struct{}),
		store:        NewStore(opts.Now),
		registry:     NewRegistry(),
		index:        geohash.NewIndex(),
		dispatcher:   newDispatcher(opts.Mode, opts.Sinks, log),
		strictIngest: opts.StrictIngest,
		log:          log,
	}
}

// Run processes commands until ctx is cancelled. It must be called exactly once.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)

	r.log.Info("relay loop started", "action", "relay_started",
		"mode", string(r.dispatcher.mode), "strict_ingest", r.strictIngest)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay loop stopped", "action", "relay_stopped")
			return
		case cmd := <-r.cmds:
			cmd()
		}
	}
}

// Done is closed when Run returns.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) submit(ctx context.Context, cmd func()) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}

	select {
	case r.cmds <- cmd:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and waits for it to finish.
func (r *Relay) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := r.submit(ctx, func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect attaches a connection so it receives broadcasts.
func (r *Relay) Connect(ctx context.Context, c Conn) error {
	return r.submit(ctx, func() {
		r.dispatcher.attach(c)
		r.log.Debug("connection attached", "action", "conn_attached", "conn_id", c.ID())
	})
}

// Disconnect detaches a connection and tears down every driver session it
// still holds, as if each driver had stopped tracking. Repeated calls for the
// same connection are no-ops.
func (r *Relay) Disconnect(ctx context.Context, c Conn) error {
	return r.submit(ctx, func() { r.disconnect(c) })
}

// Stats returns connection, session and record counts.
func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.call(ctx, func() {
		st = Stats{
			Connections: r.dispatcher.len(),
			Sessions:    r.registry.Len(),
			Records:     r.store.Len(),
		}
	})
	return st, err
}
