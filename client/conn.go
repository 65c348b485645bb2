// Package client is the companion used by driver and tracker applications:
// a reconnecting socket, resumable driver tracking, and a polling tracker.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"location-relay/models"
)

const writeWait = 10 * time.Second

// Handler receives inbound frames of one event type.
type Handler func(env models.Envelope)

// Socket is what trackers need from a connection.
type Socket interface {
	Emit(eventType string, payload any) error
	Connected() bool
	On(eventType string, h Handler)
	OnConnect(fn func())
}

type Options struct {
	// URL of the relay socket, e.g. ws://localhost:5000/ws.
	URL    string
	Dialer *websocket.Dialer
	// MaxReconnects bounds consecutive failed dials after a drop.
	MaxReconnects int
	Backoff       Backoff
	Logger        *slog.Logger
}

// Conn keeps a socket to the relay open, redialing after drops.
// Register handlers and hooks before calling Run.
type Conn struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	ws        *websocket.Conn
	handlers  map[string][]Handler
	onConnect []func()

	writeMu sync.Mutex

	closeOnce sync.Once
	closing   chan struct{}
}

func NewConn(opts Options) *Conn {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 5
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Conn{
		opts:     opts,
		log:      log.With("url", opts.URL),
		handlers: make(map[string][]Handler),
		closing:  make(chan struct{}),
	}
}

func (c *Conn) On(eventType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

// OnConnect registers fn to run after every successful (re)connect.
func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Emit sends one event. It fails with ErrNotConnected while the socket is down.
func (c *Conn) Emit(eventType string, payload any) error {
	frame, err := models.Encode(eventType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", eventType, err)
	}
	return nil
}

// Close hangs up and makes Run return nil.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closing) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		c.ws.Close()
	}
}

// Run dials, serves and redials until Close is called, ctx is done, or
// MaxReconnects consecutive dials fail.
func (c *Conn) Run(ctx context.Context) error {
	attempt := 0
	for {
		ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			if stop, runErr := c.stopped(ctx); stop {
				return runErr
			}
			if attempt >= c.opts.MaxReconnects {
				return fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
			}
			delay := c.opts.Backoff.Delay(attempt)
			attempt++
			c.log.Warn("dial failed", "action", "dial_failed", "attempt", attempt, "retry_in", delay, "error", err)
			if !c.sleep(ctx, delay) {
				_, runErr := c.stopped(ctx)
				return runErr
			}
			continue
		}

		attempt = 0
		err = c.serve(ctx, ws)
		if stop, runErr := c.stopped(ctx); stop {
			return runErr
		}
		c.log.Warn("connection lost", "action", "conn_lost", "error", err)

		attempt = 1
		if !c.sleep(ctx, c.opts.Backoff.Delay(0)) {
			_, runErr := c.stopped(ctx)
			return runErr
		}
	}
}

func (c *Conn) stopped(ctx context.Context) (bool, error) {
	select {
	case <-c.closing:
		return true, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}
	return false, nil
}

func (c *Conn) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.closing:
		return false
	}
}

func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	c.mu.Lock()
	select {
	case <-c.closing:
		c.mu.Unlock()
		ws.Close()
		return nil
	default:
	}
	c.ws = ws
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-served:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
	}()

	c.log.Info("connected", "action", "connected")
	for _, fn := range hooks {
		fn()
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("malformed frame", "action", "frame_rejected", "error", err)
			continue
		}

		c.mu.Lock()
		hs := c.handlers[env.Type]
		c.mu.Unlock()
		for _, h := range hs {
			h(env)
		}
	}
}
