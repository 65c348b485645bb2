package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when emitting while the socket is down.
	ErrNotConnected = errors.New("socket not connected")
	// ErrReconnectExhausted is returned by Conn.Run once every reconnect attempt failed.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrGaveUp is returned by RetryPolicy.Do after the last attempt failed.
	ErrGaveUp = errors.New("retry gave up")
)

// RetryPolicy repeats an action a bounded number of times at a fixed interval.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	// OnGiveUp is called with the final error when every attempt failed.
	OnGiveUp func(error)
}

// DefaultRequestRetry waits up to five seconds for the socket to come up.
var DefaultRequestRetry = RetryPolicy{MaxAttempts: 50, Interval: 100 * time.Millisecond}

// Do calls fn until it succeeds, the attempts run out, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		t := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	err = fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempts, err)
	if p.OnGiveUp != nil {
		p.OnGiveUp(err)
	}
	return err
}

// Backoff doubles from Initial up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var DefaultBackoff = Backoff{Initial: time.Second, Max: 5 * time.Second}

// Delay returns the wait before the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
