package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicySucceedsEventually(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond}

	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrNotConnected
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyGivesUp(t *testing.T) {
	calls := 0
	var gaveUp error
	p := RetryPolicy{
		MaxAttempts: 3,
		Interval:    time.Millisecond,
		OnGiveUp:    func(err error) { gaveUp = err },
	}

	err := p.Do(context.Background(), func() error {
		calls++
		return ErrNotConnected
	})
	require.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, 3, calls)
	assert.Equal(t, err, gaveUp)
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	called := false
	p := RetryPolicy{MaxAttempts: 10, Interval: time.Hour, OnGiveUp: func(error) { called = true }}
	err := p.Do(ctx, func() error {
		calls++
		return errors.New("nope")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.False(t, called)
}

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, d := range want {
		assert.Equal(t, d, b.Delay(attempt), "attempt %d", attempt)
	}
}
