package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"location-relay/config"
)

const (
	connectAttempts = 10
	maxRetryDelay   = 30 * time.Second
)

// RabbitMQ holds one connection and channel to the broker.
type RabbitMQ struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials the broker, retrying with growing delays, and declares the
// fanout exchange location events are published to.
func Connect(ctx context.Context, cfg config.AMQPConfig, log *slog.Logger) (*RabbitMQ, error) {
	delay := time.Second
	var lastErr error

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		mq, err := dial(cfg)
		if err == nil {
			log.Info("connected to rabbitmq", "action", "rabbitmq_connected", "attempt", attempt)
			return mq, nil
		}
		lastErr = err
		log.Warn("rabbitmq connection attempt failed", "action", "rabbitmq_connect_retry",
			"attempt", attempt, "max_attempts", connectAttempts, "retry_in", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * 1.5)
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", connectAttempts, lastErr)
}

func dial(cfg config.AMQPConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", cfg.Exchange, err)
	}

	return &RabbitMQ{conn: conn, ch: ch}, nil
}

// Channel returns the publishing channel.
func (mq *RabbitMQ) Channel() *amqp.Channel {
	return mq.ch
}

func (mq *RabbitMQ) Close() error {
	if err := mq.ch.Close(); err != nil {
		_ = mq.conn.Close()
		return err
	}
	return mq.conn.Close()
}
