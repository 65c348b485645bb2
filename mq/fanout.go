package mq

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"location-relay/models"
)

const publishTimeout = 5 * time.Second

// Publisher is the subset of *amqp.Channel the fanout needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Fanout publishes every location update and stop to a fanout exchange so
// services outside the relay can follow live positions. Events are queued
// and published by Run; the relay loop never waits on the broker.
type Fanout struct {
	pub      Publisher
	exchange string
	frames   chan outbound
	log      *slog.Logger
}

type outbound struct {
	driverID string
	event    string
	body     []byte
}

func NewFanout(pub Publisher, exchange string, buffer int, log *slog.Logger) *Fanout {
	if buffer <= 0 {
		buffer = 1
	}
	return &Fanout{
		pub:      pub,
		exchange: exchange,
		frames:   make(chan outbound, buffer),
		log:      log,
	}
}

func (f *Fanout) LocationUpdated(rec models.LocationRecord) {
	f.enqueue(rec.DriverID, models.EventLocation, rec)
}

func (f *Fanout) TrackingStopped(driverID string) {
	f.enqueue(driverID, models.EventLocationStop, models.DriverRef{DriverID: driverID})
}

func (f *Fanout) enqueue(driverID, event string, payload any) {
	body, err := models.Encode(event, payload)
	if err != nil {
		f.log.Error("encode fanout event", "action", "fanout_encode_failed", "driver_id", driverID, "error", err)
		return
	}
	select {
	case f.frames <- outbound{driverID: driverID, event: event, body: body}:
	default:
		f.log.Warn("fanout queue full", "action", "fanout_dropped", "driver_id", driverID, "event", event)
	}
}

// Run publishes queued events until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-f.frames:
			if err := f.publish(ctx, out); err != nil {
				f.log.Error("fanout publish failed", "action", "fanout_failed",
					"driver_id", out.driverID, "event", out.event, "error", err)
			}
		}
	}
}

func (f *Fanout) publish(ctx context.Context, out outbound) error {
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return f.pub.PublishWithContext(
		publishCtx,
		f.exchange,
		out.driverID, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Type:        out.event,
			Body:        out.body,
			Timestamp:   time.Now(),
		},
	)
}
