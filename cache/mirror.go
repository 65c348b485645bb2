package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"location-relay/config"
	"location-relay/models"
)

// Writer is the subset of the redis client the mirror needs.
type Writer interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Event is what the mirror publishes on its channel.
type Event struct {
	Type     string                 `json:"type"`
	DriverID string                 `json:"driverId"`
	Location *models.LocationRecord `json:"location,omitempty"`
}

// Mirror copies the relay's live locations into redis: one key per tracking
// driver holding its latest record, plus a pub/sub event per change. Events
// are queued and written by Run so the relay loop never waits on redis.
type Mirror struct {
	rdb       Writer
	channel   string
	keyPrefix string
	ttl       time.Duration
	events    chan Event
	log       *slog.Logger
}

func NewMirror(rdb Writer, cfg config.RedisConfig, buffer int, log *slog.Logger) *Mirror {
	if buffer <= 0 {
		buffer = 1
	}
	return &Mirror{
		rdb:       rdb,
		channel:   cfg.Channel,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		events:    make(chan Event, buffer),
		log:       log,
	}
}

// LocationUpdated queues an update. It drops the event when the queue is full.
func (m *Mirror) LocationUpdated(rec models.LocationRecord) {
	m.enqueue(Event{Type: models.EventLocation, DriverID: rec.DriverID, Location: &rec})
}

// TrackingStopped queues a stop. It drops the event when the queue is full.
func (m *Mirror) TrackingStopped(driverID string) {
	m.enqueue(Event{Type: models.EventLocationStop, DriverID: driverID})
}

func (m *Mirror) enqueue(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn("redis mirror queue full", "action", "mirror_dropped",
			"driver_id", ev.DriverID, "event", ev.Type)
	}
}

// Key returns the redis key holding driverID's latest record.
func (m *Mirror) Key(driverID string) string {
	return m.keyPrefix + driverID
}

// Run writes queued events until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			if err := m.write(ctx, ev); err != nil {
				m.log.Error("redis mirror write failed", "action", "mirror_failed",
					"driver_id", ev.DriverID, "event", ev.Type, "error", err)
			}
		}
	}
}

func (m *Mirror) write(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if ev.Location != nil {
		rec, err := json.Marshal(ev.Location)
		if err != nil {
			return err
		}
		if err := m.rdb.Set(ctx, m.Key(ev.DriverID), rec, m.ttl).Err(); err != nil {
			return err
		}
	} else if err := m.rdb.Del(ctx, m.Key(ev.DriverID)).Err(); err != nil {
		return err
	}

	return m.rdb.Publish(ctx, m.channel, payload).Err()
}
