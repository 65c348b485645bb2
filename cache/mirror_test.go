package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"location-relay/config"
	"location-relay/models"
)

type fakeRedis struct {
	mu        sync.Mutex
	values    map[string]string
	ttls      map[string]time.Duration
	published []string
	failSet   bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, channel+" "+string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return redis.NewStatusResult("", errors.New("READONLY"))
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) snapshot() (map[string]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := make(map[string]string, len(f.values))
	for k, v := range f.values {
		values[k] = v
	}
	return values, append([]string(nil), f.published...)
}

var testRedisConfig = config.RedisConfig{
	Channel:   "relay:locations",
	KeyPrefix: "relay:location:",
	TTL:       time.Minute,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runMirror(t *testing.T, m *Mirror) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMirrorWritesLatestLocation(t *testing.T) {
	rdb := newFakeRedis()
	m := NewMirror(rdb, testRedisConfig, 16, discardLogger())
	runMirror(t, m)

	rec := models.LocationRecord{DriverID: "DRV-1", Lat: 12.9, Lng: 77.6, ObservedAt: time.Now().UTC()}
	m.LocationUpdated(rec)

	require.Eventually(t, func() bool {
		_, published := rdb.snapshot()
		return len(published) == 1
	}, time.Second, 5*time.Millisecond)

	values, published := rdb.snapshot()
	var stored models.LocationRecord
	require.NoError(t, json.Unmarshal([]byte(values["relay:location:DRV-1"]), &stored))
	assert.Equal(t, "DRV-1", stored.DriverID)
	assert.Equal(t, 12.9, stored.Lat)
	assert.Contains(t, published[0], "relay:locations ")
	assert.Contains(t, published[0], `"type":"location:update"`)

	rdb.mu.Lock()
	assert.Equal(t, time.Minute, rdb.ttls["relay:location:DRV-1"])
	rdb.mu.Unlock()
}

func TestMirrorDeletesOnStop(t *testing.T) {
	rdb := newFakeRedis()
	m := NewMirror(rdb, testRedisConfig, 16, discardLogger())
	runMirror(t, m)

	m.LocationUpdated(models.LocationRecord{DriverID: "DRV-1", Lat: 1, Lng: 1})
	m.TrackingStopped("DRV-1")

	require.Eventually(t, func() bool {
		_, published := rdb.snapshot()
		return len(published) == 2
	}, time.Second, 5*time.Millisecond)

	values, published := rdb.snapshot()
	assert.NotContains(t, values, "relay:location:DRV-1")

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(published[1][len("relay:locations "):]), &ev))
	assert.Equal(t, models.EventLocationStop, ev.Type)
	assert.Equal(t, "DRV-1", ev.DriverID)
	assert.Nil(t, ev.Location)
}

func TestMirrorSkipsPublishWhenWriteFails(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failSet = true
	m := NewMirror(rdb, testRedisConfig, 16, discardLogger())

	err := m.write(context.Background(), Event{Type: models.EventLocation, DriverID: "DRV-1", Location: &models.LocationRecord{DriverID: "DRV-1"}})
	assert.Error(t, err)

	_, published := rdb.snapshot()
	assert.Empty(t, published)
}

func TestMirrorDropsWhenQueueFull(t *testing.T) {
	rdb := newFakeRedis()
	m := NewMirror(rdb, testRedisConfig, 1, discardLogger())

	// Not running, so the second event cannot be queued.
	m.TrackingStopped("DRV-1")
	m.TrackingStopped("DRV-2")
	assert.Len(t, m.events, 1)
	assert.Equal(t, "relay:location:DRV-9", m.Key("DRV-9"))
}
