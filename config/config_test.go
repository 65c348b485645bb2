package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":8080\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "all", cfg.Relay.BroadcastMode)
	assert.False(t, cfg.Relay.StrictIngest)
	assert.Equal(t, 256, cfg.Relay.SendBuffer)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.DB.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "location_fanout", cfg.AMQP.Exchange)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
relay:
  broadcast_mode: topic
  strict_ingest: true
log:
  level: debug
db:
  enabled: true
  user: relay
  password: secret
  dbname: buses
  host: db
  port: "5432"
redis:
  enabled: true
  addr: redis:6379
  ttl: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "topic", cfg.Relay.BroadcastMode)
	assert.True(t, cfg.Relay.StrictIngest)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "host=db port=5432 user=relay password=secret dbname=buses sslmode=disable", cfg.DB.ConnString())
	assert.Equal(t, "postgres://relay:secret@db:5432/buses?sslmode=disable", cfg.DB.URL())
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "relay:\n  broadcast_mode: all\n")
	t.Setenv("RELAY_RELAY_BROADCAST_MODE", "topic")
	t.Setenv("RELAY_SERVER_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "topic", cfg.Relay.BroadcastMode)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown broadcast mode", "relay:\n  broadcast_mode: rooms\n"},
		{"unknown log level", "log:\n  level: verbose\n"},
		{"zero send buffer", "relay:\n  send_buffer: 0\n"},
		{"db enabled without host", "db:\n  enabled: true\n  user: relay\n  dbname: buses\n"},
		{"amqp enabled without url", "amqp:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestInitConfig(t *testing.T) {
	t.Cleanup(func() { Cfg = nil })
	require.NoError(t, InitConfig(writeConfig(t, "log:\n  format: text\n")))
	require.NotNil(t, Cfg)
	assert.Equal(t, "text", Cfg.Log.Format)
}
