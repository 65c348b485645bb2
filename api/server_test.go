package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"location-relay/relay"
)

var testClock = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	relay *relay.Relay
	api   *Server
	srv   *httptest.Server
}

func newTestEnv(t *testing.T, opts relay.Options, buses BusLister, apiOpts Options) *testEnv {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testClock }
	}
	r := relay.New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	if apiOpts.AllowedOrigins == nil {
		apiOpts.AllowedOrigins = []string{"*"}
	}
	s := NewServer(r, buses, apiOpts, discardLogger())
	srv := httptest.NewServer(s.Routes())

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-r.Done()
	})
	return &testEnv{relay: r, api: s, srv: srv}
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (e *testEnv) stats(t *testing.T) relay.Stats {
	t.Helper()
	st, err := e.relay.Stats(context.Background())
	require.NoError(t, err)
	return st
}
