// Command relayctl simulates drivers and trackers against a running relay.
//
//	relayctl driver -id D1 -lat 12.9716 -lng 77.5946
//	relayctl track -id D1
//	relayctl buses -tracker 42
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"location-relay/client"
	"location-relay/config"
	"location-relay/logging"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: relayctl <driver|track|buses> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "driver":
		err = runDriver(ctx, os.Args[2:])
	case "track":
		err = runTracker(ctx, os.Args[2:])
	case "buses":
		err = runBuses(ctx, os.Args[2:])
	default:
		usage()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "relayctl:", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	return logging.New(config.LogConfig{Level: level, Format: "text"}, os.Stderr)
}

// walk drifts around a starting point like a slow-moving vehicle.
type walk struct {
	mu       sync.Mutex
	lat, lng float64
	step     float64
}

func (w *walk) Position(context.Context) (float64, float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lat += (rand.Float64()*2 - 1) * w.step
	w.lng += (rand.Float64()*2 - 1) * w.step
	return w.lat, w.lng, nil
}

// serve runs conn until ctx is done, then runs cleanup while the socket is
// still up and hangs up.
func serve(ctx context.Context, conn *client.Conn, cleanup func()) error {
	done := make(chan error, 1)
	go func() { done <- conn.Run(context.Background()) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	cleanup()
	conn.Close()
	return <-done
}

func runDriver(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("driver", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:5000/ws", "relay socket URL")
	id := fs.String("id", "", "driver id; empty resumes from the state file")
	lat := fs.Float64("lat", 12.9716, "starting latitude")
	lng := fs.Float64("lng", 77.5946, "starting longitude")
	step := fs.Float64("step", 0.0005, "max drift per sample in degrees")
	interval := fs.Duration("interval", 5*time.Second, "sampling interval")
	statePath := fs.String("state", "driver-state.json", "tracking state file")
	keep := fs.Bool("keep", false, "keep tracking state on exit so the next run resumes")
	level := fs.String("log-level", "info", "log level")
	fs.Parse(args)

	log := newLogger(*level)
	conn := client.NewConn(client.Options{URL: *url, Logger: log})
	driver := client.NewDriverTracker(conn, &client.StateFile{Path: *statePath},
		&walk{lat: *lat, lng: *lng, step: *step},
		client.DriverOptions{Interval: *interval, Logger: log})

	if *id != "" {
		if err := driver.Start(*id); err != nil {
			return err
		}
	} else if err := driver.Hydrate(); err != nil {
		return err
	}
	if !driver.Snapshot().IsTracking {
		return errors.New("no driver id given and nothing to resume")
	}

	return serve(ctx, conn, func() {
		if *keep {
			return
		}
		if err := driver.Stop(); err != nil {
			log.Warn("stop tracking", "error", err)
		}
	})
}

func runTracker(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:5000/ws", "relay socket URL")
	id := fs.String("id", "", "driver id to follow; empty resumes from the state file")
	poll := fs.Duration("poll", 5*time.Second, "polling interval")
	statePath := fs.String("state", "tracker-state.json", "selection state file")
	level := fs.String("log-level", "info", "log level")
	fs.Parse(args)

	log := newLogger(*level)
	enc := json.NewEncoder(os.Stdout)
	conn := client.NewConn(client.Options{URL: *url, Logger: log})
	tracker := client.NewTracker(conn, &client.StateFile{Path: *statePath}, client.TrackerOptions{
		PollInterval: *poll,
		Logger:       log,
		OnChange: func(s client.TrackerSnapshot) {
			enc.Encode(s)
		},
	})

	var err error
	if *id != "" {
		err = tracker.Track(*id)
	} else {
		err = tracker.Hydrate()
	}
	if err != nil {
		return err
	}

	return serve(ctx, conn, func() {})
}

func runBuses(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("buses", flag.ExitOnError)
	base := fs.String("api", "http://localhost:5000", "relay HTTP base URL")
	trackerID := fs.Int64("tracker", 0, "list the directory for this tracker instead of live buses")
	fs.Parse(args)

	a := &client.API{BaseURL: *base}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *trackerID != 0 {
		buses, err := a.TrackerBuses(ctx, *trackerID)
		if err != nil {
			return err
		}
		return enc.Encode(buses)
	}

	live, err := a.Buses(ctx)
	if err != nil {
		return err
	}
	return enc.Encode(live)
}
