package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"location-relay/models"
)

// ErrNoDriver is returned when tracking is started without a driver id.
var ErrNoDriver = errors.New("driver id required")

// PositionSource yields the device's current position.
type PositionSource interface {
	Position(ctx context.Context) (lat, lng float64, err error)
}

// PositionFunc adapts a function to PositionSource.
type PositionFunc func(ctx context.Context) (float64, float64, error)

func (f PositionFunc) Position(ctx context.Context) (float64, float64, error) { return f(ctx) }

type DriverOptions struct {
	// Interval between position samples; defaults to five seconds.
	Interval time.Duration
	// Emit retries location updates while the socket is down.
	Emit   RetryPolicy
	Logger *slog.Logger
	Now    func() time.Time
}

// DriverSnapshot is the tracker's current view.
type DriverSnapshot struct {
	IsTracking bool
	DriverID   string
	HasFix     bool
	Lat        float64
	Lng        float64
}

// DriverTracker streams a driver's position while tracking is on and
// persists the tracking descriptor so it survives restarts.
type DriverTracker struct {
	sock   Socket
	state  *StateFile
	source PositionSource
	opts   DriverOptions
	log    *slog.Logger

	mu       sync.Mutex
	tracking bool
	driverID string
	fix      *[2]float64
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewDriverTracker(sock Socket, state *StateFile, source PositionSource, opts DriverOptions) *DriverTracker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Emit.MaxAttempts == 0 {
		opts.Emit = DefaultRequestRetry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &DriverTracker{
		sock:   sock,
		state:  state,
		source: source,
		opts:   opts,
		log:    log,
	}
	sock.OnConnect(d.resume)
	return d
}

// resume re-announces the session after a reconnect.
func (d *DriverTracker) resume() {
	d.mu.Lock()
	tracking, driverID := d.tracking, d.driverID
	d.mu.Unlock()
	if !tracking {
		return
	}
	if err := d.sock.Emit(models.EventStartTracking, models.DriverRef{DriverID: driverID}); err != nil {
		d.log.Warn("re-announce failed", "action", "start_emit_failed", "driver_id", driverID, "error", err)
	}
}

// Start begins tracking driverID. Starting the driver already being tracked
// is a no-op; starting another one replaces it.
func (d *DriverTracker) Start(driverID string) error {
	if driverID == "" {
		return ErrNoDriver
	}

	d.mu.Lock()
	if d.tracking && d.driverID == driverID {
		d.mu.Unlock()
		return nil
	}
	d.stopSamplerLocked()
	d.tracking = true
	d.driverID = driverID
	d.fix = nil
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	if err := d.state.Save(DriverState{IsTracking: true, DriverID: driverID, StartedAt: d.opts.Now()}); err != nil {
		d.log.Warn("persist tracking state", "action", "state_save_failed", "error", err)
	}

	// A socket that is still down announces the session from the connect hook.
	if err := d.sock.Emit(models.EventStartTracking, models.DriverRef{DriverID: driverID}); err != nil {
		d.log.Debug("start deferred until connected", "action", "start_deferred", "driver_id", driverID, "error", err)
	}

	d.wg.Add(1)
	go d.sample(ctx, driverID)

	d.log.Info("tracking started", "action", "tracking_started", "driver_id", driverID)
	return nil
}

// Stop ends tracking, tells the relay, and forgets the descriptor.
func (d *DriverTracker) Stop() error {
	d.mu.Lock()
	if !d.tracking {
		d.mu.Unlock()
		return nil
	}
	driverID := d.driverID
	d.stopSamplerLocked()
	d.tracking = false
	d.driverID = ""
	d.fix = nil
	d.mu.Unlock()

	d.wg.Wait()

	if err := d.sock.Emit(models.EventStopTracking, models.DriverRef{DriverID: driverID}); err != nil {
		d.log.Warn("stop not delivered", "action", "stop_emit_failed", "driver_id", driverID, "error", err)
	}
	if err := d.state.Clear(); err != nil {
		return err
	}

	d.log.Info("tracking stopped", "action", "tracking_stopped", "driver_id", driverID)
	return nil
}

// Hydrate resumes tracking recorded by a previous run.
func (d *DriverTracker) Hydrate() error {
	var st DriverState
	found, err := d.state.Load(&st)
	if err != nil || !found {
		return err
	}
	if !st.IsTracking || st.DriverID == "" {
		return nil
	}
	return d.Start(st.DriverID)
}

func (d *DriverTracker) Snapshot() DriverSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := DriverSnapshot{IsTracking: d.tracking, DriverID: d.driverID}
	if d.fix != nil {
		s.HasFix = true
		s.Lat, s.Lng = d.fix[0], d.fix[1]
	}
	return s
}

func (d *DriverTracker) stopSamplerLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *DriverTracker) sample(ctx context.Context, driverID string) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		d.sampleOnce(ctx, driverID)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *DriverTracker) sampleOnce(ctx context.Context, driverID string) {
	lat, lng, err := d.source.Position(ctx)
	if err != nil {
		// Next tick tries again.
		d.log.Debug("no position fix", "action", "fix_failed", "error", err)
		return
	}

	d.mu.Lock()
	if d.driverID == driverID {
		d.fix = &[2]float64{lat, lng}
	}
	d.mu.Unlock()

	sample := models.LocationSample{DriverID: driverID, Lat: &lat, Lng: &lng}
	err = d.opts.Emit.Do(ctx, func() error {
		return d.sock.Emit(models.EventLocationUpdate, sample)
	})
	if err != nil && ctx.Err() == nil {
		d.log.Warn("location not delivered", "action", "location_emit_failed", "driver_id", driverID, "error", err)
	}
}
