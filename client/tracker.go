package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"location-relay/models"
)

type TrackerOptions struct {
	// PollInterval between location requests; defaults to five seconds.
	PollInterval time.Duration
	// Request governs the first request while the socket comes up.
	Request RetryPolicy
	// OnChange is called after the selection or its position changes.
	OnChange func(TrackerSnapshot)
	Logger   *slog.Logger
}

// TrackerSnapshot is the selected driver and its last known position.
type TrackerSnapshot struct {
	DriverID string                 `json:"driverId"`
	Location *models.LocationRecord `json:"location,omitempty"`
}

// Tracker follows one selected driver by requesting its location on
// selection and then on every poll tick.
type Tracker struct {
	sock  Socket
	state *StateFile
	opts  TrackerOptions
	log   *slog.Logger

	mu       sync.Mutex
	selected string
	location *models.LocationRecord
	cancel   context.CancelFunc
}

func NewTracker(sock Socket, state *StateFile, opts TrackerOptions) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Request.MaxAttempts == 0 {
		opts.Request = DefaultRequestRetry
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	t := &Tracker{sock: sock, state: state, opts: opts, log: log}
	sock.On(models.EventLocation, t.onLocation)
	sock.On(models.EventLocationStop, t.onStop)
	return t
}

// Track selects driverID, remembers the selection and starts polling.
func (t *Tracker) Track(driverID string) error {
	if driverID == "" {
		return ErrNoDriver
	}
	return t.track(driverID, true)
}

// Hydrate re-selects the driver remembered from a previous run.
func (t *Tracker) Hydrate() error {
	var st TrackerState
	found, err := t.state.Load(&st)
	if err != nil || !found || st.DriverID == "" {
		return err
	}
	return t.track(st.DriverID, false)
}

// Stop drops the selection and stops polling.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	t.resetLocked()
	err := t.state.Clear()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
	return err
}

func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() TrackerSnapshot {
	s := TrackerSnapshot{DriverID: t.selected}
	if t.location != nil {
		rec := *t.location
		s.Location = &rec
	}
	return s
}

func (t *Tracker) track(driverID string, save bool) error {
	t.mu.Lock()
	if save {
		if err := t.state.Save(TrackerState{DriverID: driverID}); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.selected = driverID
	t.location = nil
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
	t.log.Info("tracking driver", "action", "track_started", "driver_id", driverID)
	go t.poll(ctx, driverID)
	return nil
}

func (t *Tracker) poll(ctx context.Context, driverID string) {
	request := func() error {
		if !t.sock.Connected() {
			return ErrNotConnected
		}
		return t.sock.Emit(models.EventRequestLocation, models.DriverRef{DriverID: driverID})
	}

	if err := t.opts.Request.Do(ctx, request); err != nil && ctx.Err() == nil {
		t.log.Warn("location request not sent", "action", "request_failed", "driver_id", driverID, "error", err)
	}

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.sock.Connected() {
				continue
			}
			if err := request(); err != nil {
				t.log.Debug("poll failed", "action", "poll_failed", "driver_id", driverID, "error", err)
			}
		}
	}
}

func (t *Tracker) onLocation(env models.Envelope) {
	var rec models.LocationRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return
	}

	t.mu.Lock()
	if t.selected == "" || rec.DriverID != t.selected {
		t.mu.Unlock()
		return
	}
	t.location = &rec
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

func (t *Tracker) onStop(env models.Envelope) {
	var ref models.DriverRef
	if err := json.Unmarshal(env.Data, &ref); err != nil {
		return
	}

	if !t.clearIf(ref.DriverID) {
		return
	}
	t.log.Info("driver stopped tracking", "action", "track_ended", "driver_id", ref.DriverID)
}

// clearIf drops the selection only while driverID is still the one selected.
// Selection and state file change under the same lock.
func (t *Tracker) clearIf(driverID string) bool {
	t.mu.Lock()
	if t.selected == "" || t.selected != driverID {
		t.mu.Unlock()
		return false
	}
	t.resetLocked()
	if err := t.state.Clear(); err != nil {
		t.log.Warn("clear selection", "action", "state_clear_failed", "error", err)
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
	return true
}

func (t *Tracker) resetLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.selected = ""
	t.location = nil
}

func (t *Tracker) notify(s TrackerSnapshot) {
	if t.opts.OnChange != nil {
		t.opts.OnChange(s)
	}
}
