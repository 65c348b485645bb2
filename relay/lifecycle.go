package relay

import "context"

// StartTracking registers c as the connection for driverID. A later start for
// the same driver replaces the mapping without error.
func (r *Relay) StartTracking(ctx context.Context, c Conn, driverID string) error {
	return r.submit(ctx, func() { r.startTracking(c, driverID) })
}

// StopTracking ends the driver's session, drops its location and broadcasts
// a stop. Stopping a driver that is not tracking does nothing.
func (r *Relay) StopTracking(ctx context.Context, driverID string) error {
	return r.submit(ctx, func() { r.stopTracking(driverID) })
}

func (r *Relay) startTracking(c Conn, driverID string) {
	if driverID == "" {
		r.log.Debug("start without driver id", "action", "start_rejected", "conn_id", c.ID())
		return
	}

	previous, replaced := r.registry.Register(driverID, c.ID())
	if replaced && previous != c.ID() {
		r.log.Info("driver session moved to new connection", "action", "tracking_superseded",
			"driver_id", driverID, "conn_id", c.ID(), "previous_conn_id", previous)
		return
	}
	r.log.Info("driver started tracking", "action", "tracking_started",
		"driver_id", driverID, "conn_id", c.ID())
}

func (r *Relay) stopTracking(driverID string) {
	if !r.teardown(driverID) {
		r.log.Debug("stop for idle driver", "action", "stop_ignored", "driver_id", driverID)
		return
	}
	r.log.Info("driver stopped tracking", "action", "tracking_stopped", "driver_id", driverID)
}

func (r *Relay) disconnect(c Conn) {
	r.dispatcher.detach(c.ID())

	for {
		driverID, ok := r.registry.FindByConnection(c.ID())
		if !ok {
			break
		}
		r.teardown(driverID)
		r.log.Info("driver lost connection", "action", "tracking_dropped",
			"driver_id", driverID, "conn_id", c.ID())
	}
	r.log.Debug("connection detached", "action", "conn_detached", "conn_id", c.ID())
}

// teardown removes session, record and index entry in one step and
// broadcasts the stop. It reports false when there was nothing to remove.
func (r *Relay) teardown(driverID string) bool {
	hadSession := r.registry.Unregister(driverID)
	hadRecord := r.store.Remove(driverID)
	r.index.Remove(driverID)
	if !hadSession && !hadRecord {
		return false
	}
	r.dispatcher.broadcastStop(driverID)
	return true
}
