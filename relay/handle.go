package relay

import (
	"context"
	"encoding/json"
	"errors"

	"location-relay/geohash"
	"location-relay/models"
)

var errNoPayload = errors.New("missing payload")

// Handle decodes an inbound frame from c and submits the matching command.
// Malformed frames and unknown events are dropped; the only errors returned
// are ErrStopped and context errors, after which the caller should hang up.
func (r *Relay) Handle(ctx context.Context, c Conn, env models.Envelope) error {
	switch env.Type {
	case models.EventStartTracking:
		var p models.DriverRef
		if !r.decode(c, env, &p) {
			return nil
		}
		return r.StartTracking(ctx, c, p.DriverID)

	case models.EventLocationUpdate:
		var p models.LocationSample
		if !r.decode(c, env, &p) {
			return nil
		}
		if p.Lat == nil || p.Lng == nil {
			r.log.Debug("location without coordinates", "action", "location_rejected",
				"conn_id", c.ID(), "driver_id", p.DriverID)
			return nil
		}
		return r.Ingest(ctx, p.DriverID, *p.Lat, *p.Lng)

	case models.EventStopTracking:
		var p models.DriverRef
		if !r.decode(c, env, &p) {
			return nil
		}
		return r.StopTracking(ctx, p.DriverID)

	case models.EventRequestLocation:
		var p models.DriverRef
		if !r.decode(c, env, &p) {
			return nil
		}
		return r.RequestLocation(ctx, c, p.DriverID)

	case models.EventRequestAllBuses:
		return r.RequestAllBuses(ctx, c)

	case models.EventRequestNearbyBuses:
		var q models.NearbyQuery
		if !r.decode(c, env, &q) {
			return nil
		}
		if q.Lat == nil || q.Lng == nil || !ValidCoordinate(*q.Lat, *q.Lng) {
			r.log.Debug("nearby query without valid centre", "action", "nearby_rejected", "conn_id", c.ID())
			return nil
		}
		return r.RequestNearby(ctx, c, geohash.Point{Lat: *q.Lat, Lng: *q.Lng}, q.RadiusKm)

	case models.EventSubscribe:
		var p models.DriverRef
		if !r.decode(c, env, &p) {
			return nil
		}
		return r.Subscribe(ctx, c, p.DriverID)

	case models.EventUnsubscribe:
		var p models.DriverRef
		if !r.decode(c, env, &p) {
			return nil
		}
		return r.Unsubscribe(ctx, c, p.DriverID)

	default:
		r.log.Debug("unknown event", "action", "event_ignored", "conn_id", c.ID(), "event", env.Type)
		return nil
	}
}

func (r *Relay) decode(c Conn, env models.Envelope, v any) bool {
	err := errNoPayload
	if len(env.Data) > 0 {
		err = json.Unmarshal(env.Data, v)
	}
	if err != nil {
		r.log.Debug("malformed payload", "action", "payload_rejected",
			"conn_id", c.ID(), "event", env.Type, "error", err)
		return false
	}
	return true
}
