package relay

import (
	"context"
	"math"

	"location-relay/geohash"
)

// Ingest records a position sample for driverID and broadcasts it. Samples
// with non-finite coordinates are dropped without a trace for the sender.
func (r *Relay) Ingest(ctx context.Context, driverID string, lat, lng float64) error {
	return r.submit(ctx, func() { r.ingest(driverID, lat, lng) })
}

func (r *Relay) ingest(driverID string, lat, lng float64) {
	if driverID == "" || !Finite(lat, lng) {
		r.log.Debug("location rejected", "action", "location_rejected",
			"driver_id", driverID, "lat", lat, "lng", lng)
		return
	}
	if r.strictIngest {
		if _, ok := r.registry.Lookup(driverID); !ok {
			r.log.Debug("location without session", "action", "location_rejected",
				"driver_id", driverID)
			return
		}
	}

	rec := r.store.Put(driverID, lat, lng)
	r.index.Upsert(driverID, geohash.Point{Lat: lat, Lng: lng})
	r.dispatcher.broadcastUpdate(rec)
}

// Finite reports whether neither coordinate is NaN or infinite.
func Finite(lat, lng float64) bool {
	for _, v := range []float64{lat, lng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ValidCoordinate reports whether lat and lng are finite and within range.
// Nearby searches need a real point on the globe as their centre.
func ValidCoordinate(lat, lng float64) bool {
	return Finite(lat, lng) && geohash.InRange(lat, lng)
}
