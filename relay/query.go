package relay

import (
	"context"

	"location-relay/geohash"
	"location-relay/models"
)

// RequestLocation sends the driver's latest location to c only. When the
// driver has no record nothing is sent.
func (r *Relay) RequestLocation(ctx context.Context, c Conn, driverID string) error {
	return r.submit(ctx, func() {
		if rec, ok := r.store.Get(driverID); ok {
			r.dispatcher.unicast(c, models.EventLocation, rec)
			return
		}
		r.log.Debug("no location for driver", "action", "location_miss",
			"driver_id", driverID, "conn_id", c.ID(), "records", r.store.Len())
	})
}

// RequestAllBuses sends every live record to c as one array.
func (r *Relay) RequestAllBuses(ctx context.Context, c Conn) error {
	return r.submit(ctx, func() {
		r.dispatcher.unicast(c, models.EventAllBuses, r.store.ListAll())
	})
}

// RequestNearby sends the live records around center to c, closest first.
// A non-positive radius widens the search until something is found.
func (r *Relay) RequestNearby(ctx context.Context, c Conn, center geohash.Point, radiusKm float64) error {
	return r.submit(ctx, func() {
		r.dispatcher.unicast(c, models.EventNearbyBuses, r.nearby(center, radiusKm))
	})
}

// Subscribe adds c to the driver's topic. It only matters in ModeTopic.
func (r *Relay) Subscribe(ctx context.Context, c Conn, driverID string) error {
	return r.submit(ctx, func() {
		if !r.dispatcher.subscribe(c.ID(), driverID) {
			r.log.Debug("subscribe from detached connection", "action", "subscribe_ignored",
				"conn_id", c.ID(), "driver_id", driverID)
		}
	})
}

func (r *Relay) Unsubscribe(ctx context.Context, c Conn, driverID string) error {
	return r.submit(ctx, func() { r.dispatcher.unsubscribe(c.ID(), driverID) })
}

// Lookup returns the driver's latest location as of the moment it is processed.
func (r *Relay) Lookup(ctx context.Context, driverID string) (models.LocationRecord, bool, error) {
	var (
		rec models.LocationRecord
		ok  bool
	)
	err := r.call(ctx, func() { rec, ok = r.store.Get(driverID) })
	return rec, ok, err
}

// Snapshot returns every live record ordered by driver id.
func (r *Relay) Snapshot(ctx context.Context) ([]models.LocationRecord, error) {
	var out []models.LocationRecord
	err := r.call(ctx, func() { out = r.store.ListAll() })
	return out, err
}

// Nearby returns live records around center, closest first.
func (r *Relay) Nearby(ctx context.Context, center geohash.Point, radiusKm float64) ([]models.NearbyRecord, error) {
	var out []models.NearbyRecord
	err := r.call(ctx, func() { out = r.nearby(center, radiusKm) })
	return out, err
}

func (r *Relay) nearby(center geohash.Point, radiusKm float64) []models.NearbyRecord {
	var hits []geohash.Hit
	if radiusKm > 0 {
		hits = r.index.Nearby(center, radiusKm)
	} else {
		hits = r.index.NearbyWithRetries(center, geohash.DefaultSearchRadiusKm, geohash.DefaultSearchRetries)
	}

	out := make([]models.NearbyRecord, 0, len(hits))
	for _, h := range hits {
		if rec, ok := r.store.Get(h.Key); ok {
			out = append(out, models.NearbyRecord{LocationRecord: rec, DistanceKm: h.DistanceKm})
		}
	}
	return out
}
