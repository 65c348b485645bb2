package relay

import (
	"sort"
	"time"

	"location-relay/geohash"
	"location-relay/models"
)

// Store holds the latest location per driver. It keeps no history and does
// not check sessions; callers enforce that. Not safe for concurrent use.
type Store struct {
	records map[string]models.LocationRecord
	now     func() time.Time
}

// NewStore creates an empty store stamping records with now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		records: make(map[string]models.LocationRecord),
		now:     now,
	}
}

// Put overwrites the driver's record and returns it.
func (s *Store) Put(driverID string, lat, lng float64) models.LocationRecord {
	rec := models.LocationRecord{
		DriverID:   driverID,
		Lat:        lat,
		Lng:        lng,
		ObservedAt: s.now().UTC(),
		Geohash:    geohash.Cell(lat, lng),
	}
	s.records[driverID] = rec
	return rec
}

func (s *Store) Get(driverID string) (models.LocationRecord, bool) {
	rec, ok := s.records[driverID]
	return rec, ok
}

// Remove deletes the driver's record and reports whether one existed.
func (s *Store) Remove(driverID string) bool {
	if _, ok := s.records[driverID]; !ok {
		return false
	}
	delete(s.records, driverID)
	return true
}

// ListAll returns every record ordered by driver id. The result is never nil.
func (s *Store) ListAll() []models.LocationRecord {
	out := make([]models.LocationRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

func (s *Store) Len() int {
	return len(s.records)
}
