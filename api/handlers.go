package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"location-relay/geohash"
	"location-relay/relay"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GetDriverLocation returns the driver's latest live location.
func (s *Server) GetDriverLocation(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]

	rec, ok, err := s.relay.Lookup(r.Context(), driverID)
	if err != nil {
		http.Error(w, "Relay unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, "No live location for driver", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListBuses returns every live location.
func (s *Server) ListBuses(w http.ResponseWriter, r *http.Request) {
	records, err := s.relay.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "Relay unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// NearbyBuses returns live locations around lat/lng. Without radius_km the
// search widens until something is found.
func (s *Server) NearbyBuses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil || !relay.ValidCoordinate(lat, lng) {
		http.Error(w, "Invalid coordinates", http.StatusBadRequest)
		return
	}

	var radius float64
	if raw := q.Get("radius_km"); raw != "" {
		var err error
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			http.Error(w, "Invalid radius", http.StatusBadRequest)
			return
		}
	}

	records, err := s.relay.Nearby(r.Context(), geohash.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		http.Error(w, "Relay unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ListTrackerBuses returns the buses of the tracker's organisation.
func (s *Server) ListTrackerBuses(w http.ResponseWriter, r *http.Request) {
	if s.buses == nil {
		http.Error(w, "Bus directory not configured", http.StatusServiceUnavailable)
		return
	}

	trackerID, err := strconv.ParseInt(mux.Vars(r)["tracker_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tracker ID", http.StatusBadRequest)
		return
	}

	buses, err := s.buses.ListForTracker(r.Context(), trackerID)
	if err != nil {
		s.log.Error("list tracker buses", "action", "directory_failed", "tracker_id", trackerID, "error", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, buses)
}

// Health reports relay counters.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	st, err := s.relay.Stats(r.Context())
	if err != nil {
		http.Error(w, "Relay unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": st.Connections,
		"sessions":    st.Sessions,
		"records":     st.Records,
	})
}
