package relay

import (
	"sort"

	"location-relay/models"
)

// Registry maps each tracking driver to the connection speaking for it.
// Not safe for concurrent use.
type Registry struct {
	byDriver map[string]string
}

func NewRegistry() *Registry {
	return &Registry{byDriver: make(map[string]string)}
}

// Register maps driverID to connID, replacing any previous mapping.
// It returns the previous connection id, if there was one.
func (r *Registry) Register(driverID, connID string) (previous string, replaced bool) {
	previous, replaced = r.byDriver[driverID]
	r.byDriver[driverID] = connID
	return previous, replaced
}

// Unregister removes the mapping for driverID and reports whether it existed.
func (r *Registry) Unregister(driverID string) bool {
	if _, ok := r.byDriver[driverID]; !ok {
		return false
	}
	delete(r.byDriver, driverID)
	return true
}

// Lookup returns the connection registered for driverID.
func (r *Registry) Lookup(driverID string) (string, bool) {
	connID, ok := r.byDriver[driverID]
	return connID, ok
}

// FindByConnection returns a driver currently mapped to connID.
func (r *Registry) FindByConnection(connID string) (string, bool) {
	for driverID, c := range r.byDriver {
		if c == connID {
			return driverID, true
		}
	}
	return "", false
}

// Sessions lists all registered sessions ordered by driver id.
func (r *Registry) Sessions() []models.DriverSession {
	out := make([]models.DriverSession, 0, len(r.byDriver))
	for driverID, connID := range r.byDriver {
		out = append(out, models.DriverSession{DriverID: driverID, ConnID: connID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

func (r *Registry) Len() int {
	return len(r.byDriver)
}
