package models

import "encoding/json"

// Inbound events.
const (
	EventStartTracking      = "driver:start-tracking"
	EventLocationUpdate     = "driver:location-update"
	EventStopTracking       = "driver:stop-tracking"
	EventRequestLocation    = "tracker:request-location"
	EventRequestAllBuses    = "tracker:request-all-buses"
	EventRequestNearbyBuses = "tracker:request-nearby-buses"
	EventSubscribe          = "tracker:subscribe"
	EventUnsubscribe        = "tracker:unsubscribe"
)

// Outbound events.
const (
	EventLocation     = "location:update"
	EventLocationStop = "location:stop"
	EventAllBuses     = "location:all-buses"
	EventNearbyBuses  = "location:nearby-buses"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DriverRef is the payload of start/stop tracking, stop broadcasts,
// point queries and subscriptions.
type DriverRef struct {
	DriverID string `json:"driverId"`
}

// LocationSample is the payload a driver sends with every position fix.
// Coordinates are pointers so a missing field can be told apart from zero.
type LocationSample struct {
	DriverID string   `json:"driverId"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
}

// NearbyQuery asks for live positions around a point. A zero RadiusKm
// lets the relay widen the search until something is found.
type NearbyQuery struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	RadiusKm float64  `json:"radiusKm,omitempty"`
}

// Encode builds an envelope frame for the given event and payload.
func Encode(eventType string, payload any) ([]byte, error) {
	env := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: eventType, Data: payload}
	return json.Marshal(env)
}
