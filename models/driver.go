package models

import "time"

// DriverSession maps a tracking driver to the connection currently speaking for it.
type DriverSession struct {
	DriverID string `json:"driverId"`
	ConnID   string `json:"connId"`
}

// LocationRecord is the latest known position of a tracking driver.
type LocationRecord struct {
	DriverID   string    `json:"driverId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ObservedAt time.Time `json:"observedAt"`
	Geohash    string    `json:"geohash,omitempty"`
}

// NearbyRecord is a LocationRecord annotated with its distance from a query point.
type NearbyRecord struct {
	LocationRecord
	DistanceKm float64 `json:"distanceKm"`
}
