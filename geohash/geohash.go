package geohash

import (
	"github.com/mmcloughlin/geohash"
)

// CellPrecision is the number of geohash characters attached to live records (~150m cells).
const CellPrecision uint = 7

// Encode coordinates into a geohash with specified precision.
func Encode(lat, lon float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lon, precision)
}

// InRange reports whether lat and lon lie within [-90, 90] and [-180, 180].
func InRange(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Cell returns the geohash cell of a live position, or "" when the position
// is off the globe and has no cell.
func Cell(lat, lon float64) string {
	if !InRange(lat, lon) {
		return ""
	}
	return Encode(lat, lon, CellPrecision)
}
