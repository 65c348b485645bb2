package geohash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell(t *testing.T) {
	cell := Cell(12.9716, 77.5946)
	assert.Len(t, cell, int(CellPrecision))
	assert.Equal(t, cell, Cell(12.9716, 77.5946))

	assert.Empty(t, Cell(91, 0))
	assert.Empty(t, Cell(0, -181))
}

func TestIndexNearby(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("DRV-1", Point{12.9716, 77.5946})
	idx.Upsert("DRV-2", Point{12.9800, 77.6000}) // ~1.1km away
	idx.Upsert("DRV-3", Point{13.1986, 77.7066}) // airport, ~28km away

	hits := idx.Nearby(Point{12.9716, 77.5946}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "DRV-1", hits[0].Key)
	assert.Equal(t, "DRV-2", hits[1].Key)
	assert.InDelta(t, 0, hits[0].DistanceKm, 0.001)
	assert.Less(t, hits[1].DistanceKm, 2.0)

	assert.Len(t, idx.Nearby(Point{12.9716, 77.5946}, 50), 3)
	assert.Empty(t, idx.Nearby(Point{12.9716, 77.5946}, 0))
}

func TestIndexUpsertMovesPoint(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("DRV-1", Point{12.9716, 77.5946})
	idx.Upsert("DRV-1", Point{13.1986, 77.7066})

	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Nearby(Point{12.9716, 77.5946}, 1))

	hits := idx.Nearby(Point{13.1986, 77.7066}, 1)
	require.Len(t, hits, 1)
	assert.Equal(t, "DRV-1", hits[0].Key)
}

func TestIndexRemove(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("DRV-1", Point{12.9716, 77.5946})

	assert.True(t, idx.Remove("DRV-1"))
	assert.False(t, idx.Remove("DRV-1"))
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Nearby(Point{12.9716, 77.5946}, 10))
}

func TestIndexNearbyAcrossAntimeridian(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("EAST", Point{0, 179.999})
	idx.Upsert("WEST", Point{0, -179.999})

	hits := idx.Nearby(Point{0, -179.999}, 5)
	require.Len(t, hits, 2)
	assert.Equal(t, "WEST", hits[0].Key)
	assert.Equal(t, "EAST", hits[1].Key)
	assert.InDelta(t, 0.222, hits[1].DistanceKm, 0.01)

	hits = idx.Nearby(Point{0, 179.999}, 5)
	require.Len(t, hits, 2)
	assert.Equal(t, "EAST", hits[0].Key)
}

func TestNearbyWithRetriesWidensSearch(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("DRV-3", Point{13.1986, 77.7066})

	// 1, 2, 4, 8, 16 km miss; 32 km finds the airport.
	assert.Empty(t, idx.NearbyWithRetries(Point{12.9716, 77.5946}, 1, 5))

	hits := idx.NearbyWithRetries(Point{12.9716, 77.5946}, 1, 6)
	require.Len(t, hits, 1)
	assert.Equal(t, "DRV-3", hits[0].Key)
}

func TestHaversine(t *testing.T) {
	// London to Paris is roughly 344km.
	d := Haversine(Point{51.5074, -0.1278}, Point{48.8566, 2.3522})
	assert.InDelta(t, 344, d, 5)
	assert.Zero(t, Haversine(Point{1, 1}, Point{1, 1}))
}
