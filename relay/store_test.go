package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := func() time.Time { return clock }

	t.Run("new store is empty", func(t *testing.T) {
		s := NewStore(now)
		assert.Equal(t, 0, s.Len())
		assert.NotNil(t, s.ListAll())
		assert.Empty(t, s.ListAll())

		_, ok := s.Get("DRV-1")
		assert.False(t, ok)
	})

	t.Run("put stamps observation time and cell", func(t *testing.T) {
		s := NewStore(now)
		rec := s.Put("DRV-1", 12.9, 77.6)

		assert.Equal(t, "DRV-1", rec.DriverID)
		assert.Equal(t, 12.9, rec.Lat)
		assert.Equal(t, 77.6, rec.Lng)
		assert.Equal(t, clock, rec.ObservedAt)
		assert.NotEmpty(t, rec.Geohash)

		got, ok := s.Get("DRV-1")
		require.True(t, ok)
		assert.Equal(t, rec, got)
	})

	t.Run("later put wins", func(t *testing.T) {
		s := NewStore(now)
		s.Put("DRV-1", 1, 1)
		s.Put("DRV-1", 2, 2)

		got, ok := s.Get("DRV-1")
		require.True(t, ok)
		assert.Equal(t, 2.0, got.Lat)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("remove", func(t *testing.T) {
		s := NewStore(now)
		s.Put("DRV-1", 1, 1)

		assert.True(t, s.Remove("DRV-1"))
		assert.False(t, s.Remove("DRV-1"))
		_, ok := s.Get("DRV-1")
		assert.False(t, ok)
	})

	t.Run("list all is ordered by driver", func(t *testing.T) {
		s := NewStore(now)
		s.Put("DRV-3", 3, 3)
		s.Put("DRV-1", 1, 1)
		s.Put("DRV-2", 2, 2)

		all := s.ListAll()
		require.Len(t, all, 3)
		assert.Equal(t, "DRV-1", all[0].DriverID)
		assert.Equal(t, "DRV-2", all[1].DriverID)
		assert.Equal(t, "DRV-3", all[2].DriverID)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		r := NewRegistry()
		_, replaced := r.Register("DRV-1", "conn-a")
		assert.False(t, replaced)

		connID, ok := r.Lookup("DRV-1")
		require.True(t, ok)
		assert.Equal(t, "conn-a", connID)
	})

	t.Run("register overwrites", func(t *testing.T) {
		r := NewRegistry()
		r.Register("DRV-1", "conn-a")
		previous, replaced := r.Register("DRV-1", "conn-b")

		assert.True(t, replaced)
		assert.Equal(t, "conn-a", previous)
		assert.Equal(t, 1, r.Len())

		_, ok := r.FindByConnection("conn-a")
		assert.False(t, ok)
		driverID, ok := r.FindByConnection("conn-b")
		require.True(t, ok)
		assert.Equal(t, "DRV-1", driverID)
	})

	t.Run("unregister", func(t *testing.T) {
		r := NewRegistry()
		r.Register("DRV-1", "conn-a")

		assert.True(t, r.Unregister("DRV-1"))
		assert.False(t, r.Unregister("DRV-1"))
		_, ok := r.FindByConnection("conn-a")
		assert.False(t, ok)
	})

	t.Run("sessions", func(t *testing.T) {
		r := NewRegistry()
		r.Register("DRV-2", "conn-b")
		r.Register("DRV-1", "conn-a")

		sessions := r.Sessions()
		require.Len(t, sessions, 2)
		assert.Equal(t, "DRV-1", sessions[0].DriverID)
		assert.Equal(t, "conn-a", sessions[0].ConnID)
	})
}
