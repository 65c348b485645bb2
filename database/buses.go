package database

import (
	"context"
	"database/sql"
	"fmt"

	"location-relay/models"
)

const listBusesForTracker = `
SELECT d.id, d.username, COALESCE(d.driver_id, ''), COALESCE(d.vehicle_name, '')
FROM users t
JOIN users d ON d.created_by = t.created_by AND d.role = 'driver'
WHERE t.id = $1 AND t.role = 'tracker' AND t.created_by IS NOT NULL
ORDER BY d.id`

// BusDirectory reads driver accounts maintained by the administration service.
type BusDirectory struct {
	db *sql.DB
}

func NewBusDirectory(db *sql.DB) *BusDirectory {
	return &BusDirectory{db: db}
}

// ListForTracker returns the buses of the organisation that created the
// tracker. A tracker without an organisation, or an unknown tracker, gets an
// empty list.
func (d *BusDirectory) ListForTracker(ctx context.Context, trackerID int64) ([]models.Bus, error) {
	rows, err := d.db.QueryContext(ctx, listBusesForTracker, trackerID)
	if err != nil {
		return nil, fmt.Errorf("query buses for tracker %d: %w", trackerID, err)
	}
	defer rows.Close()

	buses := []models.Bus{}
	for rows.Next() {
		var b models.Bus
		if err := rows.Scan(&b.ID, &b.Username, &b.DriverID, &b.VehicleName); err != nil {
			return nil, fmt.Errorf("scan bus: %w", err)
		}
		buses = append(buses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buses: %w", err)
	}
	return buses, nil
}
