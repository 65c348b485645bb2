package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"location-relay/models"
)

// ErrNoLocation is returned when the relay holds no live position for a driver.
var ErrNoLocation = errors.New("no live location")

// API queries the relay's HTTP endpoints.
type API struct {
	BaseURL string
	HTTP    *http.Client
}

func (a *API) client() *http.Client {
	if a.HTTP != nil {
		return a.HTTP
	}
	return http.DefaultClient
}

func (a *API) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNoLocation
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// Location returns the driver's latest live position.
func (a *API) Location(ctx context.Context, driverID string) (models.LocationRecord, error) {
	var rec models.LocationRecord
	err := a.get(ctx, "/drivers/"+url.PathEscape(driverID)+"/location", &rec)
	return rec, err
}

func (a *API) Buses(ctx context.Context) ([]models.LocationRecord, error) {
	var out []models.LocationRecord
	err := a.get(ctx, "/buses", &out)
	return out, err
}

// TrackerBuses lists the buses the tracker's organisation owns.
func (a *API) TrackerBuses(ctx context.Context, trackerID int64) ([]models.Bus, error) {
	var out []models.Bus
	err := a.get(ctx, "/trackers/"+strconv.FormatInt(trackerID, 10)+"/buses", &out)
	return out, err
}
