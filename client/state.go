package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DriverState is persisted while a driver is tracking so a restarted client
// can resume.
type DriverState struct {
	IsTracking bool      `json:"isTracking"`
	DriverID   string    `json:"driverId"`
	StartedAt  time.Time `json:"startedAt"`
}

// TrackerState remembers the driver a tracker last selected.
type TrackerState struct {
	DriverID string `json:"driverId"`
}

// StateFile is a small JSON document on disk.
type StateFile struct {
	Path string
}

// Load decodes the file into v. It reports false when there is no file.
func (s *StateFile) Load(v any) (bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read state %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode state %s: %w", s.Path, err)
	}
	return true, nil
}

// Save replaces the file atomically.
func (s *StateFile) Save(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("write state %s: %w", s.Path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state %s: %w", s.Path, err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("write state %s: %w", s.Path, err)
	}
	return nil
}

// Clear removes the file. A missing file is not an error.
func (s *StateFile) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear state %s: %w", s.Path, err)
	}
	return nil
}
