package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"weather-etl-pipeline/internal/weather"
)

// ErrNotFound is returned when a referenced snapshot or dataset does not exist.
var ErrNotFound = errors.New("not found")

// snapshotNameLayout embeds the capture timestamp, to the second, in the
// snapshot file name.
const snapshotNameLayout = "20060102_150405"

// SnapshotStore persists fetch-cycle snapshots as JSON documents under a
// single directory. Snapshots are written once and never modified.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

// Save writes the snapshot under a name embedding the capture timestamp
// and returns the file path.
func (s *SnapshotStore) Save(snap weather.Snapshot, capturedAt time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("snapshot: create dir: %w", err)
	}

	name := fmt.Sprintf("punjab_weather_raw_%s.json", capturedAt.Format(snapshotNameLayout))
	path := filepath.Join(s.dir, name)

	raw, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", fmt.Errorf("snapshot: write %q: %w", path, err)
	}
	return path, nil
}

// Load reads a snapshot back from the given path.
func (s *SnapshotStore) Load(path string) (weather.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %q: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("snapshot: read %q: %w", path, err)
	}

	var snap weather.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode %q: %w", path, err)
	}
	return snap, nil
}
