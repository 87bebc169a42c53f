package reconcile

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"weather-etl-pipeline/internal/logging"
	"weather-etl-pipeline/internal/store"
	"weather-etl-pipeline/internal/weather"
)

func newTestReconciler(t *testing.T) (*Reconciler, *store.SnapshotStore, *store.DatasetStore) {
	t.Helper()
	dir := t.TempDir()
	snapshots := store.NewSnapshotStore(filepath.Join(dir, "raw"))
	datasets := store.NewDatasetStore(filepath.Join(dir, "clean"))
	return New(snapshots, datasets, logging.New()), snapshots, datasets
}

func saveSnapshot(t *testing.T, ss *store.SnapshotStore, snap weather.Snapshot) string {
	t.Helper()
	path, err := ss.Save(snap, time.Now())
	if err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	return path
}

func datasetRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	return rows
}

func TestReconcileDuplicateTimestampFirstSeenWins(t *testing.T) {
	r, ss, _ := newTestReconciler(t)

	snap := weather.Snapshot{
		{
			City: "Lahore",
			Hourly: []weather.HourlyPoint{
				{Time: "2025-01-01T09:00", TemperatureC: 10, Conditions: weather.DecodeWeatherCode(0)},
				{Time: "2025-01-01T09:00", TemperatureC: 11, Conditions: weather.DecodeWeatherCode(3)},
			},
		},
	}

	res, err := r.Run(saveSnapshot(t, ss, snap))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Appended != 1 {
		t.Fatalf("expected exactly 1 row appended, got %d", res.Appended)
	}

	rows := datasetRows(t, res.Cities[0].DatasetPath)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	row := rows[1]
	if row[1] != "2025-01-01" || row[2] != "09:00 AM" {
		t.Errorf("unexpected key columns: date=%q time=%q", row[1], row[2])
	}
	if row[5] != "Clear sky" {
		t.Errorf("conditions = %q; want %q (first seen must win)", row[5], "Clear sky")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r, ss, _ := newTestReconciler(t)

	snap := weather.Snapshot{
		{
			City: "Multan",
			Hourly: []weather.HourlyPoint{
				{Time: "2025-01-01T09:00", TemperatureC: 12, Conditions: "Clear sky"},
				{Time: "2025-01-01T10:00", TemperatureC: 14, Conditions: "Overcast"},
			},
		},
	}
	path := saveSnapshot(t, ss, snap)

	first, err := r.Run(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Appended != 2 {
		t.Fatalf("first run appended %d rows; want 2", first.Appended)
	}

	second, err := r.Run(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Appended != 0 {
		t.Fatalf("second run appended %d rows; want 0", second.Appended)
	}

	rows := datasetRows(t, first.Cities[0].DatasetPath)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows after both runs, got %d", len(rows))
	}
}

func TestReconcileOverlappingWindow(t *testing.T) {
	r, ss, _ := newTestReconciler(t)

	first := weather.Snapshot{
		{City: "Multan", Hourly: []weather.HourlyPoint{
			{Time: "2025-01-01T09:00"},
			{Time: "2025-01-01T10:00"},
		}},
	}
	if _, err := r.Run(saveSnapshot(t, ss, first)); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Overlaps one hour with the first snapshot.
	second := weather.Snapshot{
		{City: "Multan", Hourly: []weather.HourlyPoint{
			{Time: "2025-01-01T10:00"},
			{Time: "2025-01-01T11:00"},
		}},
	}
	res, err := r.Run(saveSnapshot(t, ss, second))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Appended != 1 {
		t.Fatalf("overlapping run appended %d rows; want 1", res.Appended)
	}
}

func TestReconcileDropsUnparseableTimestamps(t *testing.T) {
	r, ss, _ := newTestReconciler(t)

	snap := weather.Snapshot{
		{City: "Lahore", Hourly: []weather.HourlyPoint{
			{Time: "garbage"},
			{Time: "2025-01-01T09:00"},
		}},
	}
	res, err := r.Run(saveSnapshot(t, ss, snap))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Appended != 1 {
		t.Fatalf("appended %d rows; want 1", res.Appended)
	}
	if res.Cities[0].Dropped != 1 {
		t.Errorf("dropped = %d; want 1", res.Cities[0].Dropped)
	}
	if res.Cities[0].Failed() {
		t.Errorf("unparseable timestamp must not fail the city batch: %q", res.Cities[0].Err)
	}
}

func TestReconcileCityIsolation(t *testing.T) {
	r, ss, ds := newTestReconciler(t)

	// Corrupt one city's persisted dataset so its key scan fails.
	if err := os.MkdirAll(ds.Dir(), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(ds.Path("Lahore"), []byte("bogus,columns\n1,2\n"), 0644); err != nil {
		t.Fatalf("write corrupt dataset: %v", err)
	}

	snap := weather.Snapshot{
		{City: "Lahore", Hourly: []weather.HourlyPoint{{Time: "2025-01-01T09:00"}}},
		{City: "Multan", Hourly: []weather.HourlyPoint{{Time: "2025-01-01T09:00"}}},
	}
	res, err := r.Run(saveSnapshot(t, ss, snap))
	if err != nil {
		t.Fatalf("run must not fail on a single city's error: %v", err)
	}

	if !res.Cities[0].Failed() {
		t.Error("expected Lahore batch to fail")
	}
	if res.Cities[1].Failed() {
		t.Errorf("Multan batch failed unexpectedly: %q", res.Cities[1].Err)
	}
	if res.Cities[1].Appended != 1 {
		t.Errorf("Multan appended %d rows; want 1", res.Cities[1].Appended)
	}
}

func TestReconcileFailsWhenSnapshotUnreadable(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	if _, err := r.Run(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected stage-fatal error for unreadable snapshot")
	}
}

func TestReconcilePreservesExistingRows(t *testing.T) {
	r, ss, _ := newTestReconciler(t)

	first := weather.Snapshot{
		{City: "Multan", Hourly: []weather.HourlyPoint{{Time: "2025-01-01T09:00", TemperatureC: 12}}},
	}
	res1, err := r.Run(saveSnapshot(t, ss, first))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := datasetRows(t, res1.Cities[0].DatasetPath)

	second := weather.Snapshot{
		{City: "Multan", Hourly: []weather.HourlyPoint{{Time: "2025-01-01T10:00", TemperatureC: 99}}},
	}
	if _, err := r.Run(saveSnapshot(t, ss, second)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	after := datasetRows(t, res1.Cities[0].DatasetPath)

	if len(after) <= len(before) {
		t.Fatalf("dataset length must be non-decreasing: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		for j := range before[i] {
			if after[i][j] != before[i][j] {
				t.Fatalf("existing row %d altered: %v -> %v", i, before[i], after[i])
			}
		}
	}
}

func TestReconcileChangedDatasets(t *testing.T) {
	r, ss, _ := newTestReconciler(t)

	snap := weather.Snapshot{
		{City: "Lahore", Hourly: []weather.HourlyPoint{{Time: "2025-01-01T09:00"}}},
		{City: "Multan", Hourly: nil},
	}
	res, err := r.Run(saveSnapshot(t, ss, snap))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	changed := res.ChangedDatasets()
	if len(changed) != 1 {
		t.Fatalf("expected 1 changed dataset, got %d", len(changed))
	}
	if filepath.Base(changed[0]) != "lahore_weather.csv" {
		t.Errorf("unexpected changed dataset: %s", changed[0])
	}
}
