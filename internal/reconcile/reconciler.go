// Package reconcile holds the incremental transform stage: it turns one
// fetch snapshot into deduplicated, append-only per-city datasets. Running
// it twice against the same or an overlapping snapshot appends nothing the
// second time — the dedup set is rebuilt from the persisted dataset on
// every run, so there are no cursors or offsets to corrupt.
package reconcile

import (
	"fmt"

	"weather-etl-pipeline/internal/logging"
	"weather-etl-pipeline/internal/store"
	"weather-etl-pipeline/internal/weather"
)

// Reconciler derives canonical records from a snapshot and appends the
// unseen ones to each city's dataset. It is the sole writer of datasets.
type Reconciler struct {
	snapshots *store.SnapshotStore
	datasets  *store.DatasetStore
	logger    *logging.Logger
}

func New(snapshots *store.SnapshotStore, datasets *store.DatasetStore, logger *logging.Logger) *Reconciler {
	return &Reconciler{
		snapshots: snapshots,
		datasets:  datasets,
		logger:    logger,
	}
}

// CityResult describes one city's batch within a run.
type CityResult struct {
	City        string
	DatasetPath string
	Appended    int
	Dropped     int // points with unparseable timestamps
	Err         string
}

// Failed reports whether the city's batch failed.
func (c CityResult) Failed() bool {
	return c.Err != ""
}

// Result describes one reconcile-stage invocation.
type Result struct {
	SnapshotPath string
	CleanDir     string
	Cities       []CityResult
	Appended     int
}

// ChangedDatasets returns the paths of datasets that gained rows this run.
func (r *Result) ChangedDatasets() []string {
	var paths []string
	for _, c := range r.Cities {
		if c.Appended > 0 {
			paths = append(paths, c.DatasetPath)
		}
	}
	return paths
}

// Run reconciles every city in the snapshot, in snapshot order. Cities are
// independent: one city's dataset-write failure is recorded in its
// CityResult and does not stop the others. The stage fails only when the
// snapshot itself cannot be read.
func (r *Reconciler) Run(snapshotPath string) (*Result, error) {
	snap, err := r.snapshots.Load(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	res := &Result{
		SnapshotPath: snapshotPath,
		CleanDir:     r.datasets.Dir(),
	}

	for _, cf := range snap {
		cr := r.reconcileCity(cf)
		if cr.Failed() {
			r.logger.Error("[reconcile] %s failed: %s", cf.City, cr.Err)
		} else if cr.Appended > 0 {
			r.logger.Info("[reconcile] %s: %d new rows appended", cf.City, cr.Appended)
		} else {
			r.logger.Debug("[reconcile] %s: no new rows", cf.City)
		}
		res.Cities = append(res.Cities, cr)
		res.Appended += cr.Appended
	}

	r.logger.Info("[reconcile] complete, %d rows added across %d cities", res.Appended, len(res.Cities))
	return res, nil
}

// reconcileCity loads the city's persisted dedup keys, filters the
// snapshot's points against them and against keys produced earlier in this
// same run, and appends the surviving records in a single write.
func (r *Reconciler) reconcileCity(cf weather.CityForecast) CityResult {
	cr := CityResult{
		City:        cf.City,
		DatasetPath: r.datasets.Path(cf.City),
	}

	existing, err := r.datasets.LoadKeys(cf.City)
	if err != nil {
		cr.Err = err.Error()
		return cr
	}

	seen := make(map[weather.Key]struct{})
	var queue []weather.Record

	for _, p := range cf.Hourly {
		date, ampm, err := weather.SplitPointTime(p.Time)
		if err != nil {
			// Unusable and not retryable: the same input parses the
			// same way every run.
			cr.Dropped++
			continue
		}

		key := weather.Key{Date: date, TimeAMPM: ampm}
		if _, ok := existing[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		queue = append(queue, weather.Record{
			City:         cf.City,
			Date:         date,
			TimeAMPM:     ampm,
			TemperatureC: p.TemperatureC,
			HumidityPct:  p.HumidityPct,
			Conditions:   p.Conditions,
			WindSpeedKmh: p.WindSpeedKmh,
		})
	}

	if len(queue) == 0 {
		return cr
	}

	path, err := r.datasets.Append(cf.City, queue)
	if err != nil {
		cr.Err = err.Error()
		return cr
	}
	cr.DatasetPath = path
	cr.Appended = len(queue)
	return cr
}
