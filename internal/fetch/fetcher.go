package fetch

import (
	"context"
	"fmt"
	"time"

	"weather-etl-pipeline/internal/logging"
	"weather-etl-pipeline/internal/store"
	"weather-etl-pipeline/internal/weather"
)

// ForecastClient abstracts the upstream weather source.
type ForecastClient interface {
	FetchHourly(ctx context.Context, city weather.City) (weather.CityForecast, error)
}

// Fetcher produces one immutable snapshot per run: every tracked city's
// hourly forecast, fetched one city at a time. A single city's failure
// never aborts the batch.
type Fetcher struct {
	client    ForecastClient
	snapshots *store.SnapshotStore
	cities    []weather.City
	logger    *logging.Logger
}

func NewFetcher(client ForecastClient, snapshots *store.SnapshotStore, cities []weather.City, logger *logging.Logger) *Fetcher {
	return &Fetcher{
		client:    client,
		snapshots: snapshots,
		cities:    cities,
		logger:    logger,
	}
}

// CityFailure records one city that could not be fetched or decoded.
type CityFailure struct {
	City string
	Err  string
}

// Result describes one fetch-stage invocation.
type Result struct {
	SnapshotPath string
	CapturedAt   time.Time
	Fetched      int
	Failures     []CityFailure
}

// Run fetches all tracked cities in order and persists the snapshot.
// It fails only when zero cities decode or the snapshot cannot be written.
func (f *Fetcher) Run(ctx context.Context) (*Result, error) {
	res := &Result{CapturedAt: time.Now()}

	var snap weather.Snapshot
	for _, city := range f.cities {
		forecast, err := f.client.FetchHourly(ctx, city)
		if err != nil {
			f.logger.Warn("[fetch] %s failed: %v", city.Name, err)
			res.Failures = append(res.Failures, CityFailure{City: city.Name, Err: err.Error()})
			continue
		}
		snap = append(snap, forecast)
		f.logger.Debug("[fetch] %s: %d hourly points", city.Name, len(forecast.Hourly))
	}

	if len(snap) == 0 {
		return res, fmt.Errorf("no cities could be fetched (%d attempted)", len(f.cities))
	}
	res.Fetched = len(snap)

	path, err := f.snapshots.Save(snap, res.CapturedAt)
	if err != nil {
		return res, fmt.Errorf("persist snapshot: %w", err)
	}
	res.SnapshotPath = path

	f.logger.Info("[fetch] snapshot saved: %s (%d/%d cities)", path, res.Fetched, len(f.cities))
	return res, nil
}
