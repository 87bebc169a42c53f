package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"weather-etl-pipeline/internal/weather"
)

// DatasetHeader is the fixed, ordered column header of every city dataset.
var DatasetHeader = []string{
	"city", "date", "time_ampm",
	"temperature_c", "humidity_percent", "conditions", "wind_speed_kmh",
}

const datasetSuffix = "_weather.csv"

// DatasetStore manages the per-city clean CSV datasets. Datasets are
// append-only: existing rows are never rewritten or reordered.
type DatasetStore struct {
	dir string
}

func NewDatasetStore(dir string) *DatasetStore {
	return &DatasetStore{dir: dir}
}

// Dir returns the clean dataset directory.
func (d *DatasetStore) Dir() string {
	return d.dir
}

// Path returns the dataset file path for a city.
func (d *DatasetStore) Path(city string) string {
	return filepath.Join(d.dir, weather.CitySlug(city)+datasetSuffix)
}

// LoadKeys scans a city's persisted dataset and returns the set of dedup
// keys it already contains. Only the key columns are retained. A missing
// dataset yields an empty set.
func (d *DatasetStore) LoadKeys(city string) (map[weather.Key]struct{}, error) {
	keys := make(map[weather.Key]struct{})

	f, err := os.Open(d.Path(city))
	if err != nil {
		if os.IsNotExist(err) {
			return keys, nil
		}
		return nil, fmt.Errorf("dataset: open %q: %w", d.Path(city), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}

	dateIdx, timeIdx := -1, -1
	for i, col := range header {
		switch col {
		case "date":
			dateIdx = i
		case "time_ampm":
			timeIdx = i
		}
	}
	if dateIdx < 0 || timeIdx < 0 {
		return nil, fmt.Errorf("dataset %q: missing key columns", d.Path(city))
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: read row: %w", err)
		}
		if row[dateIdx] == "" || row[timeIdx] == "" {
			continue
		}
		keys[weather.Key{Date: row[dateIdx], TimeAMPM: row[timeIdx]}] = struct{}{}
	}
	return keys, nil
}

// Append adds the records to a city's dataset in a single write, creating
// the file with its header on first use. Returns the dataset path.
func (d *DatasetStore) Append(city string, records []weather.Record) (string, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("dataset: create dir: %w", err)
	}

	path := d.Path(city)
	_, statErr := os.Stat(path)
	exists := statErr == nil

	// Build the whole batch in memory so the file sees exactly one write.
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if !exists {
		if err := w.Write(DatasetHeader); err != nil {
			return "", fmt.Errorf("dataset: write header: %w", err)
		}
	}
	for _, rec := range records {
		row := []string{
			rec.City,
			rec.Date,
			rec.TimeAMPM,
			formatFloat(rec.TemperatureC),
			formatFloat(rec.HumidityPct),
			rec.Conditions,
			formatFloat(rec.WindSpeedKmh),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("dataset: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("dataset: encode batch: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("dataset: append %q: %w", path, err)
	}
	return path, nil
}

// List returns every dataset file in the clean directory with its row count
// (excluding the header).
func (d *DatasetStore) List() ([]DatasetInfo, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dataset: list %q: %w", d.dir, err)
	}

	var infos []DatasetInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		path := filepath.Join(d.dir, e.Name())
		rows, err := countRows(path)
		if err != nil {
			return nil, err
		}
		infos = append(infos, DatasetInfo{
			City: strings.TrimSuffix(e.Name(), datasetSuffix),
			Path: path,
			Rows: rows,
		})
	}
	return infos, nil
}

// Tail returns up to n most recent rows of a city's dataset, in append order.
func (d *DatasetStore) Tail(city string, n int) ([][]string, error) {
	f, err := os.Open(d.Path(city))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset for %q: %w", city, ErrNotFound)
		}
		return nil, fmt.Errorf("dataset: open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	rows = rows[1:] // drop header
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}

// DatasetInfo describes one city dataset on disk.
type DatasetInfo struct {
	City string `json:"city"`
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	n := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("dataset: read %q: %w", path, err)
		}
		n++
	}
	if n > 0 {
		n-- // header
	}
	return n, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
