package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2"

	"weather-etl-pipeline/internal/audit"
	"weather-etl-pipeline/internal/fetch"
	"weather-etl-pipeline/internal/logging"
	"weather-etl-pipeline/internal/pipeline"
	"weather-etl-pipeline/internal/publish"
	"weather-etl-pipeline/internal/reconcile"
	"weather-etl-pipeline/internal/store"
	"weather-etl-pipeline/internal/weather"
)

const upstreamBody = `{
	"hourly": {
		"time": ["2025-01-01T09:00"],
		"temperature_2m": [10.5],
		"relative_humidity_2m": [50],
		"weather_code": [0],
		"wind_speed_10m": [7.2]
	}
}`

type nopPutter struct{}

func (nopPutter) PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

type testEnv struct {
	app      *fiber.App
	auditLog *audit.Log
	datasets *store.DatasetStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := logging.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, upstreamBody)
	}))
	t.Cleanup(srv.Close)

	fields := []string{"temperature_2m", "relative_humidity_2m", "weather_code", "wind_speed_10m"}
	cities := []weather.City{{Name: "Lahore", Lat: 31.5204, Lon: 74.3587}}

	snapshots := store.NewSnapshotStore(filepath.Join(dir, "raw"))
	datasets := store.NewDatasetStore(filepath.Join(dir, "clean"))

	client := fetch.NewOpenMeteoClient(http.DefaultClient, srv.URL, fields, 1, "Asia/Karachi")
	fetcher := fetch.NewFetcher(client, snapshots, cities, logger)
	reconciler := reconcile.New(snapshots, datasets, logger)
	publisher := publish.New(nopPutter{}, "weather-bucket", "clean/", logger)

	auditLog, err := audit.Open(filepath.Join(dir, "audit.csv"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}

	p := pipeline.New(fetcher, reconciler, publisher, auditLog, logger)

	app := fiber.New()
	RegisterRoutes(app, auditLog, datasets, pipeline.NewRunner(p))
	return &testEnv{app: app, auditLog: auditLog, datasets: datasets}
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func TestPostRunsTriggersPipeline(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/runs", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}

	var result struct {
		RunID        string `json:"run_id"`
		RowsAppended int    `json:"rows_appended"`
	}
	decodeJSON(t, resp, &result)
	if result.RunID == "" {
		t.Error("run id missing from response")
	}
	if result.RowsAppended != 1 {
		t.Errorf("rows_appended = %d; want 1", result.RowsAppended)
	}
}

func TestGetRunsReturnsAuditEntries(t *testing.T) {
	env := newTestEnv(t)
	if err := env.auditLog.Append(audit.Entry{RawFile: "raw.json", Status: audit.StatusSuccess}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/runs", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}

	var body struct {
		Count   int           `json:"count"`
		Entries []audit.Entry `json:"entries"`
	}
	decodeJSON(t, resp, &body)
	if body.Count != 1 || len(body.Entries) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Entries[0].RawFile != "raw.json" {
		t.Errorf("unexpected entry: %+v", body.Entries[0])
	}
}

func TestGetRunsRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"limit=0", "limit=-5", "limit=5000", "limit=abc"} {
		req := httptest.NewRequest(fiber.MethodGet, "/api/v1/runs?"+q, nil)
		resp, err := env.app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%s: status = %d; want 400", q, resp.StatusCode)
		}
	}
}

func TestGetDatasets(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.datasets.Append("Lahore", []weather.Record{
		{City: "Lahore", Date: "2025-01-01", TimeAMPM: "09:00 AM", Conditions: "Clear sky"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/datasets", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}

	var body struct {
		Count    int                 `json:"count"`
		Datasets []store.DatasetInfo `json:"datasets"`
	}
	decodeJSON(t, resp, &body)
	if body.Count != 1 || body.Datasets[0].City != "lahore" || body.Datasets[0].Rows != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetDatasetRows(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.datasets.Append("Lahore", []weather.Record{
		{City: "Lahore", Date: "2025-01-01", TimeAMPM: "09:00 AM", Conditions: "Clear sky"},
		{City: "Lahore", Date: "2025-01-01", TimeAMPM: "10:00 AM", Conditions: "Overcast"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/datasets/Lahore?limit=1", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}

	var body struct {
		Count int        `json:"count"`
		Rows  [][]string `json:"rows"`
	}
	decodeJSON(t, resp, &body)
	if body.Count != 1 || len(body.Rows) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Rows[0][2] != "10:00 AM" {
		t.Errorf("expected the most recent row, got %v", body.Rows[0])
	}
}

func TestGetDatasetUnknownCity(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/datasets/Atlantis", nil)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d; want 404", resp.StatusCode)
	}
}
