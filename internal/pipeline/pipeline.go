// Package pipeline wires the three stages together: Fetcher → Reconciler →
// Publisher, each stage's output threaded explicitly into the next. Stage
// results come back as values; this package turns them into audit rows, so
// the stages themselves never touch the audit log.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"weather-etl-pipeline/internal/audit"
	"weather-etl-pipeline/internal/fetch"
	"weather-etl-pipeline/internal/logging"
	"weather-etl-pipeline/internal/publish"
	"weather-etl-pipeline/internal/reconcile"
)

// Pipeline runs one full ETL pass.
type Pipeline struct {
	fetcher    *fetch.Fetcher
	reconciler *reconcile.Reconciler
	publisher  *publish.Publisher
	auditLog   *audit.Log
	logger     *logging.Logger
}

func New(f *fetch.Fetcher, r *reconcile.Reconciler, p *publish.Publisher, log *audit.Log, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		fetcher:    f,
		reconciler: r,
		publisher:  p,
		auditLog:   log,
		logger:     logger,
	}
}

// RunResult summarizes one completed pipeline run.
type RunResult struct {
	RunID        string    `json:"run_id"`
	SnapshotPath string    `json:"snapshot_path"`
	CleanDir     string    `json:"clean_dir"`
	RowsAppended int       `json:"rows_appended"`
	Uploaded     []string  `json:"uploaded"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Run executes fetch, reconcile and publish in strict sequence. Any
// stage-fatal error aborts the run after its audit row is written; the
// caller (scheduler) owns retries.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	p.logger.Info("[pipeline] run %s started", res.RunID)

	fres, err := p.fetcher.Run(ctx)
	for _, f := range fres.Failures {
		p.record(audit.Entry{
			Status:  audit.StatusFailed,
			Message: fmt.Sprintf("fetch %s: %s", f.City, f.Err),
		})
	}
	if err != nil {
		p.record(audit.Entry{Status: audit.StatusFailed, Message: err.Error()})
		return res, fmt.Errorf("fetch stage: %w", err)
	}
	res.SnapshotPath = fres.SnapshotPath
	p.record(audit.Entry{RawFile: fres.SnapshotPath, Status: audit.StatusSuccess})

	rres, err := p.reconciler.Run(fres.SnapshotPath)
	if err != nil {
		p.record(audit.Entry{RawFile: fres.SnapshotPath, Status: audit.StatusFailed, Message: err.Error()})
		return res, fmt.Errorf("reconcile stage: %w", err)
	}
	for _, c := range rres.Cities {
		e := audit.Entry{RawFile: fres.SnapshotPath, CleanFile: c.DatasetPath}
		if c.Failed() {
			e.Status = audit.StatusFailed
			e.Message = c.Err
		} else {
			e.Status = audit.StatusSuccess
			e.Message = fmt.Sprintf("%d rows appended", c.Appended)
		}
		p.record(e)
	}
	res.CleanDir = rres.CleanDir
	res.RowsAppended = rres.Appended
	p.record(audit.Entry{RawFile: fres.SnapshotPath, CleanFile: rres.CleanDir, Status: audit.StatusSuccess})

	pres, err := p.publisher.Run(ctx, rres.CleanDir)
	if pres != nil {
		for _, uri := range pres.Uploaded {
			p.record(audit.Entry{CleanFile: uri, Status: audit.StatusSuccess})
		}
	}
	if err != nil {
		p.record(audit.Entry{CleanFile: rres.CleanDir, Status: audit.StatusFailed, Message: err.Error()})
		return res, fmt.Errorf("publish stage: %w", err)
	}
	res.Uploaded = pres.Uploaded

	res.FinishedAt = time.Now()
	p.logger.Info("[pipeline] run %s finished: %d rows, %d uploads", res.RunID, res.RowsAppended, len(res.Uploaded))
	return res, nil
}

// record appends an audit row; an audit write failure is logged but never
// fails the run.
func (p *Pipeline) record(e audit.Entry) {
	if err := p.auditLog.Append(e); err != nil {
		p.logger.Error("[pipeline] audit append failed: %v", err)
	}
}
