package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrRunInProgress is returned when a run is requested while another is
// still executing. Concurrent runs would race on dataset appends, so the
// runner serializes them.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Runner enforces single-run-at-a-time invocation over a Pipeline. Both
// the scheduler and the manual trigger endpoint go through it.
type Runner struct {
	mu sync.Mutex
	p  *Pipeline
}

func NewRunner(p *Pipeline) *Runner {
	return &Runner{p: p}
}

// TryRun executes one pipeline run, or fails immediately with
// ErrRunInProgress when another run holds the slot.
func (r *Runner) TryRun(ctx context.Context) (*RunResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	return r.p.Run(ctx)
}
