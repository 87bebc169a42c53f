package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"weather-etl-pipeline/internal/logging"
	"weather-etl-pipeline/internal/pipeline"
)

// Scheduler triggers pipeline runs on a fixed interval. It owns the retry
// policy: a failed run is retried a bounded number of times with a fixed
// delay; the stages themselves never retry internally.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	runner     *pipeline.Runner
	interval   time.Duration
	retries    int
	retryDelay time.Duration
	logger     *logging.Logger
}

func New(runner *pipeline.Runner, interval time.Duration, retries int, retryDelay time.Duration, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		runner:     runner,
		interval:   interval,
		retries:    retries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(s.runWithRetry)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("[scheduler] pipeline scheduled every %s", interval)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runWithRetry() {
	attempts := s.retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err := s.runner.TryRun(context.Background())
		if err == nil {
			return
		}
		if errors.Is(err, pipeline.ErrRunInProgress) {
			s.logger.Warn("[scheduler] previous run still in progress, skipping")
			return
		}

		s.logger.Error("[scheduler] run failed (attempt %d/%d): %v", attempt, attempts, err)
		if attempt < attempts {
			time.Sleep(s.retryDelay)
		}
	}
}
