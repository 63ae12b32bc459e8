package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"writing-comparator/internal/domain"
	"writing-comparator/internal/infra/logger"
	"writing-comparator/internal/infra/metrics"
	"writing-comparator/internal/usecase"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	jobTimeout          = 5 * time.Minute
	initialBackoff      = 1 * time.Second
	maxBackoff          = 5 * time.Minute
	// MaxAttempts is how many times a job runs before it is marked failed.
	MaxAttempts = 3
)

// JobWorker polls text_jobs and runs background passage-theme scoring.
type JobWorker struct {
	jobRepo   domain.JobRepository
	recompute usecase.RecomputeUsecase
	logger    *logger.ContextLogger
	stopChan  chan struct{}
	doneChan  chan struct{}
	backoff   time.Duration
}

func NewJobWorker(
	jobRepo domain.JobRepository,
	recompute usecase.RecomputeUsecase,
	log *slog.Logger,
) *JobWorker {
	return &JobWorker{
		jobRepo:   jobRepo,
		recompute: recompute,
		logger:    logger.NewContextLogger(log, "writing-comparator"),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

func (w *JobWorker) Start() {
	w.logger.WithContext(context.Background()).Info("job_worker_started")
	go w.run()
}

// Stop signals the poll loop and waits for the job in flight to finish.
func (w *JobWorker) Stop() {
	w.logger.WithContext(context.Background()).Info("job_worker_stopping")
	close(w.stopChan)
	<-w.doneChan
}

func (w *JobWorker) run() {
	defer close(w.doneChan)
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processNextJob()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(defaultPollInterval)
			}
		}
	}
}

// RunOnce drains the queue synchronously and returns how many jobs were processed.
func (w *JobWorker) RunOnce() int {
	n := 0
	for w.processNextJob() {
		n++
	}
	return n
}

// processNextJob reports whether a job was claimed.
func (w *JobWorker) processNextJob() bool {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	job, err := w.jobRepo.AcquireNextJob(ctx)
	if err != nil {
		w.logger.WithContext(ctx).Error("job_acquire_failed", slog.String("error", err.Error()))
		return false
	}
	if job == nil {
		return false
	}

	ctx = logger.WithJobID(ctx, job.ID.String())
	log := w.logger.WithContext(ctx)
	log.Info("job_processing", slog.String("job_type", job.JobType), slog.Int("attempt", job.Attempts))

	var processErr error
	switch {
	case job.Attempts > MaxAttempts:
		// Reclaimed after its lease expired on the final attempt.
		processErr = fmt.Errorf("job abandoned after %d attempts", MaxAttempts)
	case job.JobType == domain.JobTypeScorePassageThemes:
		processErr = w.processScorePassageThemes(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.JobType)
	}

	status := domain.JobStatusCompleted
	var errMsg *string
	if processErr != nil {
		msg := processErr.Error()
		errMsg = &msg
		status = domain.JobStatusFailed
		if job.Attempts < MaxAttempts {
			status = domain.JobStatusNew
		}
		w.backoff = w.nextBackoff(w.backoff)
		log.Warn("job_failed",
			slog.String("next_status", status),
			slog.Duration("backoff", w.backoff),
			slog.String("error", msg),
		)
	} else {
		w.backoff = 0
		log.Info("job_completed")
	}
	metrics.RecordJob(job.JobType, status)

	if err := w.jobRepo.UpdateStatus(ctx, job.ID, status, errMsg); err != nil {
		log.Error("job_status_update_failed", slog.String("error", err.Error()))
	}
	return true
}

func (w *JobWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (w *JobWorker) processScorePassageThemes(ctx context.Context, job *domain.Job) error {
	ids, err := parsePassageIDs(job.Payload["passage_ids"])
	if err != nil {
		return err
	}
	topN := domain.DefaultTopN
	if n, ok := job.Payload["top_n"].(float64); ok && n > 0 {
		topN = int(n)
	}

	report, err := w.recompute.ScorePassages(logger.WithPipelineStage(ctx, "passage_scoring"), ids, topN)
	if err != nil {
		return fmt.Errorf("failed to score passages: %w", err)
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d passage theme chunks failed: %s", len(report.Errors), report.Errors[0].Error)
	}
	return nil
}

// parsePassageIDs reads the id list of a decoded JSON payload.
func parsePassageIDs(v any) ([]int64, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid passage_ids")
	}
	ids := make([]int64, 0, len(raw))
	for _, item := range raw {
		f, ok := item.(float64)
		if !ok || f != float64(int64(f)) {
			return nil, fmt.Errorf("invalid passage id %v", item)
		}
		ids = append(ids, int64(f))
	}
	return ids, nil
}
