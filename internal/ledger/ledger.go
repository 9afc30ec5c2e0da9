package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

const (
	ReasonAlreadyExecuted = "already executed"
	ReasonAlreadyRunning  = "already running"
)

type Repository interface {
	CreateBatchRun(ctx context.Context, run domain.BatchRun) (*domain.BatchRun, error)
	FinalizeBatchRun(ctx context.Context, id string, status string, summary string, finishedAt time.Time) (*domain.BatchRun, error)
	ListBatchRuns(ctx context.Context, jobType string, limit int) ([]domain.BatchRun, error)
}

// Reservation is the outcome of CheckAndReserve. When CanProceed is false,
// Existing is the run that holds the day and Reason says why.
type Reservation struct {
	CanProceed bool
	Run        *domain.BatchRun
	Existing   *domain.BatchRun
	Reason     string
}

// Ledger records at most one RUNNING or SUCCESS run per (job type, date). The
// storage unique constraint is the only arbiter; there is no read-before-insert.
type Ledger struct {
	repo       Repository
	staleAfter time.Duration
	logger     logrus.FieldLogger
	now        func() time.Time
}

func New(repo Repository, staleAfter time.Duration, logger logrus.FieldLogger) *Ledger {
	return &Ledger{
		repo:       repo,
		staleAfter: staleAfter,
		logger:     logger.WithField("component", "ledger"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) CheckAndReserve(ctx context.Context, jobType string, runDate time.Time, correlationID string) (Reservation, error) {
	if jobType == "" {
		return Reservation{}, fmt.Errorf("%w: job type is required", domain.ErrValidation)
	}
	runDate = domain.DateOf(runDate, time.UTC)

	res, err := l.reserve(ctx, jobType, runDate, correlationID)
	if err != nil || res.CanProceed || !l.isStale(res.Existing) {
		return res, err
	}

	// A RUNNING row past its deadline belongs to a crashed run: fail it and
	// try once more.
	stale := res.Existing
	summary := fmt.Sprintf("abandoned: still RUNNING after %s", l.staleAfter)
	if _, err := l.repo.FinalizeBatchRun(ctx, stale.ID, domain.RunFailed, summary, l.now()); err != nil && !errors.Is(err, store.ErrStaleState) {
		return Reservation{}, fmt.Errorf("release stale run %s: %w", stale.ID, err)
	}
	l.logger.WithFields(logrus.Fields{
		"job_type":   jobType,
		"run_date":   runDate.Format(time.DateOnly),
		"stale_run":  stale.ID,
		"started_at": stale.StartedAt,
	}).Warn("took over stale batch run")

	return l.reserve(ctx, jobType, runDate, correlationID)
}

func (l *Ledger) reserve(ctx context.Context, jobType string, runDate time.Time, correlationID string) (Reservation, error) {
	run, err := l.repo.CreateBatchRun(ctx, domain.BatchRun{
		JobType:       jobType,
		RunDate:       runDate,
		CorrelationID: correlationID,
		StartedAt:     l.now(),
	})
	if err == nil {
		return Reservation{CanProceed: true, Run: run}, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return Reservation{}, err
	}

	reason := ReasonAlreadyRunning
	if run != nil && run.Status == domain.RunSuccess {
		reason = ReasonAlreadyExecuted
	}
	return Reservation{Existing: run, Reason: reason}, nil
}

func (l *Ledger) isStale(run *domain.BatchRun) bool {
	if run == nil || run.Status != domain.RunRunning || l.staleAfter <= 0 {
		return false
	}
	return l.now().Sub(run.StartedAt) > l.staleAfter
}

func (l *Ledger) Finalize(ctx context.Context, runID string, status string, summary string) (*domain.BatchRun, error) {
	switch status {
	case domain.RunSuccess, domain.RunPartial, domain.RunFailed:
	default:
		return nil, fmt.Errorf("%w: invalid final status %q", domain.ErrValidation, status)
	}
	run, err := l.repo.FinalizeBatchRun(ctx, runID, status, summary, l.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("%w: batch run %s", domain.ErrNotFound, runID)
	case errors.Is(err, store.ErrStaleState):
		return nil, fmt.Errorf("%w: batch run %s is already finalized", domain.ErrState, runID)
	case err != nil:
		return nil, err
	}
	return run, nil
}

func (l *Ledger) ListRuns(ctx context.Context, jobType string, limit int) ([]domain.BatchRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 30
	}
	return l.repo.ListBatchRuns(ctx, jobType, limit)
}
