package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/ledger"
	"salonpos/backend/internal/lock"
	"salonpos/backend/internal/notify"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

//go:generate mockgen -source=scheduler.go -destination=scheduler_mock.go -package=recurring

// InstallmentGenerator creates the next installment of a config. It returns
// zero rows when the series is already exhausted.
type InstallmentGenerator interface {
	Generate(ctx context.Context, configID string) ([]domain.ExpenseInstallment, error)
}

type ConfigStore interface {
	ListDueRecurringConfigs(ctx context.Context) ([]domain.RecurringExpenseConfig, error)
	IncrementInstallmentsGenerated(ctx context.Context, id string, expected int) (*domain.RecurringExpenseConfig, error)
}

type RunLedger interface {
	CheckAndReserve(ctx context.Context, jobType string, runDate time.Time, correlationID string) (ledger.Reservation, error)
	Finalize(ctx context.Context, runID string, status string, summary string) (*domain.BatchRun, error)
}

const (
	maxErrorsListed = 5
	batchLockTTL    = 10 * time.Minute
)

// Result summarises one trigger of the batch.
type Result struct {
	Skipped       bool
	Reason        string
	Status        string
	RunID         string
	CorrelationID string
	Processed     int
	Generated     int
	Errors        int
	ErrorsList    []string
	Duration      time.Duration
}

type Scheduler struct {
	configs   ConfigStore
	generator InstallmentGenerator
	ledger    RunLedger
	locker    lock.Locker
	notifier  notify.Notifier
	location  *time.Location
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewScheduler(configs ConfigStore, generator InstallmentGenerator, runs RunLedger, locker lock.Locker, notifier notify.Notifier, location *time.Location, logger logrus.FieldLogger) *Scheduler {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		configs:   configs,
		generator: generator,
		ledger:    runs,
		locker:    locker,
		notifier:  notifier,
		location:  location,
		logger:    logger.WithField("component", "recurring_scheduler"),
		now:       time.Now,
	}
}

// Run executes the daily batch for the current business date. The returned
// error is non-nil only when the batch could not start; per-config failures
// are reported in the Result with status PARTIAL.
func (s *Scheduler) Run(ctx context.Context, correlationID string) (Result, error) {
	started := s.now()
	if correlationID == "" {
		correlationID = xid.New("corr")
	}
	today := domain.DateOf(started, s.location)
	result := Result{CorrelationID: correlationID}
	log := s.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"run_date":       today.Format(time.DateOnly),
	})

	lockKey := fmt.Sprintf("batch:%s:%s", domain.JobRecurringExpenses, today.Format(time.DateOnly))
	lk, err := s.locker.Obtain(ctx, lockKey, batchLockTTL)
	switch {
	case errors.Is(err, lock.ErrNotObtained):
		log.Info("batch lock held elsewhere; skipping")
		result.Skipped = true
		result.Reason = ledger.ReasonAlreadyRunning
		result.Duration = s.now().Sub(started)
		return result, nil
	case err != nil:
		log.WithError(err).Warn("batch lock unavailable; relying on run ledger")
	default:
		defer func() {
			if releaseErr := lk.Release(context.WithoutCancel(ctx)); releaseErr != nil {
				log.WithError(releaseErr).Warn("failed to release batch lock")
			}
		}()
	}

	reservation, err := s.ledger.CheckAndReserve(ctx, domain.JobRecurringExpenses, today, correlationID)
	if err != nil {
		result.Status = domain.RunFailed
		result.Duration = s.now().Sub(started)
		return result, fmt.Errorf("reserve batch run: %w", err)
	}
	if !reservation.CanProceed {
		result.Skipped = true
		result.Reason = reservation.Reason
		if reservation.Existing != nil {
			result.RunID = reservation.Existing.ID
			result.Status = reservation.Existing.Status
		}
		log.WithField("reason", reservation.Reason).Info("recurring expense batch skipped")
		result.Duration = s.now().Sub(started)
		return result, nil
	}
	result.RunID = reservation.Run.ID
	log = log.WithField("run_id", result.RunID)

	configs, err := s.configs.ListDueRecurringConfigs(ctx)
	if err != nil {
		result.Status = domain.RunFailed
		summary := "fetch configs: " + err.Error()
		if _, finErr := s.ledger.Finalize(ctx, result.RunID, domain.RunFailed, summary); finErr != nil {
			log.WithError(finErr).Error("failed to finalize batch run")
		}
		s.notify(ctx, log, fmt.Sprintf("Recurring expenses %s could not start: %v", today.Format(time.DateOnly), err))
		result.Duration = s.now().Sub(started)
		return result, fmt.Errorf("list recurring configs: %w", err)
	}

	for _, cfg := range configs {
		result.Processed++
		generated, err := s.processConfig(ctx, cfg, today)
		if err != nil {
			result.Errors++
			if len(result.ErrorsList) < maxErrorsListed {
				result.ErrorsList = append(result.ErrorsList, fmt.Sprintf("%s: %v", cfg.ID, err))
			}
			log.WithError(err).WithField("config_id", cfg.ID).Warn("recurring expense config failed")
			continue
		}
		result.Generated += generated
	}

	result.Status = domain.RunSuccess
	if result.Errors > 0 {
		result.Status = domain.RunPartial
	}
	summary := fmt.Sprintf("processed=%d generated=%d errors=%d", result.Processed, result.Generated, result.Errors)
	if _, err := s.ledger.Finalize(ctx, result.RunID, result.Status, summary); err != nil {
		log.WithError(err).Error("failed to finalize batch run")
	}

	s.notify(ctx, log, fmt.Sprintf("Recurring expenses %s: %s. Processed %d, generated %d, errors %d.",
		today.Format(time.DateOnly), result.Status, result.Processed, result.Generated, result.Errors))

	result.Duration = s.now().Sub(started)
	log.WithFields(logrus.Fields{
		"status":    result.Status,
		"processed": result.Processed,
		"generated": result.Generated,
		"errors":    result.Errors,
	}).Info("recurring expense batch finished")
	return result, nil
}

// processConfig generates at most one installment for cfg and advances its
// counter. It returns how many installments were generated.
func (s *Scheduler) processConfig(ctx context.Context, cfg domain.RecurringExpenseConfig, today time.Time) (int, error) {
	if cfg.Exhausted() || !domain.OnOrAfter(today, cfg.NextDueDate()) {
		return 0, nil
	}

	rows, err := s.generator.Generate(ctx, cfg.ID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if _, err := s.configs.IncrementInstallmentsGenerated(ctx, cfg.ID, cfg.InstallmentsGenerated); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			s.logger.WithField("config_id", cfg.ID).Warn("installment counter already advanced")
			return 0, nil
		}
		return 0, fmt.Errorf("advance installment counter: %w", err)
	}
	return len(rows), nil
}

func (s *Scheduler) notify(ctx context.Context, log logrus.FieldLogger, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		log.WithError(err).Warn("batch notification failed")
	}
}
