package recurring

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/ledger"
	"salonpos/backend/internal/lock"
	"salonpos/backend/internal/notify"
	"salonpos/backend/internal/store/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	repo      *memory.Store
	scheduler *Scheduler
	now       time.Time
}

func newFixture(t *testing.T, generator InstallmentGenerator, location *time.Location) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	repo := memory.New()
	if generator == nil {
		generator = NewStoreGenerator(repo)
	}
	f := &fixture{repo: repo}
	runs := ledger.New(repo, 30*time.Minute, logger)
	f.scheduler = NewScheduler(repo, generator, runs, lock.NoopLocker{}, notify.NewLogNotifier(logger), location, logger)
	f.scheduler.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addConfig(t *testing.T, start time.Time, generated int, total int) domain.RecurringExpenseConfig {
	t.Helper()
	cfg, err := f.repo.CreateRecurringConfig(context.Background(), domain.RecurringExpenseConfig{
		ExpenseID:             "exp-rent",
		LocationID:            "loc-1",
		Description:           "Rent",
		Amount:                decimal.RequireFromString("1500.00"),
		Status:                domain.RecurringActive,
		Cadence:               domain.CadenceMonthlyFixedDay,
		StartDate:             start,
		InstallmentsGenerated: generated,
		TotalInstallments:     total,
	})
	require.NoError(t, err)
	return *cfg
}

func TestRunGeneratesOnlyOnOrAfterDueDate(t *testing.T) {
	f := newFixture(t, nil, time.UTC)
	cfg := f.addConfig(t, day(2025, 1, 15), 0, 3)
	ctx := context.Background()

	f.now = day(2025, 1, 14).Add(6 * time.Hour)
	res, err := f.scheduler.Run(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, domain.RunSuccess, res.Status)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Generated)

	f.now = day(2025, 1, 15).Add(6 * time.Hour)
	res, err = f.scheduler.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)

	updated, err := f.repo.GetRecurringConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.InstallmentsGenerated)

	installments, err := f.repo.ListInstallments(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, installments, 1)
	assert.Equal(t, 1, installments[0].InstallmentNumber)
	assert.Equal(t, day(2025, 1, 15), installments[0].DueDate)
	assert.True(t, installments[0].Amount.Equal(cfg.Amount))
}

func TestRunTwiceSameDayIsSkipped(t *testing.T) {
	f := newFixture(t, nil, time.UTC)
	cfg := f.addConfig(t, day(2025, 1, 15), 0, 3)
	ctx := context.Background()
	f.now = day(2025, 1, 15).Add(8 * time.Hour)

	first, err := f.scheduler.Run(ctx, "corr-1")
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Generated)

	f.now = f.now.Add(time.Hour)
	second, err := f.scheduler.Run(ctx, "corr-2")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, ledger.ReasonAlreadyExecuted, second.Reason)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, 0, second.Generated)

	installments, err := f.repo.ListInstallments(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Len(t, installments, 1)
}

func TestRunCatchesUpOneInstallmentPerDay(t *testing.T) {
	f := newFixture(t, nil, time.UTC)
	cfg := f.addConfig(t, day(2025, 1, 31), 0, 3)
	ctx := context.Background()

	for i, now := range []time.Time{day(2025, 4, 1), day(2025, 4, 2), day(2025, 4, 3)} {
		f.now = now
		res, err := f.scheduler.Run(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Generated, "run %d", i)
	}

	installments, err := f.repo.ListInstallments(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, installments, 3)
	assert.Equal(t, day(2025, 1, 31), installments[0].DueDate)
	assert.Equal(t, day(2025, 2, 28), installments[1].DueDate)
	assert.Equal(t, day(2025, 3, 31), installments[2].DueDate)
}

func TestRunUsesBusinessTimezoneForToday(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*3600)
	f := newFixture(t, nil, saoPaulo)
	f.addConfig(t, day(2025, 1, 15), 0, 3)

	// Still Jan 14 at the salon.
	f.now = time.Date(2025, 1, 15, 1, 30, 0, 0, time.UTC)
	res, err := f.scheduler.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Generated)
	assert.Equal(t, 1, res.Processed)
}

func TestRunNeverSelectsExhaustedConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	generator := NewMockInstallmentGenerator(ctrl)

	f := newFixture(t, generator, time.UTC)
	f.addConfig(t, day(2024, 1, 10), 6, 6)
	f.now = day(2025, 1, 15)

	res, err := f.scheduler.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, res.Status)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0, res.Generated)
}

func TestRunResumesAfterLostCounterUpdate(t *testing.T) {
	f := newFixture(t, nil, time.UTC)
	cfg := f.addConfig(t, day(2025, 1, 15), 0, 3)
	ctx := context.Background()

	// Installment #1 exists but the counter was never advanced.
	_, err := NewStoreGenerator(f.repo).Generate(ctx, cfg.ID)
	require.NoError(t, err)

	f.now = day(2025, 1, 15)
	res, err := f.scheduler.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)

	installments, err := f.repo.ListInstallments(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Len(t, installments, 1)
	updated, err := f.repo.GetRecurringConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.InstallmentsGenerated)
}

func TestRunIsolatesGeneratorFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	configs := NewMockConfigStore(ctrl)
	generator := NewMockInstallmentGenerator(ctrl)
	runs := NewMockRunLedger(ctrl)
	notifier := notify.NewMockNotifier(ctrl)
	logger, hook := test.NewNullLogger()

	due := make([]domain.RecurringExpenseConfig, 0, 10)
	for i := 0; i < 10; i++ {
		due = append(due, domain.RecurringExpenseConfig{
			ID:                fmt.Sprintf("rec-%02d", i),
			Status:            domain.RecurringActive,
			StartDate:         day(2025, 1, 1),
			TotalInstallments: 12,
		})
	}
	failing := map[string]bool{"rec-02": true, "rec-05": true, "rec-09": true}

	runs.EXPECT().
		CheckAndReserve(gomock.Any(), domain.JobRecurringExpenses, day(2025, 1, 15), "corr-x").
		Return(ledger.Reservation{CanProceed: true, Run: &domain.BatchRun{ID: "run-1", Status: domain.RunRunning}}, nil)
	configs.EXPECT().ListDueRecurringConfigs(gomock.Any()).Return(due, nil)
	generator.EXPECT().
		Generate(gomock.Any(), gomock.Any()).
		Times(10).
		DoAndReturn(func(_ context.Context, id string) ([]domain.ExpenseInstallment, error) {
			if failing[id] {
				return nil, errors.New("expense service unavailable")
			}
			return []domain.ExpenseInstallment{{ConfigID: id, InstallmentNumber: 1}}, nil
		})
	configs.EXPECT().
		IncrementInstallmentsGenerated(gomock.Any(), gomock.Any(), 0).
		Times(7).
		Return(&domain.RecurringExpenseConfig{}, nil)
	runs.EXPECT().
		Finalize(gomock.Any(), "run-1", domain.RunPartial, "processed=10 generated=7 errors=3").
		Return(&domain.BatchRun{ID: "run-1", Status: domain.RunPartial}, nil)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("channel down"))

	s := NewScheduler(configs, generator, runs, nil, notifier, time.UTC, logger)
	s.now = func() time.Time { return day(2025, 1, 15).Add(5 * time.Hour) }

	res, err := s.Run(context.Background(), "corr-x")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartial, res.Status)
	assert.Equal(t, 10, res.Processed)
	assert.Equal(t, 7, res.Generated)
	assert.Equal(t, 3, res.Errors)
	assert.Len(t, res.ErrorsList, 3)
	assert.Equal(t, "run-1", res.RunID)

	var notifyWarned bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "batch notification failed" && entry.Level == logrus.WarnLevel {
			notifyWarned = true
		}
	}
	assert.True(t, notifyWarned)
}

func TestRunCapsErrorsList(t *testing.T) {
	ctrl := gomock.NewController(t)
	configs := NewMockConfigStore(ctrl)
	generator := NewMockInstallmentGenerator(ctrl)
	runs := NewMockRunLedger(ctrl)
	logger, _ := test.NewNullLogger()

	due := make([]domain.RecurringExpenseConfig, 8)
	for i := range due {
		due[i] = domain.RecurringExpenseConfig{ID: fmt.Sprintf("rec-%d", i), StartDate: day(2025, 1, 1), TotalInstallments: 2}
	}
	runs.EXPECT().CheckAndReserve(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(ledger.Reservation{CanProceed: true, Run: &domain.BatchRun{ID: "run-2"}}, nil)
	configs.EXPECT().ListDueRecurringConfigs(gomock.Any()).Return(due, nil)
	generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Times(8).Return(nil, errors.New("boom"))
	runs.EXPECT().Finalize(gomock.Any(), "run-2", domain.RunPartial, gomock.Any()).Return(&domain.BatchRun{}, nil)

	s := NewScheduler(configs, generator, runs, nil, nil, time.UTC, logger)
	s.now = func() time.Time { return day(2025, 1, 15) }

	res, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartial, res.Status)
	assert.Equal(t, 8, res.Errors)
	assert.Len(t, res.ErrorsList, 5)
	assert.Equal(t, 0, res.Generated)
}

func TestRunFailsWhenConfigsCannotBeFetched(t *testing.T) {
	ctrl := gomock.NewController(t)
	configs := NewMockConfigStore(ctrl)
	runs := NewMockRunLedger(ctrl)
	logger, _ := test.NewNullLogger()

	runs.EXPECT().CheckAndReserve(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(ledger.Reservation{CanProceed: true, Run: &domain.BatchRun{ID: "run-3"}}, nil)
	configs.EXPECT().ListDueRecurringConfigs(gomock.Any()).Return(nil, errors.New("connection refused"))
	runs.EXPECT().Finalize(gomock.Any(), "run-3", domain.RunFailed, gomock.Any()).Return(&domain.BatchRun{}, nil)

	s := NewScheduler(configs, NewMockInstallmentGenerator(ctrl), runs, nil, nil, time.UTC, logger)
	s.now = func() time.Time { return day(2025, 1, 15) }

	res, err := s.Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, res.Status)
	assert.Equal(t, "run-3", res.RunID)
}

type heldLocker struct{}

func (heldLocker) Obtain(_ context.Context, _ string, _ time.Duration) (lock.Lock, error) {
	return nil, lock.ErrNotObtained
}

type brokenLocker struct{}

func (brokenLocker) Obtain(_ context.Context, _ string, _ time.Duration) (lock.Lock, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestRunSkipsWhenBatchLockIsHeld(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger, _ := test.NewNullLogger()

	s := NewScheduler(NewMockConfigStore(ctrl), NewMockInstallmentGenerator(ctrl), NewMockRunLedger(ctrl), heldLocker{}, nil, time.UTC, logger)
	s.now = func() time.Time { return day(2025, 1, 15) }

	res, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ledger.ReasonAlreadyRunning, res.Reason)
}

func TestRunProceedsWhenLockBackendIsDown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	repo := memory.New()
	s := NewScheduler(repo, NewStoreGenerator(repo), ledger.New(repo, time.Hour, logger), brokenLocker{}, nil, time.UTC, logger)
	s.now = func() time.Time { return day(2025, 1, 15) }

	res, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, domain.RunSuccess, res.Status)
}
