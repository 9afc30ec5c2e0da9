package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store/memory"
)

func newLedger(t *testing.T, now time.Time) (*Ledger, *memory.Store) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	repo := memory.New()
	l := New(repo, 30*time.Minute, logger)
	l.now = func() time.Time { return now }
	return l, repo
}

func TestCheckAndReserveSkipsAfterSuccess(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, day.Add(3*time.Hour))
	ctx := context.Background()

	first, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "corr-1")
	require.NoError(t, err)
	require.True(t, first.CanProceed)

	running, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "corr-2")
	require.NoError(t, err)
	assert.False(t, running.CanProceed)
	assert.Equal(t, ReasonAlreadyRunning, running.Reason)
	assert.Equal(t, first.Run.ID, running.Existing.ID)

	_, err = l.Finalize(ctx, first.Run.ID, domain.RunSuccess, "ok")
	require.NoError(t, err)

	done, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "corr-3")
	require.NoError(t, err)
	assert.False(t, done.CanProceed)
	assert.Equal(t, ReasonAlreadyExecuted, done.Reason)

	next, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day.AddDate(0, 0, 1), "corr-4")
	require.NoError(t, err)
	assert.True(t, next.CanProceed)
}

func TestCheckAndReserveAllowsRetryAfterPartial(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, day)
	ctx := context.Background()

	first, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "")
	require.NoError(t, err)
	_, err = l.Finalize(ctx, first.Run.ID, domain.RunPartial, "2 errors")
	require.NoError(t, err)

	retry, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "")
	require.NoError(t, err)
	assert.True(t, retry.CanProceed)
	assert.NotEqual(t, first.Run.ID, retry.Run.ID)
}

func TestCheckAndReserveTakesOverStaleRun(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	l, repo := newLedger(t, day.Add(time.Hour))
	ctx := context.Background()

	crashed, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "")
	require.NoError(t, err)

	l.now = func() time.Time { return day.Add(2 * time.Hour) }
	takeover, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "")
	require.NoError(t, err)
	require.True(t, takeover.CanProceed)

	runs, err := repo.ListBatchRuns(ctx, domain.JobRecurringExpenses, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		if run.ID == crashed.Run.ID {
			assert.Equal(t, domain.RunFailed, run.Status)
		}
	}
}

func TestConcurrentReservationsYieldOneWinner(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, day)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "")
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if res.CanProceed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestFinalizeRejectsUnknownStatusAndDoubleFinalize(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	l, _ := newLedger(t, day)
	ctx := context.Background()

	res, err := l.CheckAndReserve(ctx, domain.JobRecurringExpenses, day, "")
	require.NoError(t, err)

	_, err = l.Finalize(ctx, res.Run.ID, domain.RunRunning, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.Finalize(ctx, res.Run.ID, domain.RunSuccess, "")
	require.NoError(t, err)
	_, err = l.Finalize(ctx, res.Run.ID, domain.RunFailed, "")
	assert.ErrorIs(t, err, domain.ErrState)
}
