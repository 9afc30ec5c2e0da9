package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

const recurringColumns = `
	id, expense_id, location_id, description, amount, status, cadence, start_date,
	installments_generated, total_installments, created_at, updated_at`

func scanRecurring(row interface{ Scan(...any) error }) (*domain.RecurringExpenseConfig, error) {
	var cfg domain.RecurringExpenseConfig
	err := row.Scan(&cfg.ID, &cfg.ExpenseID, &cfg.LocationID, &cfg.Description, &cfg.Amount,
		&cfg.Status, &cfg.Cadence, &cfg.StartDate, &cfg.InstallmentsGenerated,
		&cfg.TotalInstallments, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	cfg.StartDate = dateOnly(cfg.StartDate)
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

func (s *Store) CreateRecurringConfig(ctx context.Context, cfg domain.RecurringExpenseConfig) (*domain.RecurringExpenseConfig, error) {
	if cfg.ID == "" {
		cfg.ID = xid.New("rec")
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	cfg.UpdatedAt = cfg.CreatedAt
	cfg.StartDate = dateOnly(cfg.StartDate)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_expense_configs (`+recurringColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, cfg.ID, cfg.ExpenseID, cfg.LocationID, cfg.Description, cfg.Amount, cfg.Status,
		cfg.Cadence, cfg.StartDate, cfg.InstallmentsGenerated, cfg.TotalInstallments,
		cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	saved := cfg
	return &saved, nil
}

func (s *Store) GetRecurringConfig(ctx context.Context, id string) (*domain.RecurringExpenseConfig, error) {
	return scanRecurring(s.db.QueryRowContext(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_expense_configs
		WHERE id = $1
	`, id))
}

func (s *Store) ListDueRecurringConfigs(ctx context.Context) ([]domain.RecurringExpenseConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recurringColumns+`
		FROM recurring_expense_configs
		WHERE status = 'active' AND installments_generated < total_installments
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]domain.RecurringExpenseConfig, 0, 32)
	for rows.Next() {
		cfg, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (s *Store) SetRecurringConfigStatus(ctx context.Context, id string, status string) (*domain.RecurringExpenseConfig, error) {
	return scanRecurring(s.db.QueryRowContext(ctx, `
		UPDATE recurring_expense_configs
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+recurringColumns,
		id, status))
}

// IncrementInstallmentsGenerated is a compare-and-set on the counter; a lost
// race or an exhausted config yields ErrStaleState.
func (s *Store) IncrementInstallmentsGenerated(ctx context.Context, id string, expected int) (*domain.RecurringExpenseConfig, error) {
	cfg, err := scanRecurring(s.db.QueryRowContext(ctx, `
		UPDATE recurring_expense_configs
		SET installments_generated = installments_generated + 1, updated_at = now()
		WHERE id = $1 AND installments_generated = $2 AND installments_generated < total_installments
		RETURNING `+recurringColumns,
		id, expected))
	if errors.Is(err, store.ErrNotFound) {
		if _, getErr := s.GetRecurringConfig(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrStaleState
	}
	return cfg, err
}

func (s *Store) CreateInstallment(ctx context.Context, inst domain.ExpenseInstallment) (*domain.ExpenseInstallment, error) {
	if inst.ID == "" {
		inst.ID = xid.New("inst")
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	inst.DueDate = dateOnly(inst.DueDate)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_installments (
			id, config_id, installment_number, due_date, amount, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, inst.ID, inst.ConfigID, inst.InstallmentNumber, inst.DueDate, inst.Amount, inst.Status, inst.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetInstallment(ctx, inst.ConfigID, inst.InstallmentNumber)
			if getErr != nil {
				return nil, getErr
			}
			return existing, store.ErrDuplicate
		}
		return nil, err
	}
	saved := inst
	return &saved, nil
}

const installmentColumns = `id, config_id, installment_number, due_date, amount, status, created_at`

func scanInstallment(row interface{ Scan(...any) error }) (*domain.ExpenseInstallment, error) {
	var inst domain.ExpenseInstallment
	err := row.Scan(&inst.ID, &inst.ConfigID, &inst.InstallmentNumber, &inst.DueDate,
		&inst.Amount, &inst.Status, &inst.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	inst.DueDate = dateOnly(inst.DueDate)
	inst.CreatedAt = inst.CreatedAt.UTC()
	return &inst, nil
}

func (s *Store) GetInstallment(ctx context.Context, configID string, number int) (*domain.ExpenseInstallment, error) {
	return scanInstallment(s.db.QueryRowContext(ctx, `
		SELECT `+installmentColumns+`
		FROM expense_installments
		WHERE config_id = $1 AND installment_number = $2
	`, configID, number))
}

func (s *Store) ListInstallments(ctx context.Context, configID string) ([]domain.ExpenseInstallment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+installmentColumns+`
		FROM expense_installments
		WHERE config_id = $1
		ORDER BY installment_number
	`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ExpenseInstallment, 0, 12)
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inst)
	}
	return result, rows.Err()
}

const batchRunColumns = `id, job_type, run_date, status, correlation_id, summary, started_at, finished_at`

func scanBatchRun(row interface{ Scan(...any) error }) (*domain.BatchRun, error) {
	var run domain.BatchRun
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.JobType, &run.RunDate, &run.Status, &run.CorrelationID,
		&run.Summary, &run.StartedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	run.RunDate = dateOnly(run.RunDate)
	run.StartedAt = run.StartedAt.UTC()
	if finishedAt.Valid {
		at := finishedAt.Time.UTC()
		run.FinishedAt = &at
	}
	return &run, nil
}

// CreateBatchRun inserts a RUNNING row. The partial unique index over
// RUNNING/SUCCESS rows per (job type, run date) is the reservation: on
// conflict the current holder is returned alongside ErrDuplicate.
func (s *Store) CreateBatchRun(ctx context.Context, run domain.BatchRun) (*domain.BatchRun, error) {
	if run.ID == "" {
		run.ID = xid.New("run")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.RunDate = dateOnly(run.RunDate)
	run.Status = domain.RunRunning
	run.FinishedAt = nil

	insert := func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO batch_runs (`+batchRunColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, run.ID, run.JobType, run.RunDate, run.Status, run.CorrelationID, run.Summary,
			run.StartedAt, nullTime(run.FinishedAt))
		return err
	}
	holder := func(ctx context.Context) (*domain.BatchRun, error) {
		return s.GetActiveBatchRun(ctx, run.JobType, run.RunDate)
	}
	existing, err := insertOrHolder(ctx, insert, holder)
	if err != nil {
		return existing, err
	}
	saved := run
	return &saved, nil
}

// insertOrHolder runs insert and, on a unique violation, looks up the row
// that holds the slot. A holder finalized between the two steps frees the
// slot, so the insert is tried once more.
func insertOrHolder(
	ctx context.Context,
	insert func(context.Context) error,
	holder func(context.Context) (*domain.BatchRun, error),
) (*domain.BatchRun, error) {
	for attempt := 0; ; attempt++ {
		err := insert(ctx)
		if err == nil {
			return nil, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		existing, getErr := holder(ctx)
		if getErr == nil {
			return existing, store.ErrDuplicate
		}
		if !errors.Is(getErr, store.ErrNotFound) || attempt > 0 {
			return nil, getErr
		}
	}
}

func (s *Store) GetActiveBatchRun(ctx context.Context, jobType string, runDate time.Time) (*domain.BatchRun, error) {
	return scanBatchRun(s.db.QueryRowContext(ctx, `
		SELECT `+batchRunColumns+`
		FROM batch_runs
		WHERE job_type = $1 AND run_date = $2 AND status IN ('RUNNING', 'SUCCESS')
		ORDER BY started_at DESC
		LIMIT 1
	`, jobType, dateOnly(runDate)))
}

func (s *Store) FinalizeBatchRun(ctx context.Context, id string, status string, summary string, finishedAt time.Time) (*domain.BatchRun, error) {
	run, err := scanBatchRun(s.db.QueryRowContext(ctx, `
		UPDATE batch_runs
		SET status = $2, summary = $3, finished_at = $4
		WHERE id = $1 AND status = 'RUNNING'
		RETURNING `+batchRunColumns,
		id, status, summary, finishedAt))
	if errors.Is(err, store.ErrNotFound) {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM batch_runs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrStaleState
	}
	return run, err
}

func (s *Store) ListBatchRuns(ctx context.Context, jobType string, limit int) ([]domain.BatchRun, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchRunColumns+`
		FROM batch_runs
		WHERE ($1 = '' OR job_type = $1)
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`, jobType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]domain.BatchRun, 0, limit)
	for rows.Next() {
		run, err := scanBatchRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
