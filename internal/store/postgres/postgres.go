package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const cashSessionColumns = `
	id, location_id, status, opening_balance, opening_notes, opened_by, opened_at,
	closing_balance, expected_balance, difference, closing_notes, closed_by, closed_at`

func scanCashSession(row interface{ Scan(...any) error }) (*domain.CashSession, error) {
	var session domain.CashSession
	var closing, expected, difference decimal.NullDecimal
	var closedAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.LocationID,
		&session.Status,
		&session.OpeningBalance,
		&session.OpeningNotes,
		&session.OpenedBy,
		&session.OpenedAt,
		&closing,
		&expected,
		&difference,
		&session.ClosingNotes,
		&session.ClosedBy,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	session.ClosingBalance = decimalPtr(closing)
	session.ExpectedBalance = decimalPtr(expected)
	session.Difference = decimalPtr(difference)
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return &session, nil
}

// CreateCashSession relies on the partial unique index on open sessions per
// location: a second open for the same location fails with ErrDuplicate.
func (s *Store) CreateCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if session.ID == "" {
		session.ID = xid.New("cash")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.CashSessionOpen
	session.ClosedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_sessions (
			id, location_id, status, opening_balance, opening_notes, opened_by, opened_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, session.ID, session.LocationID, session.Status, session.OpeningBalance,
		session.OpeningNotes, session.OpenedBy, session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	saved := session
	return &saved, nil
}

func (s *Store) GetCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	return scanCashSession(s.db.QueryRowContext(ctx, `
		SELECT `+cashSessionColumns+`
		FROM cash_sessions
		WHERE id = $1
	`, id))
}

func (s *Store) GetOpenCashSession(ctx context.Context, locationID string) (*domain.CashSession, error) {
	return scanCashSession(s.db.QueryRowContext(ctx, `
		SELECT `+cashSessionColumns+`
		FROM cash_sessions
		WHERE location_id = $1 AND status = 'OPEN'
	`, locationID))
}

// CloseCashSession locks the session row for update, so it waits for any
// order close or movement holding the share lock, then sums the drawer in the
// same transaction.
func (s *Store) CloseCashSession(ctx context.Context, params store.CloseCashSessionParams) (*domain.CashSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanCashSession(tx.QueryRowContext(ctx, `
		SELECT `+cashSessionColumns+`
		FROM cash_sessions
		WHERE id = $1
		FOR UPDATE
	`, params.SessionID))
	if err != nil {
		return nil, err
	}
	if !current.IsOpen() {
		return nil, store.ErrStaleState
	}

	var hasOpenOrders bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE cash_session_id = $1 AND status = 'OPEN')
	`, current.ID).Scan(&hasOpenOrders); err != nil {
		return nil, err
	}
	if hasOpenOrders {
		return nil, store.ErrOpenOrders
	}

	var drawer decimal.Decimal
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM cash_movements WHERE session_id = $1 AND affects_cash
	`, current.ID).Scan(&drawer); err != nil {
		return nil, err
	}
	expected := current.OpeningBalance.Add(drawer).Round(2)
	if params.Verify != nil {
		if err := params.Verify(expected); err != nil {
			return nil, err
		}
	}

	closedAt := params.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	counted := params.CountedBalance.Round(2)
	closed, err := scanCashSession(tx.QueryRowContext(ctx, `
		UPDATE cash_sessions
		SET status = 'CLOSED', closing_balance = $2, expected_balance = $3, difference = $4,
			closing_notes = $5, closed_by = $6, closed_at = $7
		WHERE id = $1
		RETURNING `+cashSessionColumns,
		current.ID, counted, expected, counted.Sub(expected), params.Notes, params.ClosedBy, closedAt))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *Store) CreateCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenSession(ctx, tx, movement.SessionID); err != nil {
		return nil, err
	}
	saved, err := insertMovement(ctx, tx, movement)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

// lockOpenSession takes a share lock on the session row so a concurrent close
// waits for the caller's transaction.
func lockOpenSession(ctx context.Context, q queryer, sessionID string) error {
	var status string
	err := q.QueryRowContext(ctx, `
		SELECT status FROM cash_sessions WHERE id = $1 FOR SHARE
	`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if status != domain.CashSessionOpen {
		return store.ErrStaleState
	}
	return nil
}

func insertMovement(ctx context.Context, q queryer, movement domain.CashMovement) (*domain.CashMovement, error) {
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO cash_movements (
			id, session_id, kind, order_id, payment_method_id, amount, affects_cash, description, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.SessionID, movement.Kind, nullIfEmpty(movement.OrderID),
		nullIfEmpty(movement.PaymentMethodID), movement.Amount, movement.AffectsCash,
		movement.Description, movement.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *Store) ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, COALESCE(order_id, ''), COALESCE(payment_method_id, ''),
			amount, affects_cash, description, created_at
		FROM cash_movements
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.CashMovement, 0, 32)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Kind, &m.OrderID, &m.PaymentMethodID,
			&m.Amount, &m.AffectsCash, &m.Description, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, commission_percent, active
		FROM services
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 32)
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Price, &svc.CommissionPercent, &svc.Active); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *Store) GetService(ctx context.Context, id string) (*domain.Service, error) {
	var svc domain.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, commission_percent, active
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.Price, &svc.CommissionPercent, &svc.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, affects_cash, active
		FROM payment_methods
		WHERE id = $1
	`, id).Scan(&pm.ID, &pm.Name, &pm.AffectsCash, &pm.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pm, nil
}

func (s *Store) GetCommissionOverride(ctx context.Context, professionalID string, serviceID string) (*domain.CommissionOverride, error) {
	var o domain.CommissionOverride
	err := s.db.QueryRowContext(ctx, `
		SELECT professional_id, service_id, percent, updated_at
		FROM commission_overrides
		WHERE professional_id = $1 AND service_id = $2
	`, professionalID, serviceID).Scan(&o.ProfessionalID, &o.ServiceID, &o.Percent, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func (s *Store) UpsertCommissionOverride(ctx context.Context, override domain.CommissionOverride) (*domain.CommissionOverride, error) {
	if override.UpdatedAt.IsZero() {
		override.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commission_overrides (professional_id, service_id, percent, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (professional_id, service_id)
		DO UPDATE SET percent = EXCLUDED.percent, updated_at = EXCLUDED.updated_at
	`, override.ProfessionalID, override.ServiceID, override.Percent, override.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := override
	return &saved, nil
}

func (s *Store) DeleteCommissionOverride(ctx context.Context, professionalID string, serviceID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM commission_overrides
		WHERE professional_id = $1 AND service_id = $2
	`, professionalID, serviceID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.LocationID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, locationID string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR location_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.LocationID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func decimalPtr(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	d := val.Decimal
	return &d
}

func dateOnly(t time.Time) time.Time {
	return domain.DateOf(t, time.UTC)
}
