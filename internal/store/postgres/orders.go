package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

const orderColumns = `
	id, location_id, client_id, professional_id, cash_session_id, status,
	total_amount, commission_total, COALESCE(payment_method_id, ''), COALESCE(account_id, ''),
	cancel_reason, revenue_status, revenue_ref, revenue_error, created_at, closed_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var order domain.Order
	var closedAt sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.LocationID,
		&order.ClientID,
		&order.ProfessionalID,
		&order.CashSessionID,
		&order.Status,
		&order.TotalAmount,
		&order.CommissionTotal,
		&order.PaymentMethodID,
		&order.AccountID,
		&order.CancelReason,
		&order.RevenueStatus,
		&order.RevenueRef,
		&order.RevenueError,
		&order.CreatedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		order.ClosedAt = &at
	}
	order.Items = []domain.OrderItem{}
	return &order, nil
}

func loadOrder(ctx context.Context, q queryer, id string) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func loadItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, service_id, professional_id, quantity, unit_price,
			commission_percent, commission_value, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ServiceID, &item.ProfessionalID,
			&item.Quantity, &item.UnitPrice, &item.CommissionPercent, &item.CommissionValue,
			&item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

// lockOpenOrder row-locks the order for the rest of the transaction and
// rejects anything not OPEN.
func lockOpenOrder(ctx context.Context, tx *sql.Tx, orderID string) (sessionID string, err error) {
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status, cash_session_id FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&status, &sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	if status != domain.OrderOpen {
		return "", store.ErrStaleState
	}
	return sessionID, nil
}

func recomputeTotals(ctx context.Context, tx *sql.Tx, orderID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET total_amount = COALESCE((SELECT SUM(unit_price * quantity) FROM order_items WHERE order_id = $1), 0),
			commission_total = COALESCE((SELECT SUM(commission_value) FROM order_items WHERE order_id = $1), 0)
		WHERE id = $1
	`, orderID)
	return err
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var locationID string
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT location_id, status FROM cash_sessions WHERE id = $1 FOR SHARE
	`, order.CashSessionID).Scan(&locationID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.CashSessionOpen {
		return nil, store.ErrStaleState
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, location_id, client_id, professional_id, cash_session_id, status,
			total_amount, commission_total, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,0,0,$7)
	`, order.ID, locationID, order.ClientID, order.ProfessionalID, order.CashSessionID,
		domain.OrderOpen, order.CreatedAt)
	if err != nil {
		return nil, err
	}
	saved, err := loadOrder(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, s.db, id)
}

func (s *Store) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR location_id = $1)
			AND ($2 = '' OR cash_session_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, filter.LocationID, filter.CashSessionID, filter.Status, limit)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range orders {
		items, err := loadItems(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (s *Store) GetOrderItem(ctx context.Context, itemID string) (*domain.OrderItem, error) {
	var item domain.OrderItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, service_id, professional_id, quantity, unit_price,
			commission_percent, commission_value, created_at
		FROM order_items
		WHERE id = $1
	`, itemID).Scan(&item.ID, &item.OrderID, &item.ServiceID, &item.ProfessionalID,
		&item.Quantity, &item.UnitPrice, &item.CommissionPercent, &item.CommissionValue,
		&item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) AddOrderItem(ctx context.Context, item domain.OrderItem) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockOpenOrder(ctx, tx, item.OrderID); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_items (
			id, order_id, service_id, professional_id, quantity, unit_price,
			commission_percent, commission_value, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, item.ID, item.OrderID, item.ServiceID, item.ProfessionalID, item.Quantity,
		item.UnitPrice, item.CommissionPercent, item.CommissionValue, item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s.finishItemChange(ctx, tx, item.OrderID)
}

func (s *Store) UpdateOrderItem(ctx context.Context, item domain.OrderItem) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	orderID, err := itemOrderID(ctx, tx, item.ID)
	if err != nil {
		return nil, err
	}
	if _, err := lockOpenOrder(ctx, tx, orderID); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE order_items
		SET quantity = $2, unit_price = $3, commission_percent = $4, commission_value = $5
		WHERE id = $1
	`, item.ID, item.Quantity, item.UnitPrice, item.CommissionPercent, item.CommissionValue)
	if err != nil {
		return nil, err
	}
	return s.finishItemChange(ctx, tx, orderID)
}

func (s *Store) RemoveOrderItem(ctx context.Context, itemID string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	orderID, err := itemOrderID(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := lockOpenOrder(ctx, tx, orderID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE id = $1`, itemID); err != nil {
		return nil, err
	}
	return s.finishItemChange(ctx, tx, orderID)
}

func itemOrderID(ctx context.Context, tx *sql.Tx, itemID string) (string, error) {
	var orderID string
	err := tx.QueryRowContext(ctx, `SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return orderID, nil
}

func (s *Store) finishItemChange(ctx context.Context, tx *sql.Tx, orderID string) (*domain.Order, error) {
	if err := recomputeTotals(ctx, tx, orderID); err != nil {
		return nil, err
	}
	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// CloseOrder re-checks status and item count under the row lock, closes the
// order with a PENDING revenue status and writes the SALE movement, all in one
// transaction.
func (s *Store) CloseOrder(ctx context.Context, params store.CloseOrderParams) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sessionID, err := lockOpenOrder(ctx, tx, params.OrderID)
	if err != nil {
		return nil, err
	}
	var itemCount int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_items WHERE order_id = $1
	`, params.OrderID).Scan(&itemCount); err != nil {
		return nil, err
	}
	if itemCount == 0 {
		return nil, store.ErrEmptyOrder
	}
	if err := lockOpenSession(ctx, tx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrStaleState
		}
		return nil, err
	}
	if err := recomputeTotals(ctx, tx, params.OrderID); err != nil {
		return nil, err
	}

	closedAt := params.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	var total decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, payment_method_id = $3, account_id = $4, revenue_status = $5,
			revenue_ref = '', revenue_error = '', closed_at = $6
		WHERE id = $1 AND status = 'OPEN'
		RETURNING total_amount
	`, params.OrderID, domain.OrderClosed, params.PaymentMethodID, nullIfEmpty(params.AccountID),
		domain.RevenuePending, closedAt).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrStaleState
		}
		return nil, err
	}

	_, err = insertMovement(ctx, tx, domain.CashMovement{
		SessionID:       sessionID,
		Kind:            domain.MovementSale,
		OrderID:         params.OrderID,
		PaymentMethodID: params.PaymentMethodID,
		Amount:          total,
		AffectsCash:     params.AffectsCash,
		Description:     "order " + params.OrderID,
		CreatedAt:       closedAt,
	})
	if err != nil {
		return nil, err
	}

	order, err := loadOrder(ctx, tx, params.OrderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) CancelOrder(ctx context.Context, orderID string, reason string, at time.Time) (*domain.Order, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, cancel_reason = $3, closed_at = $4
		WHERE id = $1 AND status = 'OPEN'
	`, orderID, domain.OrderCanceled, reason, at)
	if err != nil {
		return nil, err
	}
	if err := s.requireAffected(ctx, res, orderID); err != nil {
		return nil, err
	}
	return loadOrder(ctx, s.db, orderID)
}

func (s *Store) UpdateOrderRevenue(ctx context.Context, orderID string, status string, ref string, errText string) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET revenue_status = $2, revenue_ref = $3, revenue_error = $4
		WHERE id = $1 AND status = 'CLOSED'
	`, orderID, status, ref, errText)
	if err != nil {
		return nil, err
	}
	if err := s.requireAffected(ctx, res, orderID); err != nil {
		return nil, err
	}
	return loadOrder(ctx, s.db, orderID)
}

// requireAffected maps a conditional update that touched nothing to
// ErrNotFound or ErrStaleState.
func (s *Store) requireAffected(ctx context.Context, res sql.Result, orderID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrStaleState
}

func (s *Store) CreateRevenueRecord(ctx context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error) {
	if record.ID == "" {
		record.ID = xid.New("rev")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revenue_records (
			id, order_id, location_id, client_id, professional_id, payment_method_id,
			account_id, amount, commission_total, revenue_date, note, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, record.ID, record.OrderID, record.LocationID, record.ClientID, record.ProfessionalID,
		record.PaymentMethodID, nullIfEmpty(record.AccountID), record.Amount, record.CommissionTotal,
		dateOnly(record.Date), record.Note, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getRevenueByOrder(ctx, record.OrderID)
			if getErr != nil {
				return nil, getErr
			}
			return existing, store.ErrDuplicate
		}
		return nil, err
	}
	saved := record
	return &saved, nil
}

func (s *Store) getRevenueByOrder(ctx context.Context, orderID string) (*domain.RevenueRecord, error) {
	var rec domain.RevenueRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, location_id, client_id, professional_id, payment_method_id,
			COALESCE(account_id, ''), amount, commission_total, revenue_date, note, created_at
		FROM revenue_records
		WHERE order_id = $1
	`, orderID).Scan(&rec.ID, &rec.OrderID, &rec.LocationID, &rec.ClientID, &rec.ProfessionalID,
		&rec.PaymentMethodID, &rec.AccountID, &rec.Amount, &rec.CommissionTotal, &rec.Date,
		&rec.Note, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
