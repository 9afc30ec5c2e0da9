package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a unique-key violation: a second open cash session
	// for a location, a second active batch run for a day, or an installment
	// number that already exists.
	ErrDuplicate = errors.New("duplicate")
	// ErrStaleState reports a conditional write that lost: the entity is no
	// longer in the status the write required.
	ErrStaleState = errors.New("stale state")
	ErrEmptyOrder = errors.New("order has no items")
	// ErrOpenOrders refuses a cash session close while orders bound to the
	// session are still OPEN.
	ErrOpenOrders = errors.New("session has open orders")
)

type OrderFilter struct {
	LocationID    string
	CashSessionID string
	Status        string
	Limit         int
}

type CloseOrderParams struct {
	OrderID         string
	PaymentMethodID string
	AccountID       string
	// AffectsCash marks the SALE movement written into the order's session.
	AffectsCash bool
	ClosedAt    time.Time
}

// CloseCashSessionParams closes a session. The store sums the drawer under
// the same lock that sale movements take and passes the expected balance to
// Verify; an error from Verify aborts the close and is returned unchanged.
type CloseCashSessionParams struct {
	SessionID      string
	CountedBalance decimal.Decimal
	Notes          string
	ClosedBy       string
	ClosedAt       time.Time
	Verify         func(expected decimal.Decimal) error
}

type Repository interface {
	CreateCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	GetCashSession(ctx context.Context, id string) (*domain.CashSession, error)
	GetOpenCashSession(ctx context.Context, locationID string) (*domain.CashSession, error)
	CloseCashSession(ctx context.Context, params CloseCashSessionParams) (*domain.CashSession, error)
	CreateCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error)
	ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error)

	ListServices(ctx context.Context) ([]domain.Service, error)
	GetService(ctx context.Context, id string) (*domain.Service, error)
	GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error)
	GetCommissionOverride(ctx context.Context, professionalID string, serviceID string) (*domain.CommissionOverride, error)
	UpsertCommissionOverride(ctx context.Context, override domain.CommissionOverride) (*domain.CommissionOverride, error)
	DeleteCommissionOverride(ctx context.Context, professionalID string, serviceID string) error

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	GetOrderItem(ctx context.Context, itemID string) (*domain.OrderItem, error)
	AddOrderItem(ctx context.Context, item domain.OrderItem) (*domain.Order, error)
	UpdateOrderItem(ctx context.Context, item domain.OrderItem) (*domain.Order, error)
	RemoveOrderItem(ctx context.Context, itemID string) (*domain.Order, error)
	CloseOrder(ctx context.Context, params CloseOrderParams) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string, reason string, at time.Time) (*domain.Order, error)
	UpdateOrderRevenue(ctx context.Context, orderID string, status string, ref string, errText string) (*domain.Order, error)
	CreateRevenueRecord(ctx context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error)

	CreateRecurringConfig(ctx context.Context, cfg domain.RecurringExpenseConfig) (*domain.RecurringExpenseConfig, error)
	GetRecurringConfig(ctx context.Context, id string) (*domain.RecurringExpenseConfig, error)
	ListDueRecurringConfigs(ctx context.Context) ([]domain.RecurringExpenseConfig, error)
	SetRecurringConfigStatus(ctx context.Context, id string, status string) (*domain.RecurringExpenseConfig, error)
	IncrementInstallmentsGenerated(ctx context.Context, id string, expected int) (*domain.RecurringExpenseConfig, error)
	CreateInstallment(ctx context.Context, inst domain.ExpenseInstallment) (*domain.ExpenseInstallment, error)
	GetInstallment(ctx context.Context, configID string, number int) (*domain.ExpenseInstallment, error)
	ListInstallments(ctx context.Context, configID string) ([]domain.ExpenseInstallment, error)

	CreateBatchRun(ctx context.Context, run domain.BatchRun) (*domain.BatchRun, error)
	GetActiveBatchRun(ctx context.Context, jobType string, runDate time.Time) (*domain.BatchRun, error)
	FinalizeBatchRun(ctx context.Context, id string, status string, summary string, finishedAt time.Time) (*domain.BatchRun, error)
	ListBatchRuns(ctx context.Context, jobType string, limit int) ([]domain.BatchRun, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, locationID string, limit int) ([]domain.AuditLog, error)
}
