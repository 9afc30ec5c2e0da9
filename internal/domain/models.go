package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Actor struct {
	Username string
	Role     string
}

type CashSession struct {
	ID              string           `json:"id"`
	LocationID      string           `json:"location_id"`
	Status          string           `json:"status"`
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	OpeningNotes    string           `json:"opening_notes,omitempty"`
	OpenedBy        string           `json:"opened_by,omitempty"`
	OpenedAt        time.Time        `json:"opened_at"`
	ClosingBalance  *decimal.Decimal `json:"closing_balance,omitempty"`
	ExpectedBalance *decimal.Decimal `json:"expected_balance,omitempty"`
	Difference      *decimal.Decimal `json:"difference,omitempty"`
	ClosingNotes    string           `json:"closing_notes,omitempty"`
	ClosedBy        string           `json:"closed_by,omitempty"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
}

func (s CashSession) IsOpen() bool {
	return s.Status == CashSessionOpen
}

// CashMovement is an immutable entry against a cash session. Amount is signed:
// withdrawals are negative.
type CashMovement struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	Kind            string          `json:"kind"`
	OrderID         string          `json:"order_id,omitempty"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	AffectsCash     bool            `json:"affects_cash"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ExpectedCash is the opening balance plus every movement of the session that
// affects the drawer.
func ExpectedCash(session CashSession, movements []CashMovement) decimal.Decimal {
	expected := session.OpeningBalance
	for _, m := range movements {
		if m.SessionID != session.ID || !m.AffectsCash {
			continue
		}
		expected = expected.Add(m.Amount)
	}
	return expected.Round(2)
}

type Service struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	Active            bool            `json:"active"`
}

type CommissionOverride struct {
	ProfessionalID string          `json:"professional_id"`
	ServiceID      string          `json:"service_id"`
	Percent        decimal.Decimal `json:"percent"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type PaymentMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AffectsCash bool   `json:"affects_cash"`
	Active      bool   `json:"active"`
}

type Order struct {
	ID              string          `json:"id"`
	LocationID      string          `json:"location_id"`
	ClientID        string          `json:"client_id"`
	ProfessionalID  string          `json:"professional_id"`
	CashSessionID   string          `json:"cash_session_id"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CommissionTotal decimal.Decimal `json:"commission_total"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	AccountID       string          `json:"account_id,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	RevenueStatus   string          `json:"revenue_status,omitempty"`
	RevenueRef      string          `json:"revenue_ref,omitempty"`
	RevenueError    string          `json:"revenue_error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	Items           []OrderItem     `json:"items"`
}

func (o Order) IsOpen() bool {
	return o.Status == OrderOpen
}

type OrderItem struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id"`
	ServiceID         string          `json:"service_id"`
	ProfessionalID    string          `json:"professional_id"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	CommissionValue   decimal.Decimal `json:"commission_value"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Amount is unit price times quantity.
func (i OrderItem) Amount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CommissionFor computes the commission value of a line from its snapshot values.
func CommissionFor(unitPrice decimal.Decimal, quantity int, percent decimal.Decimal) decimal.Decimal {
	return unitPrice.
		Mul(decimal.NewFromInt(int64(quantity))).
		Mul(percent).
		Div(decimal.NewFromInt(100)).
		Round(2)
}

// SumItems returns the order total and commission total of the given lines.
func SumItems(items []OrderItem) (total decimal.Decimal, commission decimal.Decimal) {
	total = decimal.Zero
	commission = decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount())
		commission = commission.Add(item.CommissionValue)
	}
	return total.Round(2), commission.Round(2)
}

type RevenueRecord struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	LocationID      string          `json:"location_id"`
	ClientID        string          `json:"client_id"`
	ProfessionalID  string          `json:"professional_id"`
	PaymentMethodID string          `json:"payment_method_id"`
	AccountID       string          `json:"account_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	CommissionTotal decimal.Decimal `json:"commission_total"`
	Date            time.Time       `json:"date"`
	Note            string          `json:"note"`
	CreatedAt       time.Time       `json:"created_at"`
}

type RecurringExpenseConfig struct {
	ID                    string          `json:"id"`
	ExpenseID             string          `json:"expense_id"`
	LocationID            string          `json:"location_id"`
	Description           string          `json:"description"`
	Amount                decimal.Decimal `json:"amount"`
	Status                string          `json:"status"`
	Cadence               string          `json:"cadence"`
	StartDate             time.Time       `json:"start_date"`
	InstallmentsGenerated int             `json:"installments_generated"`
	TotalInstallments     int             `json:"total_installments"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (c RecurringExpenseConfig) Exhausted() bool {
	return c.InstallmentsGenerated >= c.TotalInstallments
}

// NextDueDate is the due date of installment InstallmentsGenerated+1.
func (c RecurringExpenseConfig) NextDueDate() time.Time {
	return AddMonthsClamped(c.StartDate, c.InstallmentsGenerated)
}

type ExpenseInstallment struct {
	ID                string          `json:"id"`
	ConfigID          string          `json:"config_id"`
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

type BatchRun struct {
	ID            string     `json:"id"`
	JobType       string     `json:"job_type"`
	RunDate       time.Time  `json:"run_date"`
	Status        string     `json:"status"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	CashSessionOpen   = "OPEN"
	CashSessionClosed = "CLOSED"
)

const (
	MovementSale       = "SALE"
	MovementDeposit    = "DEPOSIT"
	MovementWithdrawal = "WITHDRAWAL"
)

const (
	OrderOpen     = "OPEN"
	OrderClosed   = "CLOSED"
	OrderCanceled = "CANCELED"
)

const (
	RevenuePending = "PENDING"
	RevenuePosted  = "POSTED"
	RevenueFailed  = "FAILED"
)

const (
	RecurringActive   = "active"
	RecurringInactive = "inactive"

	CadenceMonthlyFixedDay = "MONTHLY_FIXED_DAY"

	InstallmentPending = "PENDING"
)

const (
	RunRunning = "RUNNING"
	RunSuccess = "SUCCESS"
	RunPartial = "PARTIAL"
	RunFailed  = "FAILED"
)

const JobRecurringExpenses = "RECURRING_EXPENSES"

// MinCancelReasonLength is the minimum trimmed length of an order cancellation reason.
const MinCancelReasonLength = 10
