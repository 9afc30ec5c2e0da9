package revenue

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

// Entry is the revenue line posted when an order closes.
type Entry struct {
	OrderID         string
	LocationID      string
	ClientID        string
	ProfessionalID  string
	PaymentMethodID string
	AccountID       string
	TotalAmount     decimal.Decimal
	CommissionTotal decimal.Decimal
	Date            time.Time
	Note            string
}

// Poster records revenue for a closed order and returns a reference to the
// posted record.
type Poster interface {
	Post(ctx context.Context, entry Entry) (string, error)
}

type recordWriter interface {
	CreateRevenueRecord(ctx context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error)
}

// StorePoster writes a RevenueRecord through the repository. Records are unique
// per order, so posting the same order twice returns the first reference.
type StorePoster struct {
	repo recordWriter
}

func NewStorePoster(repo recordWriter) *StorePoster {
	return &StorePoster{repo: repo}
}

func (p *StorePoster) Post(ctx context.Context, entry Entry) (string, error) {
	if entry.OrderID == "" {
		return "", errors.New("revenue entry without order id")
	}
	rec, err := p.repo.CreateRevenueRecord(ctx, domain.RevenueRecord{
		OrderID:         entry.OrderID,
		LocationID:      entry.LocationID,
		ClientID:        entry.ClientID,
		ProfessionalID:  entry.ProfessionalID,
		PaymentMethodID: entry.PaymentMethodID,
		AccountID:       entry.AccountID,
		Amount:          entry.TotalAmount,
		CommissionTotal: entry.CommissionTotal,
		Date:            entry.Date,
		Note:            entry.Note,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return "", err
	}
	return rec.ID, nil
}
