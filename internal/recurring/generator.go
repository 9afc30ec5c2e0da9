package recurring

import (
	"context"
	"errors"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

type installmentStore interface {
	GetRecurringConfig(ctx context.Context, id string) (*domain.RecurringExpenseConfig, error)
	CreateInstallment(ctx context.Context, inst domain.ExpenseInstallment) (*domain.ExpenseInstallment, error)
}

// StoreGenerator persists installment number generated+1. The (config,
// number) pair is unique, so a repeated call after a lost counter update
// returns the row created the first time instead of a second one.
type StoreGenerator struct {
	repo installmentStore
}

func NewStoreGenerator(repo installmentStore) *StoreGenerator {
	return &StoreGenerator{repo: repo}
}

func (g *StoreGenerator) Generate(ctx context.Context, configID string) ([]domain.ExpenseInstallment, error) {
	cfg, err := g.repo.GetRecurringConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Exhausted() {
		return []domain.ExpenseInstallment{}, nil
	}

	inst, err := g.repo.CreateInstallment(ctx, domain.ExpenseInstallment{
		ConfigID:          cfg.ID,
		InstallmentNumber: cfg.InstallmentsGenerated + 1,
		DueDate:           cfg.NextDueDate(),
		Amount:            cfg.Amount,
		Status:            domain.InstallmentPending,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return nil, err
	}
	return []domain.ExpenseInstallment{*inst}, nil
}
