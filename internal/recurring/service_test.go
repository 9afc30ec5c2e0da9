package recurring

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store/memory"
)

func TestConfigServiceLifecycle(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc := NewConfigService(memory.New(), logger)
	ctx := context.Background()

	cfg, err := svc.CreateConfig(ctx, CreateConfigParams{
		ExpenseID:         "exp-1",
		LocationID:        "loc-1",
		Description:       " Equipment lease ",
		Amount:            decimal.RequireFromString("250.005"),
		StartDate:         "2025-01-31",
		TotalInstallments: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RecurringActive, cfg.Status)
	assert.Equal(t, domain.CadenceMonthlyFixedDay, cfg.Cadence)
	assert.Equal(t, "Equipment lease", cfg.Description)
	assert.Equal(t, 0, cfg.InstallmentsGenerated)
	assert.Equal(t, day(2025, 1, 31), cfg.StartDate)
	assert.True(t, cfg.Amount.Equal(decimal.RequireFromString("250.01")))

	installments, err := svc.ListInstallments(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Empty(t, installments)

	deactivated, err := svc.DeactivateConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecurringInactive, deactivated.Status)

	_, err = svc.GetConfig(ctx, "rec-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateConfigValidation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc := NewConfigService(memory.New(), logger)
	base := CreateConfigParams{
		ExpenseID:         "exp-1",
		LocationID:        "loc-1",
		Description:       "Rent",
		Amount:            decimal.NewFromInt(100),
		StartDate:         "2025-01-15",
		TotalInstallments: 3,
	}

	tests := []struct {
		name   string
		mutate func(p *CreateConfigParams)
	}{
		{"zero amount", func(p *CreateConfigParams) { p.Amount = decimal.Zero }},
		{"no installments", func(p *CreateConfigParams) { p.TotalInstallments = 0 }},
		{"bad date", func(p *CreateConfigParams) { p.StartDate = "15/01/2025" }},
		{"missing expense", func(p *CreateConfigParams) { p.ExpenseID = " " }},
		{"missing description", func(p *CreateConfigParams) { p.Description = "  " }},
		{"long description", func(p *CreateConfigParams) { p.Description = strings.Repeat("r", 201) }},
		{"too many installments", func(p *CreateConfigParams) { p.TotalInstallments = 361 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := base
			tt.mutate(&params)
			_, err := svc.CreateConfig(context.Background(), params)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
