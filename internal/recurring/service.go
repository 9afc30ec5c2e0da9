package recurring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validate"
)

type ConfigRepository interface {
	CreateRecurringConfig(ctx context.Context, cfg domain.RecurringExpenseConfig) (*domain.RecurringExpenseConfig, error)
	GetRecurringConfig(ctx context.Context, id string) (*domain.RecurringExpenseConfig, error)
	SetRecurringConfigStatus(ctx context.Context, id string, status string) (*domain.RecurringExpenseConfig, error)
	ListInstallments(ctx context.Context, configID string) ([]domain.ExpenseInstallment, error)
}

type CreateConfigParams struct {
	ExpenseID         string          `json:"expense_id" validate:"required"`
	LocationID        string          `json:"location_id" validate:"required"`
	Description       string          `json:"description" validate:"required,max=200"`
	Amount            decimal.Decimal `json:"amount" validate:"gt=0"`
	StartDate         string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	TotalInstallments int             `json:"total_installments" validate:"required,gte=1,lte=360"`
}

// ConfigService manages recurring expense configurations. Installments are
// produced only by the Scheduler.
type ConfigService struct {
	repo   ConfigRepository
	logger logrus.FieldLogger
}

func NewConfigService(repo ConfigRepository, logger logrus.FieldLogger) *ConfigService {
	return &ConfigService{repo: repo, logger: logger.WithField("component", "recurring_config")}
}

func (s *ConfigService) CreateConfig(ctx context.Context, params CreateConfigParams) (*domain.RecurringExpenseConfig, error) {
	params.ExpenseID = strings.TrimSpace(params.ExpenseID)
	params.LocationID = strings.TrimSpace(params.LocationID)
	params.Description = strings.TrimSpace(params.Description)
	if err := validate.Struct(params); err != nil {
		return nil, err
	}
	start, err := time.Parse(time.DateOnly, params.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date must be YYYY-MM-DD", domain.ErrValidation)
	}

	cfg, err := s.repo.CreateRecurringConfig(ctx, domain.RecurringExpenseConfig{
		ExpenseID:         params.ExpenseID,
		LocationID:        params.LocationID,
		Description:       params.Description,
		Amount:            params.Amount.Round(2),
		Status:            domain.RecurringActive,
		Cadence:           domain.CadenceMonthlyFixedDay,
		StartDate:         domain.DateOf(start, time.UTC),
		TotalInstallments: params.TotalInstallments,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: recurring config already exists", domain.ErrConflict)
		}
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"config_id":  cfg.ID,
		"expense_id": cfg.ExpenseID,
		"total":      cfg.TotalInstallments,
	}).Info("recurring expense config created")
	return cfg, nil
}

func (s *ConfigService) GetConfig(ctx context.Context, id string) (*domain.RecurringExpenseConfig, error) {
	cfg, err := s.repo.GetRecurringConfig(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: recurring config %s", domain.ErrNotFound, id)
	}
	return cfg, err
}

func (s *ConfigService) ListInstallments(ctx context.Context, configID string) ([]domain.ExpenseInstallment, error) {
	if _, err := s.GetConfig(ctx, configID); err != nil {
		return nil, err
	}
	return s.repo.ListInstallments(ctx, configID)
}

// DeactivateConfig stops future generation. Already generated installments
// are kept.
func (s *ConfigService) DeactivateConfig(ctx context.Context, id string) (*domain.RecurringExpenseConfig, error) {
	cfg, err := s.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.Status == domain.RecurringInactive {
		return cfg, nil
	}
	updated, err := s.repo.SetRecurringConfigStatus(ctx, id, domain.RecurringInactive)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("config_id", id).Info("recurring expense config deactivated")
	return updated, nil
}
