package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validate"
)

// OverrideLookup reads professional-specific commission percentages keyed by
// (professional, service).
type OverrideLookup interface {
	GetCommissionOverride(ctx context.Context, professionalID string, serviceID string) (*domain.CommissionOverride, error)
}

type cachedOverride struct {
	Found   bool            `json:"found"`
	Percent decimal.Decimal `json:"percent"`
}

type CommissionResolver struct {
	lookup OverrideLookup
	cache  cache.CatalogCache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewCommissionResolver(lookup OverrideLookup, c cache.CatalogCache, ttl time.Duration, logger logrus.FieldLogger) *CommissionResolver {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &CommissionResolver{lookup: lookup, cache: c, ttl: ttl, logger: logger}
}

func overrideCacheKey(professionalID string, serviceID string) string {
	return "commission:" + professionalID + ":" + serviceID
}

// Resolve returns the override percent for (professionalID, serviceID) when
// one exists and defaultPercent otherwise. Lookup failures are returned.
func (r *CommissionResolver) Resolve(ctx context.Context, professionalID string, serviceID string, defaultPercent decimal.Decimal) (decimal.Decimal, error) {
	if professionalID == "" {
		return defaultPercent, nil
	}

	key := overrideCacheKey(professionalID, serviceID)
	var entry cachedOverride
	hit, err := r.cache.Get(ctx, key, &entry)
	if err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("commission cache read failed")
	}
	if hit {
		if entry.Found {
			return entry.Percent, nil
		}
		return defaultPercent, nil
	}

	override, err := r.lookup.GetCommissionOverride(ctx, professionalID, serviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		entry = cachedOverride{}
	case err != nil:
		return decimal.Zero, fmt.Errorf("resolve commission: %w", err)
	default:
		entry = cachedOverride{Found: true, Percent: override.Percent}
	}

	if err := r.cache.Set(ctx, professionalID, key, entry, r.ttl); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("commission cache write failed")
	}
	if entry.Found {
		return entry.Percent, nil
	}
	return defaultPercent, nil
}

// Invalidate drops every cached entry owned by professionalID.
func (r *CommissionResolver) Invalidate(ctx context.Context, professionalID string) {
	if err := r.cache.InvalidateOwner(ctx, professionalID); err != nil {
		r.logger.WithError(err).WithField("professional_id", professionalID).Warn("commission cache invalidation failed")
	}
}

type CommissionQuote struct {
	ProfessionalID string          `json:"professional_id"`
	ServiceID      string          `json:"service_id"`
	Percent        decimal.Decimal `json:"percent"`
	DefaultPercent decimal.Decimal `json:"default_percent"`
	Overridden     bool            `json:"overridden"`
}

type SetCommissionOverrideRequest struct {
	ProfessionalID string          `json:"professional_id" validate:"required"`
	ServiceID      string          `json:"service_id" validate:"required"`
	Percent        decimal.Decimal `json:"percent" validate:"gte=0,lte=100"`
}

const servicesCacheKey = "services"

// ListServices returns the service catalog, cached under cache.OwnerCatalog.
func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	var services []domain.Service
	hit, err := s.catalog.Get(ctx, servicesCacheKey, &services)
	if err != nil {
		s.logger.WithError(err).Warn("catalog cache read failed")
	}
	if hit {
		return services, nil
	}

	services, err = s.repo.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Set(ctx, cache.OwnerCatalog, servicesCacheKey, services, s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("catalog cache write failed")
	}
	return services, nil
}

func (s *Service) ResolveCommission(ctx context.Context, professionalID string, serviceID string) (CommissionQuote, error) {
	professionalID = strings.TrimSpace(professionalID)
	serviceID = strings.TrimSpace(serviceID)
	if professionalID == "" || serviceID == "" {
		return CommissionQuote{}, fmt.Errorf("%w: professional_id and service_id are required", domain.ErrValidation)
	}

	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return CommissionQuote{}, notFound(err, "service %s", serviceID)
	}
	percent, err := s.commissions.Resolve(ctx, professionalID, serviceID, svc.CommissionPercent)
	if err != nil {
		return CommissionQuote{}, err
	}
	return CommissionQuote{
		ProfessionalID: professionalID,
		ServiceID:      serviceID,
		Percent:        percent,
		DefaultPercent: svc.CommissionPercent,
		Overridden:     !percent.Equal(svc.CommissionPercent),
	}, nil
}

func (s *Service) SetCommissionOverride(ctx context.Context, req SetCommissionOverrideRequest) (domain.CommissionOverride, error) {
	if err := validate.Struct(req); err != nil {
		return domain.CommissionOverride{}, err
	}
	if _, err := s.repo.GetService(ctx, req.ServiceID); err != nil {
		return domain.CommissionOverride{}, notFound(err, "service %s", req.ServiceID)
	}

	saved, err := s.repo.UpsertCommissionOverride(ctx, domain.CommissionOverride{
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		Percent:        req.Percent.Round(2),
		UpdatedAt:      s.now(),
	})
	if err != nil {
		return domain.CommissionOverride{}, err
	}
	s.commissions.Invalidate(ctx, req.ProfessionalID)
	s.logAudit(ctx, "", "commission_override_set", "commission_override", req.ProfessionalID+"/"+req.ServiceID, "percent="+saved.Percent.StringFixed(2))

	return *saved, nil
}

func (s *Service) DeleteCommissionOverride(ctx context.Context, professionalID string, serviceID string) error {
	if err := s.repo.DeleteCommissionOverride(ctx, professionalID, serviceID); err != nil {
		return notFound(err, "commission override %s/%s", professionalID, serviceID)
	}
	s.commissions.Invalidate(ctx, professionalID)
	s.logAudit(ctx, "", "commission_override_delete", "commission_override", professionalID+"/"+serviceID, "")
	return nil
}
