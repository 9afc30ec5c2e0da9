package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/revenue"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache             cache.CatalogCache
	CacheTTL          time.Duration
	DefaultLocationID string
	Logger            logrus.FieldLogger
}

type Service struct {
	repo              store.Repository
	poster            revenue.Poster
	catalog           cache.CatalogCache
	cacheTTL          time.Duration
	commissions       *CommissionResolver
	defaultLocationID string
	logger            logrus.FieldLogger
	now               func() time.Time
}

func New(repo store.Repository, poster revenue.Poster, opts Options) *Service {
	if opts.DefaultLocationID == "" {
		opts.DefaultLocationID = "main-location"
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	logger := opts.Logger.WithField("component", "service")

	return &Service{
		repo:              repo,
		poster:            poster,
		catalog:           opts.Cache,
		cacheTTL:          opts.CacheTTL,
		commissions:       NewCommissionResolver(repo, opts.Cache, opts.CacheTTL, logger),
		defaultLocationID: opts.DefaultLocationID,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, locationID string, limit int) ([]domain.AuditLog, error) {
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	return s.repo.ListAuditLogs(ctx, locationID, limit)
}

func (s *Service) ListBatchRuns(ctx context.Context, jobType string, limit int) ([]domain.BatchRun, error) {
	return s.repo.ListBatchRuns(ctx, jobType, limit)
}

func (s *Service) logAudit(ctx context.Context, locationID string, action string, entityType string, entityID string, detail string) {
	if locationID == "" {
		locationID = s.defaultLocationID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		LocationID:    locationID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warn("failed to write audit log")
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

// notFound maps store.ErrNotFound onto the domain kind and passes other
// errors through unchanged.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
