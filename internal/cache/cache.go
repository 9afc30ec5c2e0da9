package cache

import (
	"context"
	"time"
)

// OwnerCatalog owns entries that belong to no single professional, such as
// the service list.
const OwnerCatalog = "catalog"

// CatalogCache holds JSON-encodable reference data. Each entry is registered
// under an owner so that all entries of one owner can be dropped together.
type CatalogCache interface {
	// Get decodes the cached value into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, owner string, key string, value any, ttl time.Duration) error
	InvalidateOwner(ctx context.Context, owner string) error
}

type NoopCache struct{}

func (NoopCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopCache) Set(_ context.Context, _ string, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopCache) InvalidateOwner(_ context.Context, _ string) error {
	return nil
}
