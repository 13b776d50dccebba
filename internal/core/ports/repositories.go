package ports

import (
	"context"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// ZoneSnapshotRepository persists the last zone catalogue fetched from the backend,
// so the local coverage fallback still works after a cold start with the backend down.
type ZoneSnapshotRepository interface {
	ReplaceAll(ctx context.Context, zones []domain.Zone) error
	List(ctx context.Context) ([]domain.Zone, error)
}

// GeocodeCacheRepository is a durable address -> coordinate cache.
type GeocodeCacheRepository interface {
	Get(ctx context.Context, addressKey string) (*domain.Coordinate, error)
	Put(ctx context.Context, addressKey string, c domain.Coordinate) error
}

// SelectionStore persists a session's selected store/zone across restarts.
type SelectionStore interface {
	Load(ctx context.Context, sessionID string) (domain.Selection, error)
	Save(ctx context.Context, sessionID string, sel domain.Selection) error
	Clear(ctx context.Context, sessionID string) error
}
