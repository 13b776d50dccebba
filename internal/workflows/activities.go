package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
)

// ZoneSyncActivities holds the activity implementations for the zone sync workflow.
type ZoneSyncActivities struct {
	Backend   ports.ZoneBackend
	Snapshots ports.ZoneSnapshotRepository
	Publisher ports.EventPublisher
}

// FetchZones downloads the zone catalogue from the backend.
func (a *ZoneSyncActivities) FetchZones(ctx context.Context) ([]domain.Zone, error) {
	zones, err := a.Backend.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, nil
}

// SaveSnapshot replaces the stored catalogue.
func (a *ZoneSyncActivities) SaveSnapshot(ctx context.Context, zones []domain.Zone) error {
	if err := a.Snapshots.ReplaceAll(ctx, zones); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// PublishZonesUpdated tells the API instances to reload their catalogue.
func (a *ZoneSyncActivities) PublishZonesUpdated(ctx context.Context, zoneCount int) error {
	if a.Publisher == nil {
		slog.Info("zones.updated not published: no publisher", "zones", zoneCount)
		return nil
	}
	return a.Publisher.PublishZonesUpdated(ctx, zoneCount)
}
