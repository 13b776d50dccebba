package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// ZoneSyncResult is what a sync run did.
type ZoneSyncResult struct {
	ZoneCount int
	Skipped   bool
}

// ZoneSyncWorkflow copies the backend zone catalogue into the snapshot table and
// announces it. An empty catalogue never overwrites the snapshot.
func ZoneSyncWorkflow(ctx workflow.Context) (ZoneSyncResult, error) {
	logger := workflow.GetLogger(ctx)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var zones []domain.Zone
	if err := workflow.ExecuteActivity(ctx, "FetchZones").Get(ctx, &zones); err != nil {
		return ZoneSyncResult{}, err
	}
	if len(zones) == 0 {
		logger.Warn("backend returned an empty zone catalogue, keeping the snapshot")
		return ZoneSyncResult{Skipped: true}, nil
	}

	if err := workflow.ExecuteActivity(ctx, "SaveSnapshot", zones).Get(ctx, nil); err != nil {
		return ZoneSyncResult{}, err
	}

	if err := workflow.ExecuteActivity(ctx, "PublishZonesUpdated", len(zones)).Get(ctx, nil); err != nil {
		// the snapshot is saved; instances pick it up on their next reload
		logger.Warn("zones.updated publish failed", "error", err)
	}

	logger.Info("zone catalogue synced", "zones", len(zones))
	return ZoneSyncResult{ZoneCount: len(zones)}, nil
}
