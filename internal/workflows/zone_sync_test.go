package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

type fakeBackend struct {
	zones []domain.Zone
	err   error
}

func (f *fakeBackend) ListZones(ctx context.Context) ([]domain.Zone, error) { return f.zones, f.err }

func (f *fakeBackend) CheckCoverage(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
	return nil, nil
}

func (f *fakeBackend) ValidateDelivery(ctx context.Context, c domain.Coordinate, amount float64) (*domain.DeliveryQuote, error) {
	return nil, nil
}

type fakeSnapshots struct {
	saved [][]domain.Zone
}

func (f *fakeSnapshots) ReplaceAll(ctx context.Context, zones []domain.Zone) error {
	f.saved = append(f.saved, zones)
	return nil
}

func (f *fakeSnapshots) List(ctx context.Context) ([]domain.Zone, error) { return nil, nil }

type fakePublisher struct {
	counts []int
	err    error
}

func (f *fakePublisher) PublishLocationState(ctx context.Context, snap *domain.LocationSnapshot) error {
	return nil
}

func (f *fakePublisher) PublishZonesUpdated(ctx context.Context, zoneCount int) error {
	f.counts = append(f.counts, zoneCount)
	return f.err
}

func run(t *testing.T, acts *ZoneSyncActivities) (ZoneSyncResult, error) {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterActivity(acts)
	env.ExecuteWorkflow(ZoneSyncWorkflow)
	require.True(t, env.IsWorkflowCompleted())
	if err := env.GetWorkflowError(); err != nil {
		return ZoneSyncResult{}, err
	}
	var res ZoneSyncResult
	require.NoError(t, env.GetWorkflowResult(&res))
	return res, nil
}

func TestZoneSync_SavesAndPublishes(t *testing.T) {
	zones := []domain.Zone{{ID: 1, Name: "Downtown", MaximumDistanceMeters: 5000}, {ID: 2, Name: "Mission"}}
	snaps := &fakeSnapshots{}
	pub := &fakePublisher{}

	res, err := run(t, &ZoneSyncActivities{Backend: &fakeBackend{zones: zones}, Snapshots: snaps, Publisher: pub})
	require.NoError(t, err)

	assert.Equal(t, ZoneSyncResult{ZoneCount: 2}, res)
	require.Len(t, snaps.saved, 1)
	assert.Equal(t, zones, snaps.saved[0])
	assert.Equal(t, []int{2}, pub.counts)
}

func TestZoneSync_EmptyCatalogueKeepsSnapshot(t *testing.T) {
	snaps := &fakeSnapshots{}
	pub := &fakePublisher{}

	res, err := run(t, &ZoneSyncActivities{Backend: &fakeBackend{}, Snapshots: snaps, Publisher: pub})
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Empty(t, snaps.saved)
	assert.Empty(t, pub.counts)
}

func TestZoneSync_FetchFailureFails(t *testing.T) {
	snaps := &fakeSnapshots{}
	_, err := run(t, &ZoneSyncActivities{Backend: &fakeBackend{err: errors.New("unreachable")}, Snapshots: snaps})
	require.Error(t, err)
	assert.Empty(t, snaps.saved)
}

func TestZoneSync_PublishFailureIsNotFatal(t *testing.T) {
	snaps := &fakeSnapshots{}
	pub := &fakePublisher{err: errors.New("nats down")}

	res, err := run(t, &ZoneSyncActivities{Backend: &fakeBackend{zones: []domain.Zone{{ID: 1}}}, Snapshots: snaps, Publisher: pub})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ZoneCount)
	assert.Len(t, snaps.saved, 1)
}
