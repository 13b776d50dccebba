package usecases_test

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/usecases"
	"github.com/samirrijal/pourzone/internal/pkg/geospatial"
)

// --- Mock ZoneBackend ---

type mockZoneBackend struct {
	calls      atomic.Int32
	listFn     func(ctx context.Context) ([]domain.Zone, error)
	coverageFn func(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error)
	validateFn func(ctx context.Context, c domain.Coordinate, amount float64) (*domain.DeliveryQuote, error)
}

func (m *mockZoneBackend) ListZones(ctx context.Context) ([]domain.Zone, error) {
	m.calls.Add(1)
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockZoneBackend) CheckCoverage(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
	m.calls.Add(1)
	if m.coverageFn != nil {
		return m.coverageFn(ctx, c)
	}
	return nil, nil
}

func (m *mockZoneBackend) ValidateDelivery(ctx context.Context, c domain.Coordinate, amount float64) (*domain.DeliveryQuote, error) {
	m.calls.Add(1)
	if m.validateFn != nil {
		return m.validateFn(ctx, c, amount)
	}
	return nil, nil
}

// --- Mock ZoneSnapshotRepository ---

type mockSnapshotRepo struct {
	zones    []domain.Zone
	replaced int
}

func (m *mockSnapshotRepo) ReplaceAll(ctx context.Context, zones []domain.Zone) error {
	m.zones = zones
	m.replaced++
	return nil
}

func (m *mockSnapshotRepo) List(ctx context.Context) ([]domain.Zone, error) {
	return m.zones, nil
}

var (
	sanFrancisco = domain.Coordinate{Lat: 37.7749, Lng: -122.4194}
	sfZone       = domain.Zone{
		ID:                    1,
		Name:                  "SF Downtown",
		Center:                domain.Coordinate{Lat: 37.78, Lng: -122.42},
		MaximumDistanceMeters: 5000,
		MinimumOrder:          25,
		DeliveryFee:           domain.DeliveryFee{Minimum: 4.99, PerKm: 1.5},
		DeliveryTimeMinutes:   domain.MinuteRange{Min: 30, Max: 45},
		Status:                domain.ZoneActive,
	}
)

func errNetwork() error {
	return domain.NewError(domain.KindNetwork, "backend", "", errors.New("connection refused"))
}

func newTestThrottler(t *testing.T) *usecases.Throttler {
	t.Helper()
	th := usecases.NewThrottler("test", 0)
	t.Cleanup(th.Close)
	return th
}

func TestZoneResolver_BackendPicksNearestThenLowestID(t *testing.T) {
	backend := &mockZoneBackend{
		coverageFn: func(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
			return []domain.ZoneCoverage{
				{ZoneID: 9, DistanceMeters: 800, InRange: true},
				{ZoneID: 4, DistanceMeters: 300, InPolygon: true},
				{ZoneID: 2, DistanceMeters: 300, InRange: true},
				{ZoneID: 1, DistanceMeters: 100}, // does not cover
			}, nil
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	res, err := r.ResolveZone(context.Background(), sanFrancisco)
	require.NoError(t, err)
	require.True(t, res.Covered())
	assert.Equal(t, int64(2), res.Coverage.ZoneID)
	assert.Equal(t, domain.SourceBackend, res.Coverage.Source)
}

func TestZoneResolver_Deterministic(t *testing.T) {
	backend := &mockZoneBackend{
		coverageFn: func(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
			return nil, errNetwork()
		},
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			z2 := sfZone
			z2.ID = 7
			return []domain.Zone{z2, sfZone}, nil
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	a, err := r.ResolveZone(context.Background(), sanFrancisco)
	require.NoError(t, err)
	b, err := r.ResolveZone(context.Background(), domain.Coordinate{Lat: 37.7749, Lng: -122.4194})
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("resolutions differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, int64(1), a.Coverage.ZoneID, "equal distance must break on lower id")
}

func TestZoneResolver_NetworkErrorFallsBackToLocal(t *testing.T) {
	backend := &mockZoneBackend{
		coverageFn: func(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
			return nil, errNetwork()
		},
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			return []domain.Zone{sfZone}, nil
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	res, err := r.ResolveZone(context.Background(), sanFrancisco)
	require.NoError(t, err)
	require.True(t, res.Covered())
	assert.Equal(t, int64(1), res.Coverage.ZoneID)
	assert.True(t, res.Coverage.InRange)
	assert.False(t, res.Coverage.InPolygon)
	assert.Equal(t, domain.SourceLocal, res.Coverage.Source)
	assert.Less(t, res.Coverage.DistanceMeters, 5000.0)
}

func TestZoneResolver_NoRemoteCoverageChecksLocally(t *testing.T) {
	backend := &mockZoneBackend{
		coverageFn: func(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
			return []domain.ZoneCoverage{}, nil
		},
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			return []domain.Zone{sfZone}, nil
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	res, err := r.ResolveZone(context.Background(), sanFrancisco)
	require.NoError(t, err)
	require.True(t, res.Covered())
	assert.Equal(t, domain.SourceLocal, res.Coverage.Source)
}

func TestZoneResolver_BoundaryIsCovered(t *testing.T) {
	boundary := sfZone
	boundary.MaximumDistanceMeters = geospatial.Haversine(sanFrancisco.Lat, sanFrancisco.Lng, sfZone.Center.Lat, sfZone.Center.Lng)

	covering, _ := usecases.LocalCoverage(sanFrancisco, []domain.Zone{boundary})
	require.NotNil(t, covering)
	assert.True(t, covering.InRange)

	boundary.MaximumDistanceMeters = math.Nextafter(boundary.MaximumDistanceMeters, 0)
	covering, nearest := usecases.LocalCoverage(sanFrancisco, []domain.Zone{boundary})
	assert.Nil(t, covering)
	require.NotNil(t, nearest)
	assert.Equal(t, int64(1), nearest.ZoneID)
}

func TestZoneResolver_NoCoverageCarriesNearest(t *testing.T) {
	far := sfZone
	far.ID = 3
	far.Center = domain.Coordinate{Lat: 34.05, Lng: -118.24}
	inactive := sfZone
	inactive.ID = 5
	inactive.Status = domain.ZoneInactive

	backend := &mockZoneBackend{
		coverageFn: func(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
			return nil, errNetwork()
		},
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			return []domain.Zone{far, inactive}, nil
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	res, err := r.ResolveZone(context.Background(), sanFrancisco)
	require.NoError(t, err)
	assert.False(t, res.Covered())
	require.NotNil(t, res.Nearest)
	assert.Equal(t, int64(3), res.Nearest.ZoneID)
	assert.Greater(t, res.Nearest.DistanceMeters, 500_000.0)
}

func TestZoneResolver_BackendErrorPropagates(t *testing.T) {
	backend := &mockZoneBackend{
		coverageFn: func(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
			return nil, domain.NewError(domain.KindBackend, "backend.checkCoverage", "status 400", nil)
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	_, err := r.ResolveZone(context.Background(), sanFrancisco)
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestZoneResolver_InvalidCoordinateMakesNoCall(t *testing.T) {
	backend := &mockZoneBackend{}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	res, err := r.ResolveZone(context.Background(), domain.Coordinate{Lat: math.NaN(), Lng: -122})
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, backend.calls.Load())
}

func TestZoneResolver_ZonesFallBackToSnapshot(t *testing.T) {
	snaps := &mockSnapshotRepo{zones: []domain.Zone{sfZone}}
	backend := &mockZoneBackend{
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			return nil, errNetwork()
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), snaps)

	zones, err := r.Zones(context.Background())
	require.NoError(t, err)
	assert.Len(t, zones, 1)
	assert.Zero(t, snaps.replaced, "a snapshot restore must not rewrite the snapshot")
}

func TestZoneResolver_ZonesLoadOnceAndSnapshot(t *testing.T) {
	snaps := &mockSnapshotRepo{}
	var lists atomic.Int32
	backend := &mockZoneBackend{
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			lists.Add(1)
			return []domain.Zone{sfZone}, nil
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), snaps)

	for i := 0; i < 3; i++ {
		_, err := r.Zones(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), lists.Load())
	assert.Equal(t, 1, snaps.replaced)

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), lists.Load())
}

func TestZoneResolver_CancelledLoadDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	backend := &mockZoneBackend{
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			select {
			case <-release:
				return []domain.Zone{sfZone}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Zones(ctxA)
		errA <- err
	}()
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)

	zonesB := make(chan []domain.Zone, 1)
	go func() {
		zones, err := r.Zones(context.Background())
		assert.NoError(t, err)
		zonesB <- zones
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	assert.Equal(t, []domain.Zone{sfZone}, <-zonesB)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestZoneResolver_ValidateDeliveryLocalQuote(t *testing.T) {
	backend := &mockZoneBackend{
		validateFn: func(ctx context.Context, c domain.Coordinate, amount float64) (*domain.DeliveryQuote, error) {
			return nil, errNetwork()
		},
		listFn: func(ctx context.Context) ([]domain.Zone, error) {
			return []domain.Zone{sfZone}, nil
		},
	}
	r := usecases.NewZoneResolver(backend, newTestThrottler(t), nil)

	q, err := r.ValidateDelivery(context.Background(), sanFrancisco, 20)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.True(t, q.Deliverable)
	assert.False(t, q.MeetsMinimum)
	assert.Equal(t, 25.0, q.MinimumOrder)
	// under a kilometre the per-km charge stays below the minimum fee
	assert.Equal(t, 4.99, q.DeliveryFee)
	assert.Equal(t, domain.MinuteRange{Min: 30, Max: 45}, q.EstimatedTime)
	assert.Equal(t, domain.SourceLocal, q.Source)
}

func TestLocalQuote_PerKmAboveMinimum(t *testing.T) {
	z := sfZone
	z.MaximumDistanceMeters = 50_000
	oakland := domain.Coordinate{Lat: 37.8044, Lng: -122.2712}

	q := usecases.LocalQuote(oakland, []domain.Zone{z}, 100)
	require.True(t, q.Deliverable)
	want := math.Round(z.DeliveryFee.PerKm*q.DistanceMeters/1000*100) / 100
	assert.InDelta(t, want, q.DeliveryFee, 0.001)
	assert.Greater(t, q.DeliveryFee, z.DeliveryFee.Minimum)
	assert.True(t, q.MeetsMinimum)
}
