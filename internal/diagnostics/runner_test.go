package diagnostics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

func okStep(name string) Step {
	return Step{Name: name, Run: func(ctx context.Context) (string, error) { return name + " fine", nil }}
}

func failStep(name string) Step {
	return Step{Name: name, Run: func(ctx context.Context) (string, error) { return "", errors.New(name + " broke") }}
}

func TestRunner_RunsAllSteps(t *testing.T) {
	r := &Runner{Steps: []Step{okStep("a"), failStep("b"), okStep("c")}}
	rep := r.Run(context.Background())

	assert.False(t, rep.Passed)
	want := []StepResult{
		{Name: "a", OK: true, Detail: "a fine"},
		{Name: "b", Error: "b broke"},
		{Name: "c", OK: true, Detail: "c fine"},
	}
	if diff := cmp.Diff(want, rep.Results, cmpopts.IgnoreFields(StepResult{}, "Duration")); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_StopOnFailureSkipsRest(t *testing.T) {
	ran := false
	last := Step{Name: "c", Run: func(ctx context.Context) (string, error) { ran = true; return "", nil }}
	r := &Runner{Steps: []Step{okStep("a"), failStep("b"), last}, StopOnFailure: true}

	rep := r.Run(context.Background())
	require.Len(t, rep.Results, 3)
	assert.True(t, rep.Results[2].Skipped)
	assert.False(t, ran)
}

func TestRunner_StepTimeout(t *testing.T) {
	slow := Step{Name: "slow", Run: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	r := &Runner{Steps: []Step{slow}, StepTimeout: 10 * time.Millisecond}
	rep := r.Run(context.Background())
	assert.False(t, rep.Passed)
	assert.Contains(t, rep.Results[0].Error, "deadline exceeded")
}

type fakeProber struct {
	code int
	err  error
}

func (f fakeProber) Reachable(ctx context.Context, path string) (int, error) { return f.code, f.err }

type fakeZones struct {
	zones    []domain.Zone
	coverage []domain.ZoneCoverage
}

func (f fakeZones) ListZones(ctx context.Context) ([]domain.Zone, error) { return f.zones, nil }

func (f fakeZones) CheckCoverage(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error) {
	return f.coverage, nil
}

func (f fakeZones) ValidateDelivery(ctx context.Context, c domain.Coordinate, amount float64) (*domain.DeliveryQuote, error) {
	return nil, nil
}

func TestSteps(t *testing.T) {
	ctx := context.Background()

	_, err := Reachability(fakeProber{code: 401}, "/zones").Run(ctx)
	assert.NoError(t, err)
	_, err = Reachability(fakeProber{code: 503}, "/zones").Run(ctx)
	assert.Error(t, err)

	_, err = Zones(fakeZones{zones: []domain.Zone{{ID: 1, Status: domain.ZoneInactive}}}).Run(ctx)
	assert.Error(t, err, "only inactive zones")
	detail, err := Zones(fakeZones{zones: []domain.Zone{{ID: 1}, {ID: 2, Status: domain.ZoneInactive}}}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2 zones, 1 active", detail)

	detail, err = Coverage(fakeZones{coverage: []domain.ZoneCoverage{{ZoneID: 4, ZoneName: "Downtown", DistanceMeters: 570, InRange: true}}},
		domain.Coordinate{Lat: 37.7749, Lng: -122.4194}).Run(ctx)
	require.NoError(t, err)
	assert.Contains(t, detail, "zone 4")
}
