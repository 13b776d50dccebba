package domain_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

func TestLocationError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("resolve zone: %w",
		domain.NewError(domain.KindNetwork, "backend.checkCoverage", "dial tcp", errors.New("connection refused")))

	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatal("expected wrapped error to match ErrNetwork")
	}
	if errors.Is(err, domain.ErrTimeout) {
		t.Fatal("network error must not match ErrTimeout")
	}
	if !domain.IsNetwork(err) {
		t.Error("IsNetwork should be true")
	}
}

func TestLocationError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := domain.NewError(domain.KindProviderError, "google.geocode", "", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if got := err.Error(); got != "google.geocode: provider_error: boom" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if k := domain.KindOf(errors.New("x")); k != domain.KindUnknown {
		t.Errorf("expected unknown, got %s", k)
	}
}

func TestDescribe_NoCoverageIsInformational(t *testing.T) {
	info := domain.Describe(domain.NewError(domain.KindNoCoverage, "", "outside delivery area", nil))
	if info.Actionable {
		t.Error("no coverage must not be actionable")
	}
	if info.Kind != "no_coverage" {
		t.Errorf("expected no_coverage, got %s", info.Kind)
	}

	info = domain.Describe(domain.ErrPermissionDenied)
	if !info.Actionable {
		t.Error("permission denied must be actionable")
	}
	if domain.Describe(nil) != nil {
		t.Error("nil error should describe to nil")
	}
}

func TestCoordinate_Valid(t *testing.T) {
	cases := []struct {
		name string
		c    domain.Coordinate
		want bool
	}{
		{"san francisco", domain.Coordinate{Lat: 37.7749, Lng: -122.4194}, true},
		{"nan lat", domain.Coordinate{Lat: math.NaN(), Lng: -122}, false},
		{"inf lng", domain.Coordinate{Lat: 10, Lng: math.Inf(1)}, false},
		{"lat out of range", domain.Coordinate{Lat: 91, Lng: 0}, false},
		{"lng out of range", domain.Coordinate{Lat: 0, Lng: -181}, false},
		{"origin", domain.Coordinate{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.c.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestZoneResolution_Covered(t *testing.T) {
	var nilRes *domain.ZoneResolution
	if nilRes.Covered() {
		t.Error("nil resolution is not covered")
	}
	res := &domain.ZoneResolution{Nearest: &domain.ZoneCoverage{ZoneID: 3}}
	if res.Covered() {
		t.Error("resolution with only nearest is not covered")
	}
	res.Coverage = &domain.ZoneCoverage{ZoneID: 3, InRange: true}
	if !res.Covered() {
		t.Error("expected covered")
	}
}
