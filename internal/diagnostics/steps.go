package diagnostics

import (
	"context"
	"fmt"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
)

// Prober answers with the raw HTTP status of a path.
type Prober interface {
	Reachable(ctx context.Context, path string) (int, error)
}

// Reachability checks that the backend answers HTTP at all. Any status below 500
// counts, since auth and routing problems are reported by the later steps.
func Reachability(p Prober, path string) Step {
	return Step{Name: "reachability", Run: func(ctx context.Context) (string, error) {
		code, err := p.Reachable(ctx, path)
		if err != nil {
			return "", err
		}
		if code >= 500 {
			return "", fmt.Errorf("GET %s answered %d", path, code)
		}
		return fmt.Sprintf("GET %s answered %d", path, code), nil
	}}
}

// Zones checks that the catalogue lists at least one active zone.
func Zones(b ports.ZoneBackend) Step {
	return Step{Name: "zones", Run: func(ctx context.Context) (string, error) {
		zones, err := b.ListZones(ctx)
		if err != nil {
			return "", err
		}
		active := 0
		for _, z := range zones {
			if z.Active() {
				active++
			}
		}
		if active == 0 {
			return "", fmt.Errorf("%d zones, none active", len(zones))
		}
		return fmt.Sprintf("%d zones, %d active", len(zones), active), nil
	}}
}

// Coverage checks the coverage endpoint for a probe coordinate. An empty answer is
// reported but does not fail the step.
func Coverage(b ports.ZoneBackend, c domain.Coordinate) Step {
	return Step{Name: "coverage", Run: func(ctx context.Context) (string, error) {
		cov, err := b.CheckCoverage(ctx, c)
		if err != nil {
			return "", err
		}
		for _, z := range cov {
			if z.Covers() {
				return fmt.Sprintf("covered by zone %d (%s) at %.0f m, in range %t", z.ZoneID, z.ZoneName, z.DistanceMeters, z.InRange), nil
			}
		}
		return fmt.Sprintf("no zone covers %.5f,%.5f", c.Lat, c.Lng), nil
	}}
}

// NearbyStores checks the wide store search around a probe coordinate.
func NearbyStores(s ports.StoreBackend, c domain.Coordinate, radiusKm float64) Step {
	return Step{Name: "nearby-stores", Run: func(ctx context.Context) (string, error) {
		stores, err := s.NearbyStores(ctx, c, radiusKm)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d stores within %.0f km", len(stores), radiusKm), nil
	}}
}

// Geocode checks a geocoding provider with a known address.
func Geocode(p ports.GeocodeProvider, address string) Step {
	return Step{Name: "geocode", Run: func(ctx context.Context) (string, error) {
		addr, err := p.Geocode(ctx, address)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%q -> %.5f,%.5f", address, addr.Coordinate.Lat, addr.Coordinate.Lng), nil
	}}
}
