package usecases

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
	"github.com/samirrijal/pourzone/internal/pkg/geospatial"
	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

// DefaultWideRadiusKm is the radius of the nearby search used outside every zone.
const DefaultWideRadiusKm = 2000.0

const lastGoodLimit = 1024


// Store lookup paths, used as metric labels.
const (
	pathZone       = "zone"
	pathOutOfRange = "out_of_range"
	pathWide       = "wide"
)

// StoreResolver finds candidate stores for a coordinate and its zone resolution.
type StoreResolver struct {
	backend      ports.StoreBackend
	throttler    *Throttler
	wideRadiusKm float64

	inflight singleflight.Group

	mu       sync.Mutex
	lastGood map[string][]domain.Store
}

// NewStoreResolver creates a new StoreResolver. A non-positive wideRadiusKm selects
// DefaultWideRadiusKm.
func NewStoreResolver(backend ports.StoreBackend, throttler *Throttler, wideRadiusKm float64) *StoreResolver {
	if wideRadiusKm <= 0 {
		wideRadiusKm = DefaultWideRadiusKm
	}
	return &StoreResolver{
		backend:      backend,
		throttler:    throttler,
		wideRadiusKm: wideRadiusKm,
		lastGood:     make(map[string][]domain.Store),
	}
}

// ResolveStores returns the stores serving c, sorted by distance then id.
//
//   - covered and in range: the zone's stores; none is a valid empty answer.
//   - covered but out of range: empty, with no request.
//   - not covered: a wide nearby search, de-duplicated by store id.
//
// Identical concurrent calls share one backend request. When the backend is unreachable
// the last good answer for the same coordinate and zone is returned.
func (r *StoreResolver) ResolveStores(ctx context.Context, c domain.Coordinate, res *domain.ZoneResolution) ([]domain.Store, error) {
	if !c.Valid() {
		slog.Warn("store resolution skipped: invalid coordinate", "lat", c.Lat, "lng", c.Lng)
		return nil, nil
	}

	wide := !res.Covered()
	var zoneID int64
	if !wide {
		if !res.Coverage.InRange {
			metrics.StoreResolutions.WithLabelValues(pathOutOfRange, metrics.OutcomeEmpty).Inc()
			return []domain.Store{}, nil
		}
		zoneID = res.Coverage.ZoneID
	}

	key, path := c.Key()+"|wide", pathWide
	if !wide {
		key, path = c.Key()+"|zone:"+strconv.FormatInt(zoneID, 10), pathZone
	}
	stores, shared, err := joinShared(ctx, &r.inflight, key, func(ctx context.Context) ([]domain.Store, error) {
		return r.fetch(ctx, c, zoneID, wide)
	})
	if shared {
		metrics.StoreResolutionsCoalesced.Inc()
	}

	if err != nil {
		if domain.IsNetwork(err) {
			if stores, ok := r.cached(key); ok {
				slog.Warn("store backend unreachable, serving last result", "key", key, "error", err)
				metrics.StoreResolutions.WithLabelValues(path, metrics.OutcomeFallback).Inc()
				return stores, nil
			}
		}
		metrics.StoreResolutions.WithLabelValues(path, metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("resolve stores: %w", err)
	}

	stores = slices.Clone(stores)
	r.remember(key, stores)

	outcome := metrics.OutcomeOK
	if len(stores) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.StoreResolutions.WithLabelValues(path, outcome).Inc()
	return slices.Clone(stores), nil
}

func (r *StoreResolver) fetch(ctx context.Context, c domain.Coordinate, zoneID int64, wide bool) ([]domain.Store, error) {
	ctx, span := tracer.Start(ctx, "StoreResolver.fetch")
	defer span.End()
	span.SetAttributes(attribute.Int64("zone_id", zoneID), attribute.Bool("wide", wide))

	var stores []domain.Store
	var err error
	if !wide {
		stores, err = Do(ctx, r.throttler, func(ctx context.Context) ([]domain.Store, error) {
			return r.backend.StoresByZone(ctx, zoneID)
		})
	} else {
		stores, err = Do(ctx, r.throttler, func(ctx context.Context) ([]domain.Store, error) {
			return r.backend.NearbyStores(ctx, c, r.wideRadiusKm)
		})
		stores = dedupeStores(stores)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([]domain.Store, 0, len(stores))
	for _, s := range stores {
		if s.DistanceMeters <= 0 && s.Coordinate.Valid() {
			s.DistanceMeters = geospatial.Haversine(c.Lat, c.Lng, s.Coordinate.Lat, s.Coordinate.Lng)
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b domain.Store) int {
		if d := cmp.Compare(a.DistanceMeters, b.DistanceMeters); d != 0 {
			return d
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *StoreResolver) remember(key string, stores []domain.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lastGood[key]; !ok && len(r.lastGood) >= lastGoodLimit {
		for k := range r.lastGood {
			delete(r.lastGood, k)
			break
		}
	}
	r.lastGood[key] = stores
}

func (r *StoreResolver) cached(key string) ([]domain.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stores, ok := r.lastGood[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(stores), true
}

// dedupeStores keeps the first occurrence of each store id.
func dedupeStores(stores []domain.Store) []domain.Store {
	seen := make(map[string]struct{}, len(stores))
	out := stores[:0:0]
	for _, s := range stores {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
