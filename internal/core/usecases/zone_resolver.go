package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
	"github.com/samirrijal/pourzone/internal/pkg/geospatial"
	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/samirrijal/pourzone/internal/core/usecases")

// snapshotRetryAfter is how long a catalogue restored from the snapshot is used before
// the backend is asked again.
const snapshotRetryAfter = time.Minute

// ZoneResolver decides which delivery zone covers a coordinate. The backend verdict wins;
// when the backend is unreachable or reports no coverage, a radius check over the known
// zone catalogue takes over.
type ZoneResolver struct {
	backend   ports.ZoneBackend
	throttler *Throttler
	snapshots ports.ZoneSnapshotRepository

	loads singleflight.Group

	mu           sync.RWMutex
	zones        []domain.Zone
	loadedAt     time.Time
	fromSnapshot bool
}

// NewZoneResolver creates a new ZoneResolver. snapshots may be nil.
func NewZoneResolver(backend ports.ZoneBackend, throttler *Throttler, snapshots ports.ZoneSnapshotRepository) *ZoneResolver {
	return &ZoneResolver{backend: backend, throttler: throttler, snapshots: snapshots}
}

// ResolveZone returns the covering zone for c, or a resolution with only Nearest set when
// nothing covers it. An invalid coordinate is logged and yields nil without any request.
func (r *ZoneResolver) ResolveZone(ctx context.Context, c domain.Coordinate) (*domain.ZoneResolution, error) {
	if !c.Valid() {
		slog.Warn("zone resolution skipped: invalid coordinate", "lat", c.Lat, "lng", c.Lng)
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "ZoneResolver.ResolveZone")
	defer span.End()
	span.SetAttributes(attribute.Float64("lat", c.Lat), attribute.Float64("lng", c.Lng))

	remote, err := Do(ctx, r.throttler, func(ctx context.Context) ([]domain.ZoneCoverage, error) {
		return r.backend.CheckCoverage(ctx, c)
	})
	switch {
	case err == nil:
		if best := pickCovering(remote); best != nil {
			best.Source = domain.SourceBackend
			metrics.ZoneResolutions.WithLabelValues(string(domain.SourceBackend), metrics.OutcomeOK).Inc()
			return &domain.ZoneResolution{Coverage: best}, nil
		}
	case domain.IsNetwork(err):
		slog.Warn("coverage check unreachable, using local zones", "error", err)
	default:
		metrics.ZoneResolutions.WithLabelValues(string(domain.SourceBackend), metrics.OutcomeError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("resolve zone: %w", err)
	}

	zones, zerr := r.Zones(ctx)
	if zerr != nil {
		slog.Warn("zone catalogue unavailable for local check", "error", zerr)
		if err != nil {
			metrics.ZoneResolutions.WithLabelValues(string(domain.SourceLocal), metrics.OutcomeError).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("resolve zone: %w", err)
		}
	}

	covering, nearest := LocalCoverage(c, zones)
	if covering != nil {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeFallback
		}
		metrics.ZoneResolutions.WithLabelValues(string(domain.SourceLocal), outcome).Inc()
		span.SetAttributes(attribute.Int64("zone_id", covering.ZoneID), attribute.String("source", string(domain.SourceLocal)))
		return &domain.ZoneResolution{Coverage: covering}, nil
	}

	if nearest == nil {
		nearest = pickNearest(remote)
	}
	metrics.ZoneResolutions.WithLabelValues(string(domain.SourceLocal), metrics.OutcomeNoCoverage).Inc()
	return &domain.ZoneResolution{Nearest: nearest}, nil
}

// Zones returns the zone catalogue, fetching it on first use.
func (r *ZoneResolver) Zones(ctx context.Context) ([]domain.Zone, error) {
	r.mu.RLock()
	zones, loadedAt, fromSnapshot := r.zones, r.loadedAt, r.fromSnapshot
	r.mu.RUnlock()

	if !loadedAt.IsZero() && (!fromSnapshot || time.Since(loadedAt) < snapshotRetryAfter) {
		return zones, nil
	}
	return r.load(ctx)
}

// Reload replaces the catalogue with a fresh copy from the backend.
func (r *ZoneResolver) Reload(ctx context.Context) ([]domain.Zone, error) {
	return r.load(ctx)
}

// ValidateDelivery quotes delivery for an order at c. When the backend is unreachable the
// quote is computed from the covering zone of the local catalogue.
func (r *ZoneResolver) ValidateDelivery(ctx context.Context, c domain.Coordinate, orderAmount float64) (*domain.DeliveryQuote, error) {
	if !c.Valid() {
		slog.Warn("delivery validation skipped: invalid coordinate", "lat", c.Lat, "lng", c.Lng)
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "ZoneResolver.ValidateDelivery")
	defer span.End()

	quote, err := Do(ctx, r.throttler, func(ctx context.Context) (*domain.DeliveryQuote, error) {
		return r.backend.ValidateDelivery(ctx, c, orderAmount)
	})
	if err == nil {
		if quote.Source == "" {
			quote.Source = domain.SourceBackend
		}
		return quote, nil
	}
	if !domain.IsNetwork(err) {
		span.RecordError(err)
		return nil, fmt.Errorf("validate delivery: %w", err)
	}

	slog.Warn("delivery validation unreachable, quoting locally", "error", err)
	zones, zerr := r.Zones(ctx)
	if zerr != nil {
		return nil, fmt.Errorf("validate delivery: %w", err)
	}
	return LocalQuote(c, zones, orderAmount), nil
}

func (r *ZoneResolver) load(ctx context.Context) ([]domain.Zone, error) {
	zones, _, err := joinShared(ctx, &r.loads, "zones", func(ctx context.Context) ([]domain.Zone, error) {
		zones, err := Do(ctx, r.throttler, func(ctx context.Context) ([]domain.Zone, error) {
			return r.backend.ListZones(ctx)
		})
		if err == nil {
			r.store(zones, false)
			if r.snapshots != nil && len(zones) > 0 {
				if err := r.snapshots.ReplaceAll(ctx, zones); err != nil {
					slog.Warn("zone snapshot write failed", "error", err)
				}
			}
			slog.Info("zone catalogue loaded", "zones", len(zones))
			return zones, nil
		}
		if !domain.IsNetwork(err) || r.snapshots == nil {
			return nil, fmt.Errorf("load zones: %w", err)
		}

		snap, serr := r.snapshots.List(ctx)
		if serr != nil || len(snap) == 0 {
			if serr != nil {
				slog.Warn("zone snapshot read failed", "error", serr)
			}
			return nil, fmt.Errorf("load zones: %w", err)
		}
		slog.Warn("backend unreachable, zone catalogue restored from snapshot", "zones", len(snap))
		r.store(snap, true)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return zones, nil
}

func (r *ZoneResolver) store(zones []domain.Zone, fromSnapshot bool) {
	r.mu.Lock()
	r.zones = zones
	r.loadedAt = time.Now()
	r.fromSnapshot = fromSnapshot
	r.mu.Unlock()
	metrics.ZoneCatalogueSize.Set(float64(len(zones)))
}

// LocalCoverage checks c against the active zones' circles. covering is the
// minimum-distance zone whose radius contains c (inclusive); nearest is the
// minimum-distance zone overall. Ties go to the lower zone id.
func LocalCoverage(c domain.Coordinate, zones []domain.Zone) (covering, nearest *domain.ZoneCoverage) {
	for _, z := range zones {
		if !z.Active() {
			continue
		}
		d := geospatial.Haversine(c.Lat, c.Lng, z.Center.Lat, z.Center.Lng)
		cov := domain.ZoneCoverage{
			ZoneID:         z.ID,
			ZoneName:       z.Name,
			DistanceMeters: d,
			InRange:        geospatial.Within(d, z.MaximumDistanceMeters),
			Source:         domain.SourceLocal,
		}
		if closer(cov, nearest) {
			n := cov
			nearest = &n
		}
		if cov.InRange && closer(cov, covering) {
			cv := cov
			covering = &cv
		}
	}
	return covering, nearest
}

// LocalQuote prices a delivery to c from the covering zone of zones.
func LocalQuote(c domain.Coordinate, zones []domain.Zone, orderAmount float64) *domain.DeliveryQuote {
	covering, _ := LocalCoverage(c, zones)
	if covering == nil {
		return &domain.DeliveryQuote{Deliverable: false, Source: domain.SourceLocal}
	}

	var zone domain.Zone
	for _, z := range zones {
		if z.ID == covering.ZoneID {
			zone = z
			break
		}
	}

	km := covering.DistanceMeters / 1000
	fee := math.Max(zone.DeliveryFee.Minimum, zone.DeliveryFee.PerKm*km)
	return &domain.DeliveryQuote{
		ZoneID:         zone.ID,
		ZoneName:       zone.Name,
		Deliverable:    true,
		MeetsMinimum:   orderAmount >= zone.MinimumOrder,
		MinimumOrder:   zone.MinimumOrder,
		DeliveryFee:    math.Round(fee*100) / 100,
		DistanceMeters: covering.DistanceMeters,
		EstimatedTime:  zone.DeliveryTimeMinutes,
		Source:         domain.SourceLocal,
	}
}

func pickCovering(covs []domain.ZoneCoverage) *domain.ZoneCoverage {
	var best *domain.ZoneCoverage
	for i := range covs {
		if covs[i].Covers() && closer(covs[i], best) {
			best = &covs[i]
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func pickNearest(covs []domain.ZoneCoverage) *domain.ZoneCoverage {
	var best *domain.ZoneCoverage
	for i := range covs {
		if closer(covs[i], best) {
			best = &covs[i]
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	if out.Source == "" {
		out.Source = domain.SourceBackend
	}
	return &out
}

// closer orders by distance, then by zone id.
func closer(a domain.ZoneCoverage, b *domain.ZoneCoverage) bool {
	if b == nil {
		return true
	}
	if a.DistanceMeters != b.DistanceMeters {
		return a.DistanceMeters < b.DistanceMeters
	}
	return a.ZoneID < b.ZoneID
}
