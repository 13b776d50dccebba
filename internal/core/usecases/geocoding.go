package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
	"github.com/samirrijal/pourzone/internal/pkg/geospatial"
	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

const (
	forwardCacheTTL = 24 * 60 * 60
	reverseCacheTTL = 60 * 60
)

// GeocodingService translates between addresses and coordinates through an ordered
// chain of providers, with a Valkey cache and a durable address cache in front.
type GeocodingService struct {
	providers    []ports.GeocodeProvider
	autocomplete ports.AutocompleteProvider
	cache        ports.CacheService
	durable      ports.GeocodeCacheRepository
}

// NewGeocodingService creates a new GeocodingService. cache and durable may be nil.
func NewGeocodingService(
	providers []ports.GeocodeProvider,
	autocomplete ports.AutocompleteProvider,
	cache ports.CacheService,
	durable ports.GeocodeCacheRepository,
) *GeocodingService {
	return &GeocodingService{
		providers:    providers,
		autocomplete: autocomplete,
		cache:        cache,
		durable:      durable,
	}
}

// AddressToCoordinate geocodes a free-form address.
func (s *GeocodingService) AddressToCoordinate(ctx context.Context, address string) (domain.Coordinate, error) {
	key := NormalizeAddress(address)
	if key == "" {
		return domain.Coordinate{}, domain.NewError(domain.KindNotFound, "geocode", "empty address", nil)
	}

	cacheKey := "geocode:fwd:" + key
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var c domain.Coordinate
			if err := json.Unmarshal(data, &c); err == nil {
				metrics.CacheHits.WithLabelValues("geocode").Inc()
				return c, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	if s.durable != nil {
		c, err := s.durable.Get(ctx, key)
		if err != nil {
			slog.Warn("geocode cache lookup failed", "error", err)
		} else if c != nil {
			s.cacheForward(ctx, cacheKey, *c)
			return *c, nil
		}
	}

	addr, err := s.chain(ctx, "geocode", func(ctx context.Context, p ports.GeocodeProvider) (*domain.StructuredAddress, error) {
		return p.Geocode(ctx, address)
	})
	if err != nil {
		return domain.Coordinate{}, err
	}

	c := addr.Coordinate
	if s.durable != nil {
		if err := s.durable.Put(ctx, key, c); err != nil {
			slog.Warn("geocode cache write failed", "error", err)
		}
	}
	s.cacheForward(ctx, cacheKey, c)
	return c, nil
}

// CoordinateToAddress reverse geocodes a coordinate.
func (s *GeocodingService) CoordinateToAddress(ctx context.Context, c domain.Coordinate) (*domain.StructuredAddress, error) {
	if !c.Valid() {
		slog.Warn("reverse geocode skipped: invalid coordinate", "lat", c.Lat, "lng", c.Lng)
		return nil, domain.NewError(domain.KindInvalidCoordinate, "reverse_geocode", "", nil)
	}

	cacheKey := "geocode:rev:" + c.Key()
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var addr domain.StructuredAddress
			if err := json.Unmarshal(data, &addr); err == nil {
				metrics.CacheHits.WithLabelValues("reverse_geocode").Inc()
				return &addr, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("reverse_geocode").Inc()
	}

	addr, err := s.chain(ctx, "reverse_geocode", func(ctx context.Context, p ports.GeocodeProvider) (*domain.StructuredAddress, error) {
		return p.ReverseGeocode(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(addr); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, reverseCacheTTL)
		}
	}
	return addr, nil
}

// Autocomplete returns place predictions for partial input. The provider is asked on the
// first pull and later passes replay its answer. A provider failure is yielded once, as
// the error of a zero prediction; blank input and no results are an empty sequence.
func (s *GeocodingService) Autocomplete(ctx context.Context, input string, r domain.AutocompleteRestrictions) iter.Seq2[domain.Prediction, error] {
	input = strings.TrimSpace(input)
	fetch := sync.OnceValues(func() ([]domain.Prediction, error) {
		if input == "" {
			return nil, nil
		}
		if s.autocomplete == nil {
			return nil, domain.NewError(domain.KindProviderError, "autocomplete", "no autocomplete provider configured", nil)
		}
		preds, err := s.autocomplete.Autocomplete(ctx, input, r)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				return nil, nil
			}
			return nil, asProviderError("autocomplete", err)
		}
		return preds, nil
	})

	return func(yield func(domain.Prediction, error) bool) {
		preds, err := fetch()
		if err != nil {
			yield(domain.Prediction{}, err)
			return
		}
		for _, p := range preds {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// CollectPredictions drains seq, stopping at the first error.
func CollectPredictions(seq iter.Seq2[domain.Prediction, error]) ([]domain.Prediction, error) {
	preds := []domain.Prediction{}
	for p, err := range seq {
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Distance is the great-circle distance between two coordinates in meters.
func Distance(a, b domain.Coordinate) float64 {
	return geospatial.Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// chain asks each provider in order. NotFound from every provider is NotFound; any
// other failure is reported as a ProviderError wrapping the last one seen.
func (s *GeocodingService) chain(
	ctx context.Context,
	op string,
	call func(ctx context.Context, p ports.GeocodeProvider) (*domain.StructuredAddress, error),
) (*domain.StructuredAddress, error) {
	if len(s.providers) == 0 {
		return nil, domain.NewError(domain.KindProviderError, op, "no geocoding provider configured", nil)
	}

	var lastErr error
	for _, p := range s.providers {
		addr, err := call(ctx, p)
		switch {
		case err == nil && addr != nil:
			metrics.GeocodeRequests.WithLabelValues(p.Name(), op, metrics.OutcomeOK).Inc()
			return addr, nil
		case err == nil, domain.KindOf(err) == domain.KindNotFound:
			metrics.GeocodeRequests.WithLabelValues(p.Name(), op, metrics.OutcomeEmpty).Inc()
		default:
			metrics.GeocodeRequests.WithLabelValues(p.Name(), op, metrics.OutcomeError).Inc()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			slog.Warn("geocoding provider failed", "provider", p.Name(), "op", op, "error", err)
			lastErr = fmt.Errorf("%s: %w", p.Name(), err)
		}
	}

	if lastErr == nil {
		return nil, domain.NewError(domain.KindNotFound, op, "no results", nil)
	}
	return nil, asProviderError(op, lastErr)
}

func (s *GeocodingService) cacheForward(ctx context.Context, key string, c domain.Coordinate) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(c); err == nil {
		_ = s.cache.Set(ctx, key, data, forwardCacheTTL)
	}
}

func asProviderError(op string, err error) error {
	if domain.KindOf(err) == domain.KindProviderError {
		return err
	}
	return domain.NewError(domain.KindProviderError, op, "", err)
}

var addressFolder = cases.Fold()

// NormalizeAddress is the cache key of an address: NFKC, case folded, single spaced.
func NormalizeAddress(address string) string {
	s := norm.NFKC.String(address)
	s = addressFolder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// throttledGeocoder sends a provider's calls through a Throttler.
type throttledGeocoder struct {
	ports.GeocodeProvider
	t *Throttler
}

// Throttled wraps p so its calls share t with the other backend callers.
func Throttled(p ports.GeocodeProvider, t *Throttler) ports.GeocodeProvider {
	return &throttledGeocoder{GeocodeProvider: p, t: t}
}

func (g *throttledGeocoder) Geocode(ctx context.Context, address string) (*domain.StructuredAddress, error) {
	return Do(ctx, g.t, func(ctx context.Context) (*domain.StructuredAddress, error) {
		return g.GeocodeProvider.Geocode(ctx, address)
	})
}

func (g *throttledGeocoder) ReverseGeocode(ctx context.Context, c domain.Coordinate) (*domain.StructuredAddress, error) {
	return Do(ctx, g.t, func(ctx context.Context) (*domain.StructuredAddress, error) {
		return g.GeocodeProvider.ReverseGeocode(ctx, c)
	})
}
