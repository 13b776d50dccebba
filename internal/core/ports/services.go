package ports

import (
	"context"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// ZoneBackend is the zone part of the storefront REST backend.
type ZoneBackend interface {
	ListZones(ctx context.Context) ([]domain.Zone, error)
	CheckCoverage(ctx context.Context, c domain.Coordinate) ([]domain.ZoneCoverage, error)
	ValidateDelivery(ctx context.Context, c domain.Coordinate, orderAmount float64) (*domain.DeliveryQuote, error)
}

// StoreBackend is the store part of the storefront REST backend.
type StoreBackend interface {
	StoresByZone(ctx context.Context, zoneID int64) ([]domain.Store, error)
	NearbyStores(ctx context.Context, c domain.Coordinate, radiusKm float64) ([]domain.Store, error)
}

// GeocodeProvider translates between addresses and coordinates.
type GeocodeProvider interface {
	Name() string
	Geocode(ctx context.Context, address string) (*domain.StructuredAddress, error)
	ReverseGeocode(ctx context.Context, c domain.Coordinate) (*domain.StructuredAddress, error)
}

// AutocompleteProvider returns place predictions for partial input.
type AutocompleteProvider interface {
	Autocomplete(ctx context.Context, input string, r domain.AutocompleteRestrictions) ([]domain.Prediction, error)
}

// PositionSource is the device geolocation platform. Implementations call done at most
// once; a misbehaving platform may never call it.
type PositionSource interface {
	RequestPosition(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error))
}

// EventPublisher publishes location events to a message broker.
type EventPublisher interface {
	PublishLocationState(ctx context.Context, snap *domain.LocationSnapshot) error
	PublishZonesUpdated(ctx context.Context, zoneCount int) error
}

// EventSubscriber subscribes to catalogue change notifications.
type EventSubscriber interface {
	SubscribeZonesUpdated(ctx context.Context, handler func(ctx context.Context, zoneCount int) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
