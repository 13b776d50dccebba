package http

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pourzone/internal/adapters/device"
	"github.com/samirrijal/pourzone/internal/core/usecases"
)

// Pinger is a dependency the readiness check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Locations *usecases.LocationService
	Zones     *usecases.ZoneResolver
	Stores    *usecases.StoreResolver
	Geocoder  *usecases.GeocodingService
	Bridge    *device.Bridge
	NATS      *nats.Conn
	DB        Pinger
	Cache     Pinger

	// RequestTimeout bounds each REST handler. Zero means 15s.
	RequestTimeout time.Duration
}

func (d *Dependencies) timeout() time.Duration {
	if d.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return d.RequestTimeout
}
