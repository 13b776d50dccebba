package backend

import (
	"context"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// StoresByZone returns the stores attached to a zone.
func (c *Client) StoresByZone(ctx context.Context, zoneID int64) ([]domain.Store, error) {
	var dtos []storeDTO
	err := c.call(ctx, request{
		method:   fasthttp.MethodGet,
		path:     "/stores/zone/" + strconv.FormatInt(zoneID, 10),
		endpoint: "stores_by_zone",
	}, &dtos)
	if err != nil {
		return nil, err
	}
	return toStores(dtos), nil
}

// NearbyStores searches stores within radiusKm of pt.
func (c *Client) NearbyStores(ctx context.Context, pt domain.Coordinate, radiusKm float64) ([]domain.Store, error) {
	var dtos []storeDTO
	err := c.call(ctx, request{
		method: fasthttp.MethodGet,
		path:   "/stores/nearby",
		query: map[string]string{
			"latitude":  strconv.FormatFloat(pt.Lat, 'f', -1, 64),
			"longitude": strconv.FormatFloat(pt.Lng, 'f', -1, 64),
			"radius":    strconv.FormatFloat(radiusKm, 'f', -1, 64),
		},
		endpoint: "stores_nearby",
	}, &dtos)
	if err != nil {
		return nil, err
	}
	return toStores(dtos), nil
}

func toStores(dtos []storeDTO) []domain.Store {
	stores := make([]domain.Store, 0, len(dtos))
	for _, d := range dtos {
		stores = append(stores, d.toDomain())
	}
	return stores
}
