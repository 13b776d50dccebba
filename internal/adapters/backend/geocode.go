package backend

import (
	"context"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// Geocode resolves an address through the backend's geocoding proxy.
func (c *Client) Geocode(ctx context.Context, address string) (*domain.StructuredAddress, error) {
	var d addressDTO
	err := c.call(ctx, request{
		method:   fasthttp.MethodGet,
		path:     "/location/geocode",
		query:    map[string]string{"address": address},
		endpoint: "geocode",
	}, &d)
	if err != nil {
		return nil, err
	}
	addr := d.toDomain()
	if !addr.Coordinate.Valid() || (addr.Coordinate.Lat == 0 && addr.Coordinate.Lng == 0) {
		return nil, domain.NewError(domain.KindNotFound, "backend.geocode", "no results", nil)
	}
	return addr, nil
}

// ReverseGeocode resolves a coordinate through the backend's geocoding proxy.
func (c *Client) ReverseGeocode(ctx context.Context, pt domain.Coordinate) (*domain.StructuredAddress, error) {
	var d addressDTO
	err := c.call(ctx, request{
		method: fasthttp.MethodGet,
		path:   "/location/reverse-geocode",
		query: map[string]string{
			"lat": strconv.FormatFloat(pt.Lat, 'f', -1, 64),
			"lng": strconv.FormatFloat(pt.Lng, 'f', -1, 64),
		},
		endpoint: "reverse_geocode",
	}, &d)
	if err != nil {
		return nil, err
	}
	if d.FormattedAddress == "" {
		return nil, domain.NewError(domain.KindNotFound, "backend.reverse_geocode", "no results", nil)
	}
	addr := d.toDomain()
	if !addr.Coordinate.Valid() || (addr.Coordinate.Lat == 0 && addr.Coordinate.Lng == 0) {
		addr.Coordinate = pt
	}
	return addr, nil
}
