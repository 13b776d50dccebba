package backend

import (
	"context"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// ListZones returns the full zone catalogue.
func (c *Client) ListZones(ctx context.Context) ([]domain.Zone, error) {
	var dtos []zoneDTO
	err := c.call(ctx, request{method: fasthttp.MethodGet, path: "/zones", endpoint: "zones"}, &dtos)
	if err != nil {
		return nil, err
	}
	zones := make([]domain.Zone, 0, len(dtos))
	for _, d := range dtos {
		zones = append(zones, d.toDomain())
	}
	return zones, nil
}

// CheckCoverage returns the backend's coverage verdict for every zone it considers.
func (c *Client) CheckCoverage(ctx context.Context, pt domain.Coordinate) ([]domain.ZoneCoverage, error) {
	var resp coverageResponse
	err := c.call(ctx, request{
		method:   fasthttp.MethodPost,
		path:     "/zones/check-coverage",
		body:     coordinateRequest{Lat: pt.Lat, Lng: pt.Lng},
		endpoint: "check_coverage",
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ZoneCoverage, 0, len(resp.Zones))
	for _, z := range resp.Zones {
		out = append(out, domain.ZoneCoverage{
			ZoneID:         z.ZoneID,
			ZoneName:       z.ZoneName,
			DistanceMeters: z.Distance,
			InPolygon:      z.InPolygon,
			InRange:        z.InRange,
			Source:         domain.SourceBackend,
		})
	}
	return out, nil
}

// ValidateDelivery returns the delivery fee and time for an order at pt.
func (c *Client) ValidateDelivery(ctx context.Context, pt domain.Coordinate, orderAmount float64) (*domain.DeliveryQuote, error) {
	var q quoteDTO
	err := c.call(ctx, request{
		method:   fasthttp.MethodPost,
		path:     "/zones/validate-delivery",
		body:     validateRequest{Lat: pt.Lat, Lng: pt.Lng, OrderAmount: orderAmount},
		endpoint: "validate_delivery",
	}, &q)
	if err != nil {
		return nil, err
	}
	return &domain.DeliveryQuote{
		ZoneID:         q.ZoneID,
		ZoneName:       q.ZoneName,
		Deliverable:    q.Deliverable,
		MeetsMinimum:   q.MeetsMinimum,
		MinimumOrder:   q.MinimumOrder,
		DeliveryFee:    q.DeliveryFee,
		DistanceMeters: q.Distance,
		EstimatedTime:  domain.MinuteRange{Min: q.EstimatedTime.Min, Max: q.EstimatedTime.Max},
		Source:         domain.SourceBackend,
	}, nil
}
