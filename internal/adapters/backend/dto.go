package backend

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type minuteRangeDTO struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// zoneDTO carries distances in meters and every charge in currency units.
type zoneDTO struct {
	ID                    int64          `json:"id"`
	Name                  string         `json:"name"`
	Latitude              float64        `json:"latitude"`
	Longitude             float64        `json:"longitude"`
	MaximumDistance       float64        `json:"maximumDistance"`
	MinimumOrder          float64        `json:"minimumOrder"`
	MinimumShippingCharge float64        `json:"minimumShippingCharge"`
	PerKmCharge           float64        `json:"perKmCharge"`
	DeliveryTime          minuteRangeDTO `json:"deliveryTime"`
	Status                string         `json:"status"`
	IsActive              *bool          `json:"isActive"`
}

func (d zoneDTO) toDomain() domain.Zone {
	status := domain.ZoneStatus(strings.ToLower(d.Status))
	if d.IsActive != nil {
		status = domain.ZoneActive
		if !*d.IsActive {
			status = domain.ZoneInactive
		}
	}
	return domain.Zone{
		ID:                    d.ID,
		Name:                  d.Name,
		Center:                domain.Coordinate{Lat: d.Latitude, Lng: d.Longitude},
		MaximumDistanceMeters: d.MaximumDistance,
		MinimumOrder:          d.MinimumOrder,
		DeliveryFee:           domain.DeliveryFee{Minimum: d.MinimumShippingCharge, PerKm: d.PerKmCharge},
		DeliveryTimeMinutes:   domain.MinuteRange{Min: d.DeliveryTime.Min, Max: d.DeliveryTime.Max},
		Status:                status,
	}
}

type coverageDTO struct {
	ZoneID    int64   `json:"zoneId"`
	ZoneName  string  `json:"zoneName"`
	Distance  float64 `json:"distance"`
	InPolygon bool    `json:"inPolygon"`
	InRange   bool    `json:"inRange"`
}

type coverageResponse struct {
	Zones []coverageDTO `json:"zones"`
}

type coordinateRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type validateRequest struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	OrderAmount float64 `json:"orderAmount"`
}

type quoteDTO struct {
	ZoneID        int64          `json:"zoneId"`
	ZoneName      string         `json:"zoneName"`
	Deliverable   bool           `json:"deliverable"`
	MeetsMinimum  bool           `json:"meetsMinimum"`
	MinimumOrder  float64        `json:"minimumOrder"`
	DeliveryFee   float64        `json:"deliveryFee"`
	Distance      float64        `json:"distance"`
	EstimatedTime minuteRangeDTO `json:"estimatedTime"`
}

type storeDTO struct {
	ID             flexID  `json:"id"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	ZoneID         int64   `json:"zoneId"`
	Distance       float64 `json:"distance"`
	OperatingHours string  `json:"operatingHours"`
	IsOpen         bool    `json:"isOpen"`
}

func (d storeDTO) toDomain() domain.Store {
	return domain.Store{
		ID:             string(d.ID),
		Name:           d.Name,
		Address:        d.Address,
		Coordinate:     domain.Coordinate{Lat: d.Latitude, Lng: d.Longitude},
		ZoneID:         d.ZoneID,
		DistanceMeters: d.Distance,
		OperatingHours: d.OperatingHours,
		IsOpen:         d.IsOpen,
	}
}

type addressDTO struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formattedAddress"`
	PlaceID          string  `json:"placeId"`
	StreetNumber     string  `json:"streetNumber"`
	Street           string  `json:"street"`
	City             string  `json:"city"`
	State            string  `json:"state"`
	PostalCode       string  `json:"postalCode"`
	Country          string  `json:"country"`
}

func (d addressDTO) toDomain() *domain.StructuredAddress {
	return &domain.StructuredAddress{
		Formatted:    d.FormattedAddress,
		StreetNumber: d.StreetNumber,
		Street:       d.Street,
		City:         d.City,
		State:        d.State,
		PostalCode:   d.PostalCode,
		Country:      d.Country,
		Coordinate:   domain.Coordinate{Lat: d.Lat, Lng: d.Lng},
		PlaceID:      d.PlaceID,
	}
}
