package domain

import (
	"time"
)

// ZoneStatus is the administrative state of a delivery zone.
type ZoneStatus string

const (
	ZoneActive   ZoneStatus = "active"
	ZoneInactive ZoneStatus = "inactive"
)

// DeliveryFee is expressed in currency units, never in distance.
type DeliveryFee struct {
	Minimum float64 `json:"minimum"`
	PerKm   float64 `json:"per_km"`
}

// MinuteRange is an inclusive min/max window in minutes.
type MinuteRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Zone is an administratively defined delivery area with a center and a maximum radius.
type Zone struct {
	ID                    int64       `json:"id"`
	Name                  string      `json:"name"`
	Center                Coordinate  `json:"center"`
	MaximumDistanceMeters float64     `json:"maximum_distance_meters"`
	MinimumOrder          float64     `json:"minimum_order"`
	DeliveryFee           DeliveryFee `json:"delivery_fee"`
	DeliveryTimeMinutes   MinuteRange `json:"delivery_time_minutes"`
	Status                ZoneStatus  `json:"status"`
}

// Active reports whether the zone accepts deliveries.
func (z Zone) Active() bool {
	return z.Status == "" || z.Status == ZoneActive
}

// CoverageSource tells where a coverage verdict came from.
type CoverageSource string

const (
	SourceBackend CoverageSource = "backend"
	SourceLocal   CoverageSource = "local"
)

// ZoneCoverage is the coverage verdict of a single zone for a coordinate.
type ZoneCoverage struct {
	ZoneID         int64          `json:"zone_id"`
	ZoneName       string         `json:"zone_name"`
	DistanceMeters float64        `json:"distance_meters"`
	InPolygon      bool           `json:"in_polygon"`
	InRange        bool           `json:"in_range"`
	Source         CoverageSource `json:"source"`
}

// Covers reports whether the zone claims the point at all.
func (c ZoneCoverage) Covers() bool {
	return c.InPolygon || c.InRange
}

// ZoneResolution is the outcome of resolving a coordinate against the zone catalogue.
// Coverage is nil when no zone covers the point (NoCoverage); Nearest then carries the
// closest known zone, if any.
type ZoneResolution struct {
	Coverage *ZoneCoverage `json:"coverage,omitempty"`
	Nearest  *ZoneCoverage `json:"nearest,omitempty"`
}

// Covered reports whether a zone covers the point.
func (r *ZoneResolution) Covered() bool {
	return r != nil && r.Coverage != nil
}

// Store is a retail location that can fulfil orders.
type Store struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	Coordinate     Coordinate `json:"coordinate"`
	ZoneID         int64      `json:"zone_id,omitempty"`
	DistanceMeters float64    `json:"distance_meters"`
	OperatingHours string     `json:"operating_hours,omitempty"`
	IsOpen         bool       `json:"is_open"`
}

// DeliveryQuote is the delivery fee and time for a coordinate and an order amount.
type DeliveryQuote struct {
	ZoneID         int64          `json:"zone_id"`
	ZoneName       string         `json:"zone_name"`
	Deliverable    bool           `json:"deliverable"`
	MeetsMinimum   bool           `json:"meets_minimum"`
	MinimumOrder   float64        `json:"minimum_order"`
	DeliveryFee    float64        `json:"delivery_fee"`
	DistanceMeters float64        `json:"distance_meters"`
	EstimatedTime  MinuteRange    `json:"estimated_time_minutes"`
	Source         CoverageSource `json:"source"`
}

// StructuredAddress is the result of reverse geocoding.
type StructuredAddress struct {
	Formatted    string     `json:"formatted"`
	StreetNumber string     `json:"street_number,omitempty"`
	Street       string     `json:"street,omitempty"`
	City         string     `json:"city,omitempty"`
	State        string     `json:"state,omitempty"`
	PostalCode   string     `json:"postal_code,omitempty"`
	Country      string     `json:"country,omitempty"`
	Coordinate   Coordinate `json:"coordinate"`
	PlaceID      string     `json:"place_id,omitempty"`
}

// Prediction is a single place-autocomplete suggestion.
type Prediction struct {
	PlaceID       string   `json:"place_id"`
	Description   string   `json:"description"`
	MainText      string   `json:"main_text,omitempty"`
	SecondaryText string   `json:"secondary_text,omitempty"`
	Types         []string `json:"types,omitempty"`
}

// AutocompleteRestrictions narrows place predictions.
type AutocompleteRestrictions struct {
	Countries    []string    `json:"countries,omitempty"`
	Types        []string    `json:"types,omitempty"`
	Near         *Coordinate `json:"near,omitempty"`
	RadiusMeters float64     `json:"radius_meters,omitempty"`
}

// Selection is the store/zone a session picked. It survives restarts.
type Selection struct {
	StoreID string `json:"store_id,omitempty"`
	ZoneID  int64  `json:"zone_id,omitempty"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return s.StoreID == "" && s.ZoneID == 0
}

// Phase is a step of the location resolution state machine.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseLocating       Phase = "locating"
	PhaseZoneResolving  Phase = "zone_resolving"
	PhaseStoreResolving Phase = "store_resolving"
	PhaseReady          Phase = "ready"
	PhaseError          Phase = "error"
)

// ErrorInfo is the UI-facing description of the last failure.
type ErrorInfo struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Actionable bool   `json:"actionable"`
}

// LocationSnapshot is an immutable copy of a session's location state.
type LocationSnapshot struct {
	SessionID       string          `json:"session_id"`
	Phase           Phase           `json:"phase"`
	CurrentLocation *Coordinate     `json:"current_location,omitempty"`
	Address         string          `json:"address,omitempty"`
	Resolution      *ZoneResolution `json:"resolution,omitempty"`
	NearbyStores    []Store         `json:"nearby_stores"`
	Selection       Selection       `json:"selection"`
	LastError       *ErrorInfo      `json:"last_error,omitempty"`
	Stale           bool            `json:"stale"`
	Version         uint64          `json:"version"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
