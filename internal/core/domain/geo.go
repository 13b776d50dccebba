package domain

import (
	"fmt"
	"math"
)

// Coordinate represents a geographic coordinate (WGS 84).
type Coordinate struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy,omitempty"`  // meters
	Timestamp int64   `json:"timestamp,omitempty"` // unix millis of the fix
}

// Valid reports whether both components are finite and inside WGS 84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Key is a stable signature of the position, rounded to ~1 m.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.5f:%.5f", c.Lat, c.Lng)
}

// SamePosition compares lat/lng only.
func (c Coordinate) SamePosition(o Coordinate) bool {
	return c.Lat == o.Lat && c.Lng == o.Lng
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// PositionOptions mirrors the options a device geolocation request accepts.
type PositionOptions struct {
	EnableHighAccuracy bool  `json:"enable_high_accuracy"`
	TimeoutMs          int64 `json:"timeout_ms"`
	MaximumAgeMs       int64 `json:"maximum_age_ms"`
}
