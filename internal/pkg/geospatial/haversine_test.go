package geospatial_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/pourzone/internal/pkg/geospatial"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// Downtown San Francisco to a point ~1.4 km north-east.
	d := geospatial.Haversine(37.7749, -122.4194, 37.78, -122.42)
	assert.InDelta(t, 570, d, 30, "short hop distance")

	// San Francisco to Los Angeles is roughly 559 km.
	d = geospatial.Haversine(37.7749, -122.4194, 34.0522, -118.2437)
	assert.InDelta(t, 559_000, d, 2_000)
}

func TestHaversine_Symmetric(t *testing.T) {
	points := [][2]float64{
		{37.7749, -122.4194},
		{43.263, -2.935},
		{-33.8688, 151.2093},
		{0, 0},
		{89.9, 179.9},
	}
	for _, a := range points {
		for _, b := range points {
			ab := geospatial.Haversine(a[0], a[1], b[0], b[1])
			ba := geospatial.Haversine(b[0], b[1], a[0], a[1])
			assert.InDelta(t, ab, ba, 1e-6, "distance(%v,%v) must be symmetric", a, b)
		}
	}
}

func TestHaversine_SamePointIsZero(t *testing.T) {
	assert.Zero(t, geospatial.Haversine(43.263, -2.935, 43.263, -2.935))
}

func TestWithin_InclusiveBoundary(t *testing.T) {
	assert.True(t, geospatial.Within(5000, 5000))
	assert.True(t, geospatial.Within(4999.9, 5000))
	assert.False(t, geospatial.Within(math.Nextafter(5000, 6000), 5000))
}

func TestBoundingBox_ContainsCenter(t *testing.T) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(43.26, -2.93, 1000)
	assert.Less(t, minLat, 43.26)
	assert.Less(t, minLon, -2.93)
	assert.Greater(t, maxLat, 43.26)
	assert.Greater(t, maxLon, -2.93)
}
