package googlemaps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

const geocodeOK = `{
  "status": "OK",
  "results": [{
    "formatted_address": "1 Market St, San Francisco, CA 94105, USA",
    "place_id": "ChIJ-market",
    "geometry": {"location": {"lat": 37.7942, "lng": -122.3951}},
    "address_components": [
      {"long_name": "1", "short_name": "1", "types": ["street_number"]},
      {"long_name": "Market Street", "short_name": "Market St", "types": ["route"]},
      {"long_name": "San Francisco", "short_name": "SF", "types": ["locality", "political"]},
      {"long_name": "California", "short_name": "CA", "types": ["administrative_area_level_1"]},
      {"long_name": "94105", "short_name": "94105", "types": ["postal_code"]},
      {"long_name": "United States", "short_name": "US", "types": ["country"]}
    ]
  }]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL, QPS: 1000})
}

func TestGeocode_ParsesComponents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/json", r.URL.Path)
		assert.Equal(t, "1 Market St", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(geocodeOK))
	})

	addr, err := c.Geocode(context.Background(), "1 Market St")
	require.NoError(t, err)
	assert.Equal(t, &domain.StructuredAddress{
		Formatted:    "1 Market St, San Francisco, CA 94105, USA",
		StreetNumber: "1",
		Street:       "Market Street",
		City:         "San Francisco",
		State:        "CA",
		PostalCode:   "94105",
		Country:      "US",
		Coordinate:   domain.Coordinate{Lat: 37.7942, Lng: -122.3951},
		PlaceID:      "ChIJ-market",
	}, addr)
}

func TestGeocode_StatusMapping(t *testing.T) {
	tests := []struct {
		body string
		want error
	}{
		{`{"status":"ZERO_RESULTS","results":[]}`, domain.ErrNotFound},
		{`{"status":"REQUEST_DENIED","error_message":"bad key"}`, domain.ErrProviderError},
		{`{"status":"OVER_QUERY_LIMIT"}`, domain.ErrProviderError},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(tt.body))
		})
		_, err := c.Geocode(context.Background(), "x")
		assert.ErrorIs(t, err, tt.want, tt.body)
	}
}

func TestReverseGeocode_SendsLatLng(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "37.774900,-122.419400", r.URL.Query().Get("latlng"))
		_, _ = w.Write([]byte(geocodeOK))
	})

	addr, err := c.ReverseGeocode(context.Background(), domain.Coordinate{Lat: 37.7749, Lng: -122.4194})
	require.NoError(t, err)
	assert.Equal(t, "Market Street", addr.Street)
}

func TestAutocomplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/place/autocomplete/json", r.URL.Path)
		assert.Equal(t, "country:us|country:ca", q.Get("components"))
		assert.Equal(t, "37.774900,-122.419400", q.Get("location"))
		assert.Equal(t, "5000", q.Get("radius"))
		if q.Get("input") == "zzzz" {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","predictions":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","predictions":[
			{"place_id":"p1","description":"Market St, SF","types":["route"],
			 "structured_formatting":{"main_text":"Market St","secondary_text":"SF"}}]}`))
	})
	restrict := domain.AutocompleteRestrictions{
		Countries:    []string{"US", "CA"},
		Near:         &domain.Coordinate{Lat: 37.7749, Lng: -122.4194},
		RadiusMeters: 5000,
	}

	preds, err := c.Autocomplete(context.Background(), "Mark", restrict)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "Market St", preds[0].MainText)

	preds, err = c.Autocomplete(context.Background(), "zzzz", restrict)
	require.NoError(t, err)
	assert.NotNil(t, preds)
	assert.Empty(t, preds)
}

func TestMissingKeyIsProviderError(t *testing.T) {
	c := New(Config{})
	_, err := c.Geocode(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestSessionOpensOnce(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(geocodeOK))
	})
	open := c.init
	var first *session
	c.init = sync.OnceValues(func() (*session, error) {
		calls.Add(1)
		s, err := open()
		first = s
		return s, err
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Geocode(context.Background(), "1 Market St")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	s, _ := c.init()
	assert.Same(t, first, s)
}
