// Package googlemaps talks to the Google Maps Geocoding and Places Autocomplete web
// services.
package googlemaps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api"

// Config configures the Google Maps client.
type Config struct {
	APIKey   string
	BaseURL  string
	QPS      float64
	Region   string
	Language string
	Timeout  time.Duration
}

// Client implements ports.GeocodeProvider and ports.AutocompleteProvider. The HTTP
// session is set up on first use, exactly once per process.
type Client struct {
	cfg  Config
	init func() (*session, error)
}

type session struct {
	http    *http.Client
	limiter *rate.Limiter
	base    string
}

// New creates a new Client. Nothing is dialled until the first request.
func New(cfg Config) *Client {
	c := &Client{cfg: cfg}
	c.init = sync.OnceValues(c.open)
	return c
}

func (c *Client) open() (*session, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, domain.NewError(domain.KindProviderError, "google.init", "api key not configured", nil)
	}
	qps := c.cfg.QPS
	if qps <= 0 {
		qps = 10
	}
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	slog.Info("google maps session ready", "qps", qps)
	return &session{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		base:    base,
	}, nil
}

// Name identifies the client in the geocoding provider chain.
func (c *Client) Name() string { return "google" }

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress  string `json:"formatted_address"`
		PlaceID           string `json:"place_id"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
		Geometry struct {
			Location latLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type autocompleteResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Predictions  []struct {
		PlaceID              string   `json:"place_id"`
		Description          string   `json:"description"`
		Types                []string `json:"types"`
		StructuredFormatting struct {
			MainText      string `json:"main_text"`
			SecondaryText string `json:"secondary_text"`
		} `json:"structured_formatting"`
	} `json:"predictions"`
}

// Geocode resolves an address to its best match.
func (c *Client) Geocode(ctx context.Context, address string) (*domain.StructuredAddress, error) {
	params := url.Values{}
	params.Set("address", address)
	c.localise(params)

	var resp geocodeResponse
	if err := c.get(ctx, "geocode", "/geocode/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusError("google.geocode", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, domain.NewError(domain.KindNotFound, "google.geocode", "no results", nil)
	}
	return toAddress(resp, 0), nil
}

// ReverseGeocode resolves a coordinate to the closest address.
func (c *Client) ReverseGeocode(ctx context.Context, pt domain.Coordinate) (*domain.StructuredAddress, error) {
	params := url.Values{}
	params.Set("latlng", formatLatLng(pt))
	c.localise(params)

	var resp geocodeResponse
	if err := c.get(ctx, "reverse_geocode", "/geocode/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusError("google.reverse_geocode", resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, domain.NewError(domain.KindNotFound, "google.reverse_geocode", "no results", nil)
	}
	return toAddress(resp, 0), nil
}

// Autocomplete returns place predictions for partial input.
func (c *Client) Autocomplete(ctx context.Context, input string, r domain.AutocompleteRestrictions) ([]domain.Prediction, error) {
	params := url.Values{}
	params.Set("input", input)
	if len(r.Countries) > 0 {
		parts := make([]string, len(r.Countries))
		for i, cc := range r.Countries {
			parts[i] = "country:" + strings.ToLower(cc)
		}
		params.Set("components", strings.Join(parts, "|"))
	}
	if len(r.Types) > 0 {
		params.Set("types", strings.Join(r.Types, "|"))
	}
	if r.Near != nil && r.Near.Valid() {
		params.Set("location", formatLatLng(*r.Near))
		if r.RadiusMeters > 0 {
			params.Set("radius", strconv.FormatFloat(r.RadiusMeters, 'f', 0, 64))
		}
	}
	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}

	var resp autocompleteResponse
	if err := c.get(ctx, "autocomplete", "/place/autocomplete/json", params, &resp); err != nil {
		return nil, err
	}
	if err := statusError("google.autocomplete", resp.Status, resp.ErrorMessage); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return []domain.Prediction{}, nil
		}
		return nil, err
	}

	out := make([]domain.Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, domain.Prediction{
			PlaceID:       p.PlaceID,
			Description:   p.Description,
			MainText:      p.StructuredFormatting.MainText,
			SecondaryText: p.StructuredFormatting.SecondaryText,
			Types:         p.Types,
		})
	}
	return out, nil
}

func (c *Client) localise(params url.Values) {
	if c.cfg.Region != "" {
		params.Set("region", c.cfg.Region)
	}
	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	s, err := c.init()
	if err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("key", c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return domain.NewError(domain.KindProviderError, "google."+op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return domain.NewError(domain.KindProviderError, "google."+op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.NewError(domain.KindProviderError, "google."+op, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewError(domain.KindProviderError, "google."+op, "decode response", err)
	}
	return nil
}

// statusError maps the API status field onto error kinds.
func statusError(op, status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return domain.NewError(domain.KindNotFound, op, "no results", nil)
	default:
		msg := status
		if message != "" {
			msg += ": " + message
		}
		return domain.NewError(domain.KindProviderError, op, msg, nil)
	}
}

func toAddress(resp geocodeResponse, i int) *domain.StructuredAddress {
	r := resp.Results[i]
	addr := &domain.StructuredAddress{
		Formatted:  r.FormattedAddress,
		PlaceID:    r.PlaceID,
		Coordinate: domain.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
	}
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "street_number":
				addr.StreetNumber = comp.LongName
			case "route":
				addr.Street = comp.LongName
			case "locality":
				addr.City = comp.LongName
			case "administrative_area_level_1":
				addr.State = comp.ShortName
			case "postal_code":
				addr.PostalCode = comp.LongName
			case "country":
				addr.Country = comp.ShortName
			}
		}
	}
	return addr
}

func formatLatLng(pt domain.Coordinate) string {
	return strconv.FormatFloat(pt.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(pt.Lng, 'f', 6, 64)
}
