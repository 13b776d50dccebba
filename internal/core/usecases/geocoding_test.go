package usecases_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
	"github.com/samirrijal/pourzone/internal/core/usecases"
)

// --- Mock GeocodeProvider ---

type mockGeocoder struct {
	name        string
	geocodeFn   func(ctx context.Context, address string) (*domain.StructuredAddress, error)
	reverseFn   func(ctx context.Context, c domain.Coordinate) (*domain.StructuredAddress, error)
	geocodeHits int
}

func (m *mockGeocoder) Name() string { return m.name }

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (*domain.StructuredAddress, error) {
	m.geocodeHits++
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, address)
	}
	return nil, domain.NewError(domain.KindNotFound, m.name, "", nil)
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, c domain.Coordinate) (*domain.StructuredAddress, error) {
	if m.reverseFn != nil {
		return m.reverseFn(ctx, c)
	}
	return nil, domain.NewError(domain.KindNotFound, m.name, "", nil)
}

// --- Mock AutocompleteProvider ---

type mockAutocomplete struct {
	fn func(ctx context.Context, input string, r domain.AutocompleteRestrictions) ([]domain.Prediction, error)
}

func (m *mockAutocomplete) Autocomplete(ctx context.Context, input string, r domain.AutocompleteRestrictions) ([]domain.Prediction, error) {
	return m.fn(ctx, input, r)
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("miss")
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock GeocodeCacheRepository ---

type mockGeocodeRepo struct {
	rows map[string]domain.Coordinate
}

func (m *mockGeocodeRepo) Get(ctx context.Context, key string) (*domain.Coordinate, error) {
	if c, ok := m.rows[key]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *mockGeocodeRepo) Put(ctx context.Context, key string, c domain.Coordinate) error {
	m.rows[key] = c
	return nil
}

// --- Tests ---

func TestGeocoding_FallsThroughToSecondProvider(t *testing.T) {
	backend := &mockGeocoder{name: "backend"}
	google := &mockGeocoder{
		name: "google",
		geocodeFn: func(ctx context.Context, address string) (*domain.StructuredAddress, error) {
			return &domain.StructuredAddress{Formatted: "1 Market St", Coordinate: domain.Coordinate{Lat: 37.79, Lng: -122.39}}, nil
		},
	}
	repo := &mockGeocodeRepo{rows: map[string]domain.Coordinate{}}
	svc := usecases.NewGeocodingService([]ports.GeocodeProvider{backend, google}, nil, nil, repo)

	c, err := svc.AddressToCoordinate(context.Background(), "  1 Market St ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Lat != 37.79 {
		t.Errorf("unexpected coordinate %+v", c)
	}
	if _, ok := repo.rows["1 market st"]; !ok {
		t.Errorf("expected durable cache entry under normalized key, got %v", repo.rows)
	}
}

func TestGeocoding_AllNotFoundIsNotFound(t *testing.T) {
	svc := usecases.NewGeocodingService([]ports.GeocodeProvider{&mockGeocoder{name: "a"}, &mockGeocoder{name: "b"}}, nil, nil, nil)

	_, err := svc.AddressToCoordinate(context.Background(), "nowhere")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGeocoding_FailureIsProviderError(t *testing.T) {
	failing := &mockGeocoder{
		name: "backend",
		geocodeFn: func(ctx context.Context, address string) (*domain.StructuredAddress, error) {
			return nil, domain.NewError(domain.KindNetwork, "backend.geocode", "", errors.New("connection refused"))
		},
	}
	svc := usecases.NewGeocodingService([]ports.GeocodeProvider{failing, &mockGeocoder{name: "google"}}, nil, nil, nil)

	_, err := svc.AddressToCoordinate(context.Background(), "1 Market St")
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestGeocoding_CacheHitSkipsProviders(t *testing.T) {
	p := &mockGeocoder{
		name: "google",
		geocodeFn: func(ctx context.Context, address string) (*domain.StructuredAddress, error) {
			return &domain.StructuredAddress{Coordinate: domain.Coordinate{Lat: 1, Lng: 2}}, nil
		},
	}
	svc := usecases.NewGeocodingService([]ports.GeocodeProvider{p}, nil, newMemCache(), nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.AddressToCoordinate(context.Background(), "Calle Mayor 1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if p.geocodeHits != 1 {
		t.Errorf("expected 1 provider call, got %d", p.geocodeHits)
	}
}

func TestGeocoding_ReverseInvalidCoordinateSkipsProviders(t *testing.T) {
	p := &mockGeocoder{
		name: "google",
		reverseFn: func(ctx context.Context, c domain.Coordinate) (*domain.StructuredAddress, error) {
			t.Fatal("provider must not be called")
			return nil, nil
		},
	}
	svc := usecases.NewGeocodingService([]ports.GeocodeProvider{p}, nil, nil, nil)

	addr, err := svc.CoordinateToAddress(context.Background(), domain.Coordinate{Lat: math.NaN(), Lng: -122})
	if addr != nil || !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected invalid coordinate, got %v, %v", addr, err)
	}
}

func TestGeocoding_AutocompleteIsLazyAndRestartable(t *testing.T) {
	calls := 0
	ac := &mockAutocomplete{fn: func(ctx context.Context, input string, r domain.AutocompleteRestrictions) ([]domain.Prediction, error) {
		calls++
		return []domain.Prediction{{PlaceID: "a", Description: "Bilbao"}, {PlaceID: "b", Description: "Barakaldo"}}, nil
	}}
	svc := usecases.NewGeocodingService(nil, ac, nil, nil)

	seq := svc.Autocomplete(context.Background(), "ba", domain.AutocompleteRestrictions{Countries: []string{"es"}})
	if calls != 0 {
		t.Fatalf("provider asked before the first pull")
	}

	first, err := usecases.CollectPredictions(seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := usecases.CollectPredictions(seq)
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second pass differs (-first +second):\n%s", diff)
	}
	if len(first) != 2 {
		t.Errorf("expected 2 predictions, got %d", len(first))
	}
	if calls != 1 {
		t.Errorf("expected one provider call, got %d", calls)
	}
}

func TestGeocoding_AutocompleteEmptyIsNotAnError(t *testing.T) {
	ac := &mockAutocomplete{fn: func(ctx context.Context, input string, r domain.AutocompleteRestrictions) ([]domain.Prediction, error) {
		return nil, domain.NewError(domain.KindNotFound, "google.autocomplete", "ZERO_RESULTS", nil)
	}}
	svc := usecases.NewGeocodingService(nil, ac, nil, nil)

	preds, err := usecases.CollectPredictions(svc.Autocomplete(context.Background(), "zzzz", domain.AutocompleteRestrictions{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 0 {
		t.Errorf("expected empty sequence, got %d", len(preds))
	}
}

func TestGeocoding_AutocompleteFailureIsYielded(t *testing.T) {
	ac := &mockAutocomplete{fn: func(ctx context.Context, input string, r domain.AutocompleteRestrictions) ([]domain.Prediction, error) {
		return nil, errors.New("REQUEST_DENIED")
	}}
	svc := usecases.NewGeocodingService(nil, ac, nil, nil)

	n := 0
	for _, err := range svc.Autocomplete(context.Background(), "ba", domain.AutocompleteRestrictions{}) {
		n++
		if !errors.Is(err, domain.ErrProviderError) {
			t.Errorf("expected a provider error, got %v", err)
		}
	}
	if n != 1 {
		t.Errorf("expected exactly one yielded failure, got %d", n)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Calle   MAYOR 1 ", "calle mayor 1"},
		{"Gran VÍA 12", "gran vía 12"},
		{"\uff21\uff22\uff23 Avenue", "abc avenue"},
	}
	for _, tc := range cases {
		if got := usecases.NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDistance_Symmetric(t *testing.T) {
	a := domain.Coordinate{Lat: 43.263, Lng: -2.935}
	b := domain.Coordinate{Lat: 40.4168, Lng: -3.7038}
	if d1, d2 := usecases.Distance(a, b), usecases.Distance(b, a); d1 != d2 {
		t.Errorf("distance not symmetric: %f vs %f", d1, d2)
	}
}
