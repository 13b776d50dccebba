package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

// LocationServiceDeps are the shared services every session uses.
type LocationServiceDeps struct {
	Locator    *Locator
	Geocoder   *GeocodingService
	Zones      *ZoneResolver
	Stores     *StoreResolver
	Selections ports.SelectionStore
	Publisher  ports.EventPublisher
}

// LocationService owns the location sessions and the services they share.
type LocationService struct {
	locator    *Locator
	geocoder   *GeocodingService
	zones      *ZoneResolver
	stores     *StoreResolver
	selections ports.SelectionStore
	publisher  ports.EventPublisher

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewLocationService creates a new LocationService.
func NewLocationService(deps LocationServiceDeps) *LocationService {
	return &LocationService{
		locator:    deps.Locator,
		geocoder:   deps.Geocoder,
		zones:      deps.Zones,
		stores:     deps.Stores,
		selections: deps.Selections,
		publisher:  deps.Publisher,
		sessions:   make(map[string]*Session),
	}
}

// Session returns the session with the given id, creating it on first use. A new session
// starts from the selection persisted by an earlier visit.
func (s *LocationService) Session(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}

	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	sess := newSession(id, s, s.loadSelection(ctx, id))

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return sess, nil
}

// Lookup returns an existing session.
func (s *LocationService) Lookup(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Len returns the number of sessions in memory.
func (s *LocationService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict drops sessions idle for longer than maxIdle. Their selections stay persisted.
func (s *LocationService) Evict(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	for _, id := range evicted {
		if s.locator != nil {
			s.locator.Forget(id)
		}
	}
	if len(evicted) > 0 {
		slog.Info("idle sessions evicted", "count", len(evicted))
	}
	return len(evicted)
}

// RunEvictor evicts idle sessions every interval until ctx is done.
func (s *LocationService) RunEvictor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict(maxIdle)
		}
	}
}

// OnZonesUpdated reloads the zone catalogue after the sync worker published a new one.
func (s *LocationService) OnZonesUpdated(ctx context.Context, zoneCount int) error {
	zones, err := s.zones.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload zones: %w", err)
	}
	slog.Info("zone catalogue reloaded", "announced", zoneCount, "loaded", len(zones))
	return nil
}

// Zones returns the shared zone resolver.
func (s *LocationService) Zones() *ZoneResolver { return s.zones }

// Stores returns the shared store resolver.
func (s *LocationService) Stores() *StoreResolver { return s.stores }

// Geocoder returns the shared geocoding service.
func (s *LocationService) Geocoder() *GeocodingService { return s.geocoder }

func (s *LocationService) loadSelection(ctx context.Context, id string) domain.Selection {
	if s.selections == nil {
		return domain.Selection{}
	}
	sel, err := s.selections.Load(ctx, id)
	if err != nil {
		slog.Warn("load selection failed", "session", id, "error", err)
		return domain.Selection{}
	}
	return sel
}
