package usecases

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

const watchBuffer = 8

// Session is the location state of one storefront tab. It walks
// Idle -> Locating -> ZoneResolving -> StoreResolving -> Ready; a failure moves it to
// Error while keeping the last Ready data, marked stale. A newer request supersedes an
// older one still in flight: only the latest request writes its results.
type Session struct {
	id  string
	svc *LocationService

	mu        sync.Mutex
	snap      domain.LocationSnapshot
	ready     *domain.LocationSnapshot
	gen       uint64
	watchers  map[int]chan domain.LocationSnapshot
	nextWatch int
	lastUsed  time.Time

	pubMu     sync.Mutex
	published uint64
}

func newSession(id string, svc *LocationService, sel domain.Selection) *Session {
	now := time.Now()
	return &Session{
		id:  id,
		svc: svc,
		snap: domain.LocationSnapshot{
			SessionID:    id,
			Phase:        domain.PhaseIdle,
			NearbyStores: []domain.Store{},
			Selection:    sel,
			UpdatedAt:    now,
		},
		watchers: make(map[int]chan domain.LocationSnapshot),
		lastUsed: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() domain.LocationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snap)
}

// Watch streams snapshots after every change. Slow readers only miss intermediate
// states; the newest one is always delivered. cancel must be called to release it.
func (s *Session) Watch() (<-chan domain.LocationSnapshot, func()) {
	ch := make(chan domain.LocationSnapshot, watchBuffer)
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	ch <- copySnapshot(s.snap)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// Locate asks the device for its position and resolves zone and stores for it.
func (s *Session) Locate(ctx context.Context, opts domain.PositionOptions) (domain.LocationSnapshot, error) {
	gen := s.begin(ctx, domain.PhaseLocating, nil, "")
	c, err := s.svc.locator.CurrentLocation(ctx, s.id, opts)
	if err != nil {
		return s.fail(ctx, gen, err)
	}
	return s.resolve(ctx, gen, c, "")
}

// SetCoordinate resolves a coordinate chosen by the user, e.g. a map pin. An invalid
// coordinate is rejected without touching the state.
func (s *Session) SetCoordinate(ctx context.Context, c domain.Coordinate) (domain.LocationSnapshot, error) {
	if !c.Valid() {
		slog.Warn("session coordinate rejected", "session", s.id, "lat", c.Lat, "lng", c.Lng)
		return s.Snapshot(), domain.NewError(domain.KindInvalidCoordinate, "set_coordinate", "", nil)
	}
	s.svc.locator.Remember(s.id, c)
	gen := s.begin(ctx, domain.PhaseZoneResolving, &c, "")
	return s.resolve(ctx, gen, c, "")
}

// SetAddress geocodes an address typed by the user and resolves zone and stores for it.
func (s *Session) SetAddress(ctx context.Context, address string) (domain.LocationSnapshot, error) {
	gen := s.begin(ctx, domain.PhaseLocating, nil, address)
	if s.svc.geocoder == nil {
		return s.fail(ctx, gen, domain.NewError(domain.KindProviderError, "set_address", "geocoding disabled", nil))
	}
	c, err := s.svc.geocoder.AddressToCoordinate(ctx, address)
	if err != nil {
		return s.fail(ctx, gen, err)
	}
	return s.resolve(ctx, gen, c, address)
}

// Refresh re-resolves zone and stores for the current location.
func (s *Session) Refresh(ctx context.Context) (domain.LocationSnapshot, error) {
	s.mu.Lock()
	cur := s.snap.CurrentLocation
	address := s.snap.Address
	s.mu.Unlock()
	if cur == nil {
		return s.Snapshot(), domain.NewError(domain.KindPositionUnavailable, "refresh", "no location yet", nil)
	}
	c := *cur
	gen := s.begin(ctx, domain.PhaseZoneResolving, &c, address)
	return s.resolve(ctx, gen, c, address)
}

// SelectStore selects one of the currently resolved stores.
func (s *Session) SelectStore(ctx context.Context, storeID string) (domain.LocationSnapshot, error) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.snap.NearbyStores, func(st domain.Store) bool { return st.ID == storeID })
	if idx < 0 {
		s.mu.Unlock()
		return s.Snapshot(), domain.NewError(domain.KindNotFound, "select_store", "store "+storeID+" is not a candidate", nil)
	}
	st := s.snap.NearbyStores[idx]
	sel := domain.Selection{StoreID: st.ID, ZoneID: st.ZoneID}
	if sel.ZoneID == 0 && s.snap.Resolution.Covered() {
		sel.ZoneID = s.snap.Resolution.Coverage.ZoneID
	}
	s.snap.Selection = sel
	snap := s.touch()
	s.mu.Unlock()

	s.persistSelection(ctx, sel)
	s.broadcast(ctx, snap)
	return snap, nil
}

// ClearSelection drops the selected store and zone.
func (s *Session) ClearSelection(ctx context.Context) domain.LocationSnapshot {
	s.mu.Lock()
	s.snap.Selection = domain.Selection{}
	snap := s.touch()
	s.mu.Unlock()

	s.persistSelection(ctx, domain.Selection{})
	s.broadcast(ctx, snap)
	return snap
}

func (s *Session) begin(ctx context.Context, phase domain.Phase, c *domain.Coordinate, address string) uint64 {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.snap.Phase = phase
	if c != nil {
		cc := *c
		s.snap.CurrentLocation = &cc
	}
	if address != "" {
		s.snap.Address = address
	}
	snap := s.touch()
	s.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(phase)).Inc()
	s.broadcast(ctx, snap)
	return gen
}

func (s *Session) resolve(ctx context.Context, gen uint64, c domain.Coordinate, address string) (domain.LocationSnapshot, error) {
	if !s.advance(ctx, gen, func(snap *domain.LocationSnapshot) {
		snap.Phase = domain.PhaseZoneResolving
		snap.CurrentLocation = &c
		if address == "" {
			snap.Address = ""
		}
	}) {
		return s.Snapshot(), nil
	}

	res, err := s.svc.zones.ResolveZone(ctx, c)
	if err != nil {
		return s.fail(ctx, gen, err)
	}
	if res == nil {
		res = &domain.ZoneResolution{}
	}

	if !s.advance(ctx, gen, func(snap *domain.LocationSnapshot) {
		snap.Phase = domain.PhaseStoreResolving
		snap.Resolution = res
	}) {
		return s.Snapshot(), nil
	}

	stores, err := s.svc.stores.ResolveStores(ctx, c, res)
	if err != nil {
		return s.fail(ctx, gen, err)
	}
	if stores == nil {
		stores = []domain.Store{}
	}

	var cleared bool
	s.advance(ctx, gen, func(snap *domain.LocationSnapshot) {
		snap.Phase = domain.PhaseReady
		snap.NearbyStores = stores
		snap.Stale = false
		snap.LastError = nil
		if !res.Covered() {
			snap.LastError = domain.Describe(domain.NewError(domain.KindNoCoverage, "", "no delivery zone covers this location", nil))
		}
		if sel := reconcileSelection(snap.Selection, res, stores); sel != snap.Selection {
			snap.Selection = sel
			cleared = true
		}
		ready := copySnapshot(*snap)
		s.ready = &ready
	})
	if cleared {
		s.persistSelection(ctx, domain.Selection{})
	}
	return s.Snapshot(), nil
}

// advance applies fn if gen is still the latest request and publishes the result.
func (s *Session) advance(ctx context.Context, gen uint64, fn func(*domain.LocationSnapshot)) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		slog.Debug("superseded location request dropped", "session", s.id, "gen", gen)
		return false
	}
	fn(&s.snap)
	phase := s.snap.Phase
	snap := s.touch()
	s.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(phase)).Inc()
	s.broadcast(ctx, snap)
	return true
}

// fail moves to Error and puts back the data of the last Ready state, marked stale.
func (s *Session) fail(ctx context.Context, gen uint64, err error) (domain.LocationSnapshot, error) {
	slog.Warn("location resolution failed", "session", s.id, "kind", domain.KindOf(err).String(), "error", err)
	s.advance(ctx, gen, func(snap *domain.LocationSnapshot) {
		snap.Phase = domain.PhaseError
		snap.LastError = domain.Describe(err)
		snap.Stale = false
		if s.ready != nil {
			ready := copySnapshot(*s.ready)
			snap.CurrentLocation = ready.CurrentLocation
			snap.Address = ready.Address
			snap.Resolution = ready.Resolution
			snap.NearbyStores = ready.NearbyStores
			snap.Stale = true
		}
	})
	return s.Snapshot(), err
}

// touch bumps the version, hands the new state to the watchers and returns a copy.
// Callers hold s.mu, so watchers see versions in order.
func (s *Session) touch() domain.LocationSnapshot {
	s.snap.Version++
	s.snap.UpdatedAt = time.Now()
	s.lastUsed = s.snap.UpdatedAt
	snap := copySnapshot(s.snap)
	for _, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
			// drop the oldest pending snapshot to make room for the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return snap
}

// broadcast publishes snap unless a newer version has already gone out. The publish
// outlives the request that produced it.
func (s *Session) broadcast(ctx context.Context, snap domain.LocationSnapshot) {
	if s.svc.publisher == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if snap.Version <= s.published {
		slog.Debug("stale location state not published", "session", s.id, "version", snap.Version, "published", s.published)
		return
	}
	if err := s.svc.publisher.PublishLocationState(context.WithoutCancel(ctx), &snap); err != nil {
		slog.Warn("publish location state failed", "session", s.id, "error", err)
		return
	}
	s.published = snap.Version
}

func (s *Session) persistSelection(ctx context.Context, sel domain.Selection) {
	if s.svc.selections == nil {
		return
	}
	var err error
	if sel.Empty() {
		err = s.svc.selections.Clear(ctx, s.id)
	} else {
		err = s.svc.selections.Save(ctx, s.id, sel)
	}
	if err != nil {
		slog.Warn("persist selection failed", "session", s.id, "error", err)
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// reconcileSelection drops a selection that is not part of the latest candidates.
func reconcileSelection(sel domain.Selection, res *domain.ZoneResolution, stores []domain.Store) domain.Selection {
	if sel.Empty() {
		return sel
	}
	if sel.StoreID != "" {
		if !slices.ContainsFunc(stores, func(st domain.Store) bool { return st.ID == sel.StoreID }) {
			return domain.Selection{}
		}
		return sel
	}
	if !res.Covered() || res.Coverage.ZoneID != sel.ZoneID {
		return domain.Selection{}
	}
	return sel
}

func copySnapshot(s domain.LocationSnapshot) domain.LocationSnapshot {
	out := s
	if s.CurrentLocation != nil {
		c := *s.CurrentLocation
		out.CurrentLocation = &c
	}
	if s.Resolution != nil {
		r := domain.ZoneResolution{}
		if s.Resolution.Coverage != nil {
			cov := *s.Resolution.Coverage
			r.Coverage = &cov
		}
		if s.Resolution.Nearest != nil {
			n := *s.Resolution.Nearest
			r.Nearest = &n
		}
		out.Resolution = &r
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	out.NearbyStores = slices.Clone(s.NearbyStores)
	if out.NearbyStores == nil {
		out.NearbyStores = []domain.Store{}
	}
	return out
}
