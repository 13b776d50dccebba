package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/ports"
)

const (
	defaultLocateTimeout = 30 * time.Second
	defaultMaximumAge    = 5 * time.Minute
	// safetyMargin is added on top of the platform timeout for platforms that never answer.
	safetyMargin = 5 * time.Second
)

// DefaultPositionOptions returns high accuracy, a 30s timeout and a 5 minute maximum age.
func DefaultPositionOptions() domain.PositionOptions {
	return domain.PositionOptions{
		EnableHighAccuracy: true,
		TimeoutMs:          defaultLocateTimeout.Milliseconds(),
		MaximumAgeMs:       defaultMaximumAge.Milliseconds(),
	}
}

// Locator obtains device positions through a PositionSource and keeps the last fix of
// each session for maximumAge reuse.
type Locator struct {
	source ports.PositionSource
	margin time.Duration
	now    func() time.Time

	mu      sync.Mutex
	lastFix map[string]domain.Coordinate
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithSafetyMargin overrides the grace period added to the platform timeout.
func WithSafetyMargin(d time.Duration) LocatorOption {
	return func(l *Locator) { l.margin = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) LocatorOption {
	return func(l *Locator) { l.now = now }
}

// NewLocator creates a new Locator.
func NewLocator(source ports.PositionSource, opts ...LocatorOption) *Locator {
	l := &Locator{
		source:  source,
		margin:  safetyMargin,
		now:     time.Now,
		lastFix: make(map[string]domain.Coordinate),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

type positionResult struct {
	coord domain.Coordinate
	err   error
}

// CurrentLocation returns the session's device position. A cached fix younger than
// opts.MaximumAgeMs is returned without asking the device.
func (l *Locator) CurrentLocation(ctx context.Context, sessionID string, opts domain.PositionOptions) (domain.Coordinate, error) {
	opts = normalizePositionOptions(opts)

	if c, ok := l.cached(sessionID, time.Duration(opts.MaximumAgeMs)*time.Millisecond); ok {
		return c, nil
	}

	if l.source == nil {
		return domain.Coordinate{}, domain.NewError(domain.KindPositionUnavailable, "locate", "no position source", nil)
	}

	results := make(chan positionResult, 1)
	l.source.RequestPosition(ctx, sessionID, opts, func(c domain.Coordinate, err error) {
		select {
		case results <- positionResult{coord: c, err: err}:
		default:
		}
	})

	timer := time.NewTimer(time.Duration(opts.TimeoutMs)*time.Millisecond + l.margin)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			return domain.Coordinate{}, classifyPositionError(res.err)
		}
		if !res.coord.Valid() {
			slog.Warn("device returned invalid coordinate", "session", sessionID, "lat", res.coord.Lat, "lng", res.coord.Lng)
			return domain.Coordinate{}, domain.NewError(domain.KindPositionUnavailable, "locate", "invalid fix", nil)
		}
		if res.coord.Timestamp == 0 {
			res.coord.Timestamp = l.now().UnixMilli()
		}
		l.Remember(sessionID, res.coord)
		return res.coord, nil
	case <-timer.C:
		slog.Warn("position request timed out", "session", sessionID, "timeout_ms", opts.TimeoutMs)
		return domain.Coordinate{}, domain.NewError(domain.KindTimeout, "locate", "no position within timeout", nil)
	case <-ctx.Done():
		return domain.Coordinate{}, ctx.Err()
	}
}

// Remember records a fix for the session, e.g. one pushed by the device unprompted.
func (l *Locator) Remember(sessionID string, c domain.Coordinate) {
	l.mu.Lock()
	l.lastFix[sessionID] = c
	l.mu.Unlock()
}

// Forget drops the session's cached fix.
func (l *Locator) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.lastFix, sessionID)
	l.mu.Unlock()
}

func (l *Locator) cached(sessionID string, maxAge time.Duration) (domain.Coordinate, bool) {
	if maxAge <= 0 {
		return domain.Coordinate{}, false
	}
	l.mu.Lock()
	c, ok := l.lastFix[sessionID]
	l.mu.Unlock()
	if !ok || c.Timestamp == 0 {
		return domain.Coordinate{}, false
	}
	age := l.now().Sub(time.UnixMilli(c.Timestamp))
	return c, age >= 0 && age <= maxAge
}

func normalizePositionOptions(opts domain.PositionOptions) domain.PositionOptions {
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = defaultLocateTimeout.Milliseconds()
	}
	if opts.MaximumAgeMs < 0 {
		opts.MaximumAgeMs = 0
	}
	return opts
}

func classifyPositionError(err error) error {
	switch domain.KindOf(err) {
	case domain.KindPermissionDenied, domain.KindPositionUnavailable, domain.KindTimeout:
		return err
	}
	return domain.NewError(domain.KindPositionUnavailable, "locate", "", err)
}
