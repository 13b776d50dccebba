package usecases_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/usecases"
)

// --- Mock PositionSource ---

type mockPositionSource struct {
	calls     atomic.Int32
	requestFn func(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error))
}

func (m *mockPositionSource) RequestPosition(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error)) {
	m.calls.Add(1)
	if m.requestFn != nil {
		m.requestFn(ctx, sessionID, opts, done)
	}
}

func TestLocator_ReturnsFix(t *testing.T) {
	src := &mockPositionSource{
		requestFn: func(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error)) {
			if !opts.EnableHighAccuracy {
				t.Error("expected high accuracy to pass through")
			}
			go done(domain.Coordinate{Lat: 37.7749, Lng: -122.4194, Accuracy: 12}, nil)
		},
	}
	loc := usecases.NewLocator(src)

	c, err := loc.CurrentLocation(context.Background(), "s1", usecases.DefaultPositionOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Lat != 37.7749 || c.Timestamp == 0 {
		t.Errorf("unexpected fix %+v", c)
	}
}

func TestLocator_SafetyTimerFiresWhenPlatformNeverAnswers(t *testing.T) {
	src := &mockPositionSource{} // never calls done
	loc := usecases.NewLocator(src, usecases.WithSafetyMargin(10*time.Millisecond))

	start := time.Now()
	_, err := loc.CurrentLocation(context.Background(), "s1", domain.PositionOptions{TimeoutMs: 20})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("safety timer fired early after %s", elapsed)
	}
}

func TestLocator_PermissionDeniedPassesThrough(t *testing.T) {
	src := &mockPositionSource{
		requestFn: func(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error)) {
			done(domain.Coordinate{}, domain.NewError(domain.KindPermissionDenied, "device", "user denied", nil))
		},
	}
	_, err := usecases.NewLocator(src).CurrentLocation(context.Background(), "s1", usecases.DefaultPositionOptions())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestLocator_UntypedErrorBecomesPositionUnavailable(t *testing.T) {
	src := &mockPositionSource{
		requestFn: func(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error)) {
			done(domain.Coordinate{}, errors.New("socket closed"))
		},
	}
	_, err := usecases.NewLocator(src).CurrentLocation(context.Background(), "s1", usecases.DefaultPositionOptions())
	if !errors.Is(err, domain.ErrPositionUnavailable) {
		t.Fatalf("expected position unavailable, got %v", err)
	}
}

func TestLocator_MaximumAgeServesCachedFix(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	src := &mockPositionSource{}
	loc := usecases.NewLocator(src, usecases.WithClock(func() time.Time { return now }))
	loc.Remember("s1", domain.Coordinate{Lat: 1, Lng: 2, Timestamp: now.Add(-time.Minute).UnixMilli()})

	c, err := loc.CurrentLocation(context.Background(), "s1", domain.PositionOptions{MaximumAgeMs: 120_000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Lat != 1 {
		t.Errorf("expected cached fix, got %+v", c)
	}
	if src.calls.Load() != 0 {
		t.Errorf("device should not be asked, got %d calls", src.calls.Load())
	}
}

func TestLocator_ExpiredFixAsksDevice(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	src := &mockPositionSource{
		requestFn: func(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error)) {
			done(domain.Coordinate{Lat: 5, Lng: 6}, nil)
		},
	}
	loc := usecases.NewLocator(src, usecases.WithClock(func() time.Time { return now }))
	loc.Remember("s1", domain.Coordinate{Lat: 1, Lng: 2, Timestamp: now.Add(-10 * time.Minute).UnixMilli()})

	c, err := loc.CurrentLocation(context.Background(), "s1", usecases.DefaultPositionOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Lat != 5 || src.calls.Load() != 1 {
		t.Errorf("expected fresh fix from device, got %+v after %d calls", c, src.calls.Load())
	}
}
