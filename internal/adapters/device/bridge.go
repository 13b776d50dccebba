// Package device bridges position requests to the browser attached to a session over
// its WebSocket.
package device

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// Frame types exchanged with the browser.
const (
	FrameLocateRequest = "locate_request"
	FramePosition      = "position"
	FramePositionError = "position_error"
)

// Browser geolocation error codes.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// ErrNoPendingRequest is returned by Deliver when nothing waits for the frame.
var ErrNoPendingRequest = errors.New("no pending position request")

// LocateRequest is sent to the browser.
type LocateRequest struct {
	Type               string `json:"type"`
	RequestID          string `json:"request_id"`
	EnableHighAccuracy bool   `json:"enable_high_accuracy"`
	TimeoutMs          int64  `json:"timeout_ms"`
	MaximumAgeMs       int64  `json:"maximum_age_ms"`
}

// Reply is a position or position_error frame from the browser.
type Reply struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
	Code      int     `json:"code"`
	Message   string  `json:"message"`
}

// Sender writes a frame to the attached socket.
type Sender func(v any) error

type attachment struct {
	send    Sender
	pending map[string]func(domain.Coordinate, error)
}

// Bridge implements ports.PositionSource.
type Bridge struct {
	mu    sync.Mutex
	conns map[string]*attachment
	seq   uint64
}

// NewBridge creates an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{conns: make(map[string]*attachment)}
}

// Attach registers the socket of a session, replacing any earlier one. The returned
// detach func fails the requests still waiting on this socket.
func (b *Bridge) Attach(sessionID string, send Sender) (detach func()) {
	a := &attachment{send: send, pending: make(map[string]func(domain.Coordinate, error))}

	b.mu.Lock()
	prev := b.conns[sessionID]
	b.conns[sessionID] = a
	b.mu.Unlock()

	if prev != nil {
		b.failAll(prev, "device socket replaced")
	}

	return func() {
		b.mu.Lock()
		if b.conns[sessionID] == a {
			delete(b.conns, sessionID)
		}
		b.mu.Unlock()
		b.failAll(a, "device socket closed")
	}
}

// Attached reports whether a session has a socket.
func (b *Bridge) Attached(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conns[sessionID]
	return ok
}

// RequestPosition asks the session's browser for a fix. Without a socket the request
// fails at once with PositionUnavailable.
func (b *Bridge) RequestPosition(ctx context.Context, sessionID string, opts domain.PositionOptions, done func(domain.Coordinate, error)) {
	b.mu.Lock()
	a, ok := b.conns[sessionID]
	if !ok {
		b.mu.Unlock()
		done(domain.Coordinate{}, domain.NewError(domain.KindPositionUnavailable, "device.locate", "no device attached", nil))
		return
	}
	b.seq++
	id := sessionID + "-" + strconv.FormatUint(b.seq, 10)
	a.pending[id] = done
	b.mu.Unlock()

	err := a.send(LocateRequest{
		Type:               FrameLocateRequest,
		RequestID:          id,
		EnableHighAccuracy: opts.EnableHighAccuracy,
		TimeoutMs:          opts.TimeoutMs,
		MaximumAgeMs:       opts.MaximumAgeMs,
	})
	if err != nil {
		if cb := b.take(a, id); cb != nil {
			cb(domain.Coordinate{}, domain.NewError(domain.KindPositionUnavailable, "device.locate", "send failed", err))
		}
		return
	}

	go func() {
		<-ctx.Done()
		b.take(a, id)
	}()
}

// Deliver hands a browser reply to the request it answers.
func (b *Bridge) Deliver(sessionID string, r Reply) error {
	b.mu.Lock()
	a, ok := b.conns[sessionID]
	b.mu.Unlock()
	if !ok {
		return ErrNoPendingRequest
	}
	cb := b.take(a, r.RequestID)
	if cb == nil {
		return ErrNoPendingRequest
	}

	switch r.Type {
	case FramePosition:
		cb(domain.Coordinate{Lat: r.Lat, Lng: r.Lng, Accuracy: r.Accuracy, Timestamp: r.Timestamp}, nil)
	case FramePositionError:
		cb(domain.Coordinate{}, errorForCode(r.Code, r.Message))
	default:
		cb(domain.Coordinate{}, domain.NewError(domain.KindPositionUnavailable, "device.locate", "unexpected frame "+r.Type, nil))
	}
	return nil
}

func (b *Bridge) take(a *attachment, id string) func(domain.Coordinate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := a.pending[id]
	if !ok {
		return nil
	}
	delete(a.pending, id)
	return cb
}

func (b *Bridge) failAll(a *attachment, reason string) {
	b.mu.Lock()
	pending := a.pending
	a.pending = make(map[string]func(domain.Coordinate, error))
	b.mu.Unlock()

	for _, cb := range pending {
		cb(domain.Coordinate{}, domain.NewError(domain.KindPositionUnavailable, "device.locate", reason, nil))
	}
	if len(pending) > 0 {
		slog.Debug("pending position requests failed", "count", len(pending), "reason", reason)
	}
}

func errorForCode(code int, message string) error {
	kind := domain.KindPositionUnavailable
	switch code {
	case CodePermissionDenied:
		kind = domain.KindPermissionDenied
	case CodeTimeout:
		kind = domain.KindTimeout
	}
	return domain.NewError(kind, "device.locate", message, nil)
}
