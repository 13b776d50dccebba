package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies location failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindPermissionDenied means the user blocked device geolocation.
	KindPermissionDenied
	// KindPositionUnavailable means the device could not produce a fix.
	KindPositionUnavailable
	// KindTimeout means no fix arrived in time.
	KindTimeout
	// KindProviderError is a mapping provider failure other than zero results.
	KindProviderError
	// KindNotFound means a provider or backend answered with no result.
	KindNotFound
	// KindNetwork means the backend could not be reached.
	KindNetwork
	// KindNoCoverage is informational: a valid answer, but no zone applies.
	KindNoCoverage
	// KindInvalidCoordinate means lat/lng were not finite or out of range.
	KindInvalidCoordinate
	// KindBackend is a non-network backend failure (4xx/5xx, bad payload).
	KindBackend
)

var kindNames = map[ErrorKind]string{
	KindUnknown:             "unknown",
	KindPermissionDenied:    "permission_denied",
	KindPositionUnavailable: "position_unavailable",
	KindTimeout:             "timeout",
	KindProviderError:       "provider_error",
	KindNotFound:            "not_found",
	KindNetwork:             "network_error",
	KindNoCoverage:          "no_coverage",
	KindInvalidCoordinate:   "invalid_coordinate",
	KindBackend:             "backend_error",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Actionable reports whether the user can do something about it
// (enable location access, retry, fix the address).
func (k ErrorKind) Actionable() bool {
	return k != KindNoCoverage && k != KindUnknown
}

// LocationError is the error type returned across the location services.
type LocationError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *LocationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// Is matches any *LocationError of the same kind, so the sentinels below work with errors.Is.
func (e *LocationError) Is(target error) bool {
	var t *LocationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrPermissionDenied    = &LocationError{Kind: KindPermissionDenied}
	ErrPositionUnavailable = &LocationError{Kind: KindPositionUnavailable}
	ErrTimeout             = &LocationError{Kind: KindTimeout}
	ErrProviderError       = &LocationError{Kind: KindProviderError}
	ErrNotFound            = &LocationError{Kind: KindNotFound}
	ErrNetwork             = &LocationError{Kind: KindNetwork}
	ErrNoCoverage          = &LocationError{Kind: KindNoCoverage}
	ErrInvalidCoordinate   = &LocationError{Kind: KindInvalidCoordinate}
	ErrBackend             = &LocationError{Kind: KindBackend}
)

// NewError builds a LocationError.
func NewError(kind ErrorKind, op, message string, err error) *LocationError {
	return &LocationError{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first LocationError in the chain.
func KindOf(err error) ErrorKind {
	var le *LocationError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsNetwork reports whether err means the backend was unreachable.
func IsNetwork(err error) bool {
	return KindOf(err) == KindNetwork
}

// Describe converts an error into the UI-facing ErrorInfo.
func Describe(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	return &ErrorInfo{
		Kind:       kind.String(),
		Message:    err.Error(),
		Actionable: kind.Actionable(),
	}
}
