package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status     int    `json:"status"`
	Code       string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message    string `json:"message"` // Human-readable message
	Kind       string `json:"kind,omitempty"`
	Actionable bool   `json:"actionable"`
	RequestID  string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:     status,
		Code:       code,
		Message:    message,
		Actionable: status < 500 || status == fiber.StatusServiceUnavailable || status == fiber.StatusGatewayTimeout,
		RequestID:  reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, 503, "service_unavailable", msg)
}

// errFrom maps a location error onto the envelope by kind.
func errFrom(c *fiber.Ctx, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(c, 504, "gateway_timeout", err.Error())
	}

	kind := domain.KindOf(err)
	var status int
	var code string
	switch kind {
	case domain.KindInvalidCoordinate:
		status, code = 400, "bad_request"
	case domain.KindPermissionDenied:
		status, code = 403, "permission_denied"
	case domain.KindNotFound, domain.KindNoCoverage:
		status, code = 404, "not_found"
	case domain.KindTimeout:
		status, code = 504, "gateway_timeout"
	case domain.KindNetwork, domain.KindProviderError, domain.KindBackend, domain.KindPositionUnavailable:
		status, code = 503, "service_unavailable"
	default:
		status, code = 500, "internal_error"
	}

	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:     status,
		Code:       code,
		Message:    err.Error(),
		Kind:       kind.String(),
		Actionable: kind.Actionable(),
		RequestID:  reqID,
	})
}
