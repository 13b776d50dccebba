package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		}
		if deps.Locations != nil {
			body["sessions"] = deps.Locations.Len()
		}
		return c.JSON(body)
	}
}

// ReadyHandler checks the zone catalogue and the optional database, NATS and cache
// connections. Only the catalogue is required: without it nothing can be resolved.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allOK := true

		if deps.Zones != nil {
			zones, err := deps.Zones.Zones(ctx)
			switch {
			case err != nil:
				checks["zones"] = "error: " + err.Error()
				allOK = false
			case len(zones) == 0:
				checks["zones"] = "empty"
			default:
				checks["zones"] = "ok"
			}
		} else {
			checks["zones"] = "not configured"
			allOK = false
		}

		checks["database"] = ping(ctx, deps.DB, &allOK)
		checks["cache"] = ping(ctx, deps.Cache, &allOK)

		if deps.NATS != nil {
			if deps.NATS.IsConnected() {
				checks["nats"] = "ok"
			} else {
				checks["nats"] = "disconnected"
				allOK = false
			}
		} else {
			checks["nats"] = "not configured"
		}

		status := "ready"
		code := fiber.StatusOK
		if !allOK {
			status = "not ready"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func ping(ctx context.Context, p Pinger, allOK *bool) string {
	if p == nil {
		return "not configured"
	}
	if err := p.Ping(ctx); err != nil {
		*allOK = false
		return "error: " + err.Error()
	}
	return "ok"
}
