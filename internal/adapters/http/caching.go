package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses the handler left alone.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return err
		}
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		if ttl := cacheControlFor(c.Path()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready" || path == "/metrics":
		return "no-cache"
	case strings.HasPrefix(path, "/v1/sessions/"):
		// per-user state
		return "no-store"
	case path == "/v1/zones":
		return "public, max-age=300"
	case path == "/v1/geocode" || path == "/v1/location/geocode" || path == "/v1/reverse-geocode":
		return "public, max-age=3600"
	case path == "/v1/autocomplete":
		return "private, max-age=60"
	case path == "/v1/stores/nearby":
		return "public, max-age=60"
	case strings.HasPrefix(path, "/docs"):
		return "public, max-age=3600"
	case strings.HasPrefix(path, "/v1/"):
		return "public, max-age=30"
	}
	return ""
}
