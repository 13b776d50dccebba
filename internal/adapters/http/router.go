package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

// geocodeSunset is when the legacy /v1/location/geocode alias goes away.
var geocodeSunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/ws"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{Path: "/v1/location/geocode", SunsetDate: geocodeSunset, Alternative: "/v1/geocode"},
	}))
	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	d := deps.timeout()
	v1 := app.Group("/v1")
	v1.Get("/zones", timeout.NewWithContext(ListZonesHandler(deps), d))
	v1.Post("/zones/reload", timeout.NewWithContext(ReloadZonesHandler(deps), d))
	v1.Post("/zones/coverage", timeout.NewWithContext(CoverageHandler(deps), d))
	v1.Post("/zones/delivery-quote", timeout.NewWithContext(DeliveryQuoteHandler(deps), d))
	v1.Get("/stores/nearby", timeout.NewWithContext(NearbyStoresHandler(deps), d))
	v1.Get("/geocode", timeout.NewWithContext(GeocodeHandler(deps), d))
	v1.Get("/location/geocode", timeout.NewWithContext(GeocodeHandler(deps), d))
	v1.Get("/reverse-geocode", timeout.NewWithContext(ReverseGeocodeHandler(deps), d))
	v1.Get("/autocomplete", timeout.NewWithContext(AutocompleteHandler(deps), d))

	// Sessions. Locate waits on the browser, which brings its own timeout.
	v1.Get("/sessions/:id/location", GetLocationHandler(deps))
	v1.Put("/sessions/:id/location", timeout.NewWithContext(SetLocationHandler(deps), d))
	v1.Post("/sessions/:id/locate", LocateHandler(deps))
	v1.Post("/sessions/:id/refresh", timeout.NewWithContext(RefreshHandler(deps), d))
	v1.Put("/sessions/:id/selection/store", SelectStoreHandler(deps))
	v1.Delete("/sessions/:id/selection", ClearSelectionHandler(deps))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
