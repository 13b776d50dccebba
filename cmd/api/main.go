package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/samirrijal/pourzone/internal/adapters/backend"
	"github.com/samirrijal/pourzone/internal/adapters/device"
	"github.com/samirrijal/pourzone/internal/adapters/googlemaps"
	"github.com/samirrijal/pourzone/internal/adapters/http"
	"github.com/samirrijal/pourzone/internal/adapters/memory"
	natsadapter "github.com/samirrijal/pourzone/internal/adapters/nats"
	"github.com/samirrijal/pourzone/internal/adapters/postgres"
	"github.com/samirrijal/pourzone/internal/adapters/valkey"
	"github.com/samirrijal/pourzone/internal/core/ports"
	"github.com/samirrijal/pourzone/internal/core/usecases"
	"github.com/samirrijal/pourzone/internal/pkg/config"
	"github.com/samirrijal/pourzone/internal/pkg/logging"
	"github.com/samirrijal/pourzone/internal/pkg/telemetry"
)

const service = "pourzone-api"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg, err := config.Load(service)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(service, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	}

	// Database: zone snapshot and durable geocode cache
	var (
		snapshots ports.ZoneSnapshotRepository
		durable   ports.GeocodeCacheRepository
	)
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		go db.ReportPoolStats(ctx, 15*time.Second)

		snapshots = postgres.NewZoneSnapshotRepo(db)
		durable = postgres.NewGeocodeCacheRepo(db)
		deps.DB = db
	}

	// Cache and persisted selections
	var (
		cache      ports.CacheService
		selections ports.SelectionStore
	)
	if cfg.Valkey.Enabled {
		vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable, using in-process cache", "error", err)
		} else {
			defer vc.Close()
			cache = vc
			selections = valkey.NewSelectionStore(vc)
			deps.Cache = vc
		}
	}
	if cache == nil {
		mc := memory.NewCache()
		go mc.RunSweeper(ctx, time.Minute)
		cache = mc
		selections = memory.NewSelectionStore()
	}

	// NATS
	var publisher ports.EventPublisher
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}

		// Raw NATS connection for WebSocket relay
		natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			defer natsConn.Close()
			deps.NATS = natsConn
		}
	}

	// Upstreams
	storefront := backend.New(backend.Config{
		BaseURL:     cfg.Backend.BaseURL,
		APIKey:      cfg.Backend.APIKey,
		Timeout:     cfg.Backend.Timeout(),
		MaxAttempts: cfg.Backend.MaxAttempts,
		Backoff:     cfg.Backend.Backoff(),
	})
	google := googlemaps.New(googlemaps.Config{
		APIKey:   cfg.Google.APIKey,
		BaseURL:  cfg.Google.BaseURL,
		QPS:      cfg.Google.QPS,
		Region:   cfg.Google.Region,
		Language: cfg.Google.Language,
		Timeout:  cfg.Backend.Timeout(),
	})

	// Backend calls share one throttler
	throttler := usecases.NewThrottler("backend", cfg.Throttler.MinInterval())
	defer throttler.Close()

	zones := usecases.NewZoneResolver(storefront, throttler, snapshots)
	stores := usecases.NewStoreResolver(storefront, throttler, cfg.Stores.WideRadiusKm)

	var providers []ports.GeocodeProvider
	for _, name := range cfg.Geocoding.Providers {
		switch name {
		case "backend":
			providers = append(providers, usecases.Throttled(storefront, throttler))
		case "google":
			providers = append(providers, google)
		}
	}
	geocoder := usecases.NewGeocodingService(providers, google, cache, durable)

	bridge := device.NewBridge()
	locations := usecases.NewLocationService(usecases.LocationServiceDeps{
		Locator:    usecases.NewLocator(bridge),
		Geocoder:   geocoder,
		Zones:      zones,
		Stores:     stores,
		Selections: selections,
		Publisher:  publisher,
	})
	go locations.RunEvictor(ctx, cfg.Sessions.EvictInterval(), cfg.Sessions.IdleTTL())

	// Catalogue reloads pushed by the zone sync worker
	if cfg.NATS.Enabled {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, cfg.NATS.Instance)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeZonesUpdated(ctx, locations.OnZonesUpdated); err != nil {
				slog.Warn("zones.updated subscribe failed", "error", err)
			}
		}
	}

	deps.Locations = locations
	deps.Zones = zones
	deps.Stores = stores
	deps.Geocoder = geocoder
	deps.Bridge = bridge

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "pourzone API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "providers", cfg.Geocoding.Providers)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
