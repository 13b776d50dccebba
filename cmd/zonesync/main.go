package main

import (
	"context"
	"errors"
	"log"
	"log/slog"

	"github.com/joho/godotenv"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/pourzone/internal/adapters/backend"
	natsadapter "github.com/samirrijal/pourzone/internal/adapters/nats"
	"github.com/samirrijal/pourzone/internal/adapters/postgres"
	"github.com/samirrijal/pourzone/internal/pkg/config"
	"github.com/samirrijal/pourzone/internal/pkg/logging"
	"github.com/samirrijal/pourzone/internal/workflows"
)

const (
	service    = "pourzone-zonesync"
	workflowID = "zone-sync"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(service)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(service, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	activities := &workflows.ZoneSyncActivities{
		Backend: backend.New(backend.Config{
			BaseURL:     cfg.Backend.BaseURL,
			APIKey:      cfg.Backend.APIKey,
			Timeout:     cfg.Backend.Timeout(),
			MaxAttempts: cfg.Backend.MaxAttempts,
			Backoff:     cfg.Backend.Backoff(),
		}),
		Snapshots: postgres.NewZoneSnapshotRepo(db),
	}
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, zone updates will not be announced", "error", err)
		} else {
			defer pub.Close()
			activities.Publisher = pub
		}
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.ZoneSyncWorkflow)
	w.RegisterActivity(activities)

	_, err = c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           workflowID,
		TaskQueue:    cfg.Temporal.TaskQueue,
		CronSchedule: cfg.Temporal.SyncCron,
	}, workflows.ZoneSyncWorkflow)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	switch {
	case errors.As(err, &started):
		slog.Info("zone sync schedule already running", "workflow_id", workflowID)
	case err != nil:
		log.Fatalf("start zone sync: %v", err)
	default:
		slog.Info("zone sync scheduled", "workflow_id", workflowID, "cron", cfg.Temporal.SyncCron)
	}

	slog.Info("zone sync worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
