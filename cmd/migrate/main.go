package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/pourzone/internal/pkg/config"
)

type migration struct {
	file string
	down string
}

var migrations = []migration{
	{file: "migrations/001_zone_snapshot.sql", down: "DROP TABLE IF EXISTS zone_snapshot"},
	{file: "migrations/002_geocode_cache.sql", down: "DROP TABLE IF EXISTS geocode_cache"},
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("pourzone-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, pool)
	case "down":
		rollback(ctx, pool)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) {
	for _, m := range migrations {
		data, err := os.ReadFile(m.file)
		if err != nil {
			log.Fatalf("read %s: %v", m.file, err)
		}

		_, err = pool.Exec(ctx, string(data))
		if err != nil {
			log.Fatalf("exec %s: %v", m.file, err)
		}

		fmt.Printf("OK  %s\n", m.file)
	}

	log.Println("all migrations applied")
}

func rollback(ctx context.Context, pool *pgxpool.Pool) {
	for _, m := range slices.Backward(migrations) {
		if _, err := pool.Exec(ctx, m.down); err != nil {
			log.Fatalf("rollback %s: %v", m.file, err)
		}
		fmt.Printf("DOWN  %s\n", m.file)
	}

	log.Println("all migrations rolled back")
}
