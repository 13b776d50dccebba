package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// ZoneSnapshotRepo implements ports.ZoneSnapshotRepository with pgx.
type ZoneSnapshotRepo struct {
	db *DB
}

// NewZoneSnapshotRepo creates a new ZoneSnapshotRepo.
func NewZoneSnapshotRepo(db *DB) *ZoneSnapshotRepo {
	return &ZoneSnapshotRepo{db: db}
}

// ReplaceAll swaps the stored catalogue for zones in one transaction.
func (r *ZoneSnapshotRepo) ReplaceAll(ctx context.Context, zones []domain.Zone) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM zone_snapshot`); err != nil {
		return fmt.Errorf("clear zone_snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, z := range zones {
		batch.Queue(`
			INSERT INTO zone_snapshot (id, name, center_lat, center_lng, maximum_distance_m,
			                           minimum_order, fee_minimum, fee_per_km,
			                           time_min_minutes, time_max_minutes, status, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		`, z.ID, z.Name, z.Center.Lat, z.Center.Lng, z.MaximumDistanceMeters,
			z.MinimumOrder, z.DeliveryFee.Minimum, z.DeliveryFee.PerKm,
			z.DeliveryTimeMinutes.Min, z.DeliveryTimeMinutes.Max, string(z.Status))
	}
	br := tx.SendBatch(ctx, batch)
	for range zones {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("batch close: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns the stored catalogue ordered by id.
func (r *ZoneSnapshotRepo) List(ctx context.Context) ([]domain.Zone, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, center_lat, center_lng, maximum_distance_m,
		       minimum_order, fee_minimum, fee_per_km,
		       time_min_minutes, time_max_minutes, status
		FROM zone_snapshot
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []domain.Zone
	for rows.Next() {
		var z domain.Zone
		var status string
		if err := rows.Scan(
			&z.ID, &z.Name, &z.Center.Lat, &z.Center.Lng, &z.MaximumDistanceMeters,
			&z.MinimumOrder, &z.DeliveryFee.Minimum, &z.DeliveryFee.PerKm,
			&z.DeliveryTimeMinutes.Min, &z.DeliveryTimeMinutes.Max, &status,
		); err != nil {
			return nil, err
		}
		z.Status = domain.ZoneStatus(status)
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
