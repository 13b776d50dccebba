package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/pourzone/internal/core/domain"
)

// GeocodeCacheRepo implements ports.GeocodeCacheRepository with pgx. Keys are
// normalised addresses.
type GeocodeCacheRepo struct {
	db *DB
}

// NewGeocodeCacheRepo creates a new GeocodeCacheRepo.
func NewGeocodeCacheRepo(db *DB) *GeocodeCacheRepo {
	return &GeocodeCacheRepo{db: db}
}

// Get returns the cached coordinate, or nil when the address was never geocoded.
func (r *GeocodeCacheRepo) Get(ctx context.Context, addressKey string) (*domain.Coordinate, error) {
	var c domain.Coordinate
	err := r.db.Pool.QueryRow(ctx, `
		SELECT lat, lng FROM geocode_cache WHERE address_key = $1
	`, addressKey).Scan(&c.Lat, &c.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: %w", err)
	}
	return &c, nil
}

// Put upserts the coordinate for an address.
func (r *GeocodeCacheRepo) Put(ctx context.Context, addressKey string, c domain.Coordinate) error {
	if strings.TrimSpace(addressKey) == "" {
		return fmt.Errorf("put geocode cache: empty address key")
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_key, lat, lng, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (address_key) DO UPDATE
		SET lat = EXCLUDED.lat, lng = EXCLUDED.lng, updated_at = EXCLUDED.updated_at
	`, addressKey, c.Lat, c.Lng)
	if err != nil {
		return fmt.Errorf("put geocode cache: %w", err)
	}
	return nil
}
