package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thiskanishk/healthassist-cds/interfaces"
)

// Cache implements interfaces.Cache over cds_catalog_cache. It lets several
// instances share the last loaded catalog.
type Cache struct {
	pool *pgxpool.Pool
}

var _ interfaces.Cache = (*Cache)(nil)

func NewCache(pool *pgxpool.Pool) *Cache {
	return &Cache{pool: pool}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.pool.QueryRow(ctx,
		`SELECT value FROM cds_catalog_cache
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the entry. A ttl <= 0 never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err := c.pool.Exec(ctx,
		`INSERT INTO cds_catalog_cache (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes expired entries and returns how many were removed.
func (c *Cache) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM cds_catalog_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
