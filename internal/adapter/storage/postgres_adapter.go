package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/dapr-shop/internal/port"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS state (
		store_key  TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		version    BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) Get(ctx context.Context, key string) (*port.StateItem, error) {
	var (
		value   []byte
		version int64
	)
	err := p.pool.QueryRow(ctx, `SELECT value, version FROM state WHERE store_key = $1`, key).Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}

	return &port.StateItem{Key: key, Value: value, Version: strconv.FormatInt(version, 10)}, nil
}

func (p *PostgresAdapter) Save(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO state (store_key, value, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (store_key) DO UPDATE
		SET value = EXCLUDED.value, version = state.version + 1, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) SaveIfVersion(ctx context.Context, key string, value []byte, version string) error {
	if version == "" {
		tag, err := p.pool.Exec(ctx, `
			INSERT INTO state (store_key, value, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (store_key) DO NOTHING`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("insert state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return port.ErrVersionConflict
		}
		return nil
	}

	expected, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return port.ErrVersionConflict
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE state
		SET value = $1, version = version + 1, updated_at = NOW()
		WHERE store_key = $2 AND version = $3`,
		value, key, expected,
	)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return port.ErrVersionConflict
	}
	return nil
}

func (p *PostgresAdapter) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM state WHERE store_key = $1`, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
