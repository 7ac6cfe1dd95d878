package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/dapr-shop/internal/port"
)

const mysqlDuplicateEntry = 1062

const mysqlSchema = `
	CREATE TABLE IF NOT EXISTS state (
		store_key  VARCHAR(255) NOT NULL PRIMARY KEY,
		value      LONGBLOB     NOT NULL,
		version    BIGINT       NOT NULL DEFAULT 1,
		updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the state table if needed.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Get(ctx context.Context, key string) (*port.StateItem, error) {
	var (
		value   []byte
		version int64
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT value, version FROM state WHERE store_key = ?`, key,
	).Scan(&value, &version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}

	return &port.StateItem{Key: key, Value: value, Version: strconv.FormatInt(version, 10)}, nil
}

func (m *MySQLAdapter) Save(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO state (store_key, value, version, updated_at)
		VALUES (?, ?, 1, NOW())
		ON DUPLICATE KEY UPDATE value = VALUES(value), version = version + 1, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SaveIfVersion(ctx context.Context, key string, value []byte, version string) error {
	if version == "" {
		_, err := m.db.ExecContext(ctx, `
			INSERT INTO state (store_key, value, version, updated_at) VALUES (?, ?, 1, NOW())`,
			key, value,
		)
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return port.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("insert state: %w", err)
		}
		return nil
	}

	expected, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return port.ErrVersionConflict
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE state
		SET value = ?, version = version + 1, updated_at = NOW()
		WHERE store_key = ? AND version = ?`,
		value, key, expected,
	)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrVersionConflict
	}
	return nil
}

func (m *MySQLAdapter) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM state WHERE store_key = ?`, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
