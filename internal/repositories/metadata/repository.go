// Package metadata persists small device-level values, such as the device
// secret that salts owner fingerprints.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns (nil, nil) when key is absent.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, nil
}

// SetIfAbsent stores value unless key already holds one. It reports whether
// value was written.
func (r *SQLiteRepository) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, key, value)
	if err != nil {
		return false, fmt.Errorf("set metadata %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set metadata %q: %w", key, err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete metadata %q: %w", key, err)
	}
	return nil
}

// GetOrCreate returns the value stored under key, storing gen() on first use.
// Two processes racing on an empty table agree on whichever value landed.
func GetOrCreate(ctx context.Context, r Repository, key string, gen func() []byte) ([]byte, error) {
	v, err := r.Get(ctx, key)
	if err != nil || v != nil {
		return v, err
	}
	if _, err := r.SetIfAbsent(ctx, key, gen()); err != nil {
		return nil, err
	}
	v, err = r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("metadata %q vanished after insert", key)
	}
	return v, nil
}
