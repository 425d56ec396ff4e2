// Package vaultentries persists VaultEntries: one row per encrypted artifact.
package vaultentries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
)

type Repository interface {
	// Upsert inserts or replaces the entry of e.ItemID.
	Upsert(ctx context.Context, e *models.VaultEntry) error

	// Get returns common.ErrNotFound when the item has no entry.
	Get(ctx context.Context, itemID string) (*models.VaultEntry, error)

	List(ctx context.Context) ([]*models.VaultEntry, error)

	// Delete is idempotent.
	Delete(ctx context.Context, itemID string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.VaultEntry) error {
	query := `INSERT INTO vault_entries (item_id, encrypted_path, key_fingerprint, owner_fingerprint, file_size_bytes, created_at, app_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			encrypted_path = excluded.encrypted_path,
			key_fingerprint = excluded.key_fingerprint,
			owner_fingerprint = excluded.owner_fingerprint,
			file_size_bytes = excluded.file_size_bytes,
			created_at = excluded.created_at,
			app_version = excluded.app_version`

	_, err := r.db.ExecContext(ctx, query, e.ItemID, e.EncryptedPath, e.KeyFingerprint, e.OwnerFingerprint,
		e.FileSizeBytes, e.CreatedAt.UnixNano(), e.AppVersion)
	if err != nil {
		return fmt.Errorf("failed to upsert vault entry %s: %w", e.ItemID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.VaultEntry, error) {
	var e models.VaultEntry
	var createdAt int64
	if err := s.Scan(&e.ItemID, &e.EncryptedPath, &e.KeyFingerprint, &e.OwnerFingerprint, &e.FileSizeBytes, &createdAt, &e.AppVersion); err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	return &e, nil
}

const selectEntry = `SELECT item_id, encrypted_path, key_fingerprint, owner_fingerprint, file_size_bytes, created_at, app_version FROM vault_entries`

func (r *SQLiteRepository) Get(ctx context.Context, itemID string) (*models.VaultEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, selectEntry+` WHERE item_id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault entry %s: %w", itemID, err)
	}
	return e, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.VaultEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+` ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault entries: %w", err)
	}
	defer rows.Close()

	var result []*models.VaultEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vault entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, itemID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM vault_entries WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to delete vault entry %s: %w", itemID, err)
	}
	return nil
}
