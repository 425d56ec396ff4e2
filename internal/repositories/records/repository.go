// Package records persists AudioRecords for the metadata store.
package records

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

// Repository is the durable side of the metadata store.
type Repository interface {
	Upsert(ctx context.Context, r *models.AudioRecord) error
	Get(ctx context.Context, id string) (*models.AudioRecord, error)
	List(ctx context.Context) ([]*models.AudioRecord, error)
	Delete(ctx context.Context, id string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, remote_url, local_handle, status, progress, file_size_bytes, downloaded_at, title, seq, updated_at`

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.AudioRecord) error {
	var downloadedAt sql.NullInt64
	if rec.DownloadedAt != nil {
		downloadedAt = sql.NullInt64{Int64: rec.DownloadedAt.UnixNano(), Valid: true}
	}

	query := `INSERT INTO audio_records (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_url = excluded.remote_url,
			local_handle = excluded.local_handle,
			status = excluded.status,
			progress = excluded.progress,
			file_size_bytes = excluded.file_size_bytes,
			downloaded_at = excluded.downloaded_at,
			title = excluded.title,
			seq = excluded.seq,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.RemoteURL, rec.LocalHandle, string(rec.Status), rec.Progress,
		rec.FileSizeBytes, downloadedAt, rec.Title, int64(rec.Seq), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.AudioRecord, error) {
	var (
		rec          models.AudioRecord
		status       string
		downloadedAt sql.NullInt64
		seq          int64
		updatedAt    int64
	)
	err := s.Scan(&rec.ID, &rec.RemoteURL, &rec.LocalHandle, &status, &rec.Progress, &rec.FileSizeBytes,
		&downloadedAt, &rec.Title, &seq, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = models.Status(status)
	rec.Seq = uint64(seq)
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if downloadedAt.Valid {
		t := time.Unix(0, downloadedAt.Int64).UTC()
		rec.DownloadedAt = &t
	}
	return &rec, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.AudioRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM audio_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.AudioRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM audio_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []*models.AudioRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM audio_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}
