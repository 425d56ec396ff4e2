package records

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/database"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertGet_RoundTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	rec := &models.AudioRecord{
		ID:            "a1",
		RemoteURL:     "https://x/a1.mp3",
		LocalHandle:   "abc",
		Status:        models.StatusDownloaded,
		Progress:      1,
		FileSizeBytes: 1234,
		DownloadedAt:  &at,
		Title:         "Morning brief",
		Seq:           7,
		UpdatedAt:     at,
	}
	require.NoError(t, r.Upsert(ctx, rec))

	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(rec, got))

	rec.Status = models.StatusNone
	rec.LocalHandle = ""
	rec.DownloadedAt = nil
	rec.Seq = 8
	require.NoError(t, r.Upsert(ctx, rec))

	got, err = r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(rec, got))
}

func TestGet_Missing(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, r.Upsert(ctx, &models.AudioRecord{ID: id, RemoteURL: "u/" + id, Status: models.StatusNone, UpdatedAt: now}))
	}

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID, "ordered by id")

	require.NoError(t, r.Delete(ctx, "b"))
	require.NoError(t, r.Delete(ctx, "b"))

	all, err = r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
