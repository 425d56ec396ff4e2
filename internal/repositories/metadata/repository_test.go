package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)
	return NewSQLiteRepository(db), db
}

func TestSetIfAbsent_KeepsFirstValue(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()

	wrote, err := r.SetIfAbsent(ctx, "device_secret", []byte("first"))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = r.SetIfAbsent(ctx, "device_secret", []byte("second"))
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := r.Get(ctx, "device_secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestGet_Missing(t *testing.T) {
	r, _ := openRepo(t)

	got, err := r.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelete_Idempotent(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()

	_, err := r.SetIfAbsent(ctx, "k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, "k"))
	require.NoError(t, r.Delete(ctx, "k"))

	got, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetOrCreate_GeneratesOnce(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	calls := 0
	gen := func() []byte { calls++; return []byte("secret") }

	v1, err := GetOrCreate(ctx, r, "device_secret", gen)
	require.NoError(t, err)
	v2, err := GetOrCreate(ctx, r, "device_secret", gen)
	require.NoError(t, err)

	assert.Equal(t, []byte("secret"), v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls)
}

// racingRepo hides the first stored value from Get, as if another process
// inserted between our read and write.
type racingRepo struct {
	*SQLiteRepository
	hidden bool
}

func (r *racingRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if !r.hidden {
		r.hidden = true
		return nil, nil
	}
	return r.SQLiteRepository.Get(ctx, key)
}

func TestGetOrCreate_LosesRaceToExistingValue(t *testing.T) {
	base, _ := openRepo(t)
	ctx := context.Background()
	_, err := base.SetIfAbsent(ctx, "device_secret", []byte("winner"))
	require.NoError(t, err)

	v, err := GetOrCreate(ctx, &racingRepo{SQLiteRepository: base}, "device_secret", func() []byte {
		return []byte("loser")
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("winner"), v)
}

func TestRepository_ClosedDB(t *testing.T) {
	r, db := openRepo(t)
	require.NoError(t, db.Close())
	ctx := context.Background()

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, `get metadata "k"`)
	_, err = r.SetIfAbsent(ctx, "k", []byte("v"))
	require.ErrorContains(t, err, `set metadata "k"`)
	require.ErrorContains(t, r.Delete(ctx, "k"), `delete metadata "k"`)
}
