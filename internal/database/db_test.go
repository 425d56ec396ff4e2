package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestInitDatabase_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	dsn := DSN(filepath.Join(t.TempDir(), "app.db"))

	db, err := InitDatabase(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"goose_db_version", "metadata", "audio_records", "vault_entries"} {
		assert.True(t, tableExists(t, db, table), "table %s", table)
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := InitDatabase(ctx, DSN(path))
	require.NoError(t, err)
	n, err := RunMigrations(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n, "second run must be a no-op")
	require.NoError(t, db.Close())

	db, err = InitDatabase(ctx, DSN(path))
	require.NoError(t, err, "reopening a migrated database")
	defer db.Close()
	assert.True(t, tableExists(t, db, "audio_records"))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, ":memory:", DSN(":memory:"))
	assert.Equal(t, "file:x.db?mode=memory", DSN("file:x.db?mode=memory"))
	assert.Equal(t, "file:/tmp/a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", DSN("/tmp/a.db"))
}
