package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{
			"data_dir":        "/srv/ak",
			"max_age":         "48h",
			"playback_window": int64(5 * time.Minute),
			"s3_endpoint":     "http://minio:9000",
		})
		os.Args = []string{"testbin", "-config", path}

		var cfg Config
		cfg.LoadDefaults()
		require.NoError(t, parseFile(&cfg))

		assert.Equal(t, "/srv/ak", cfg.DataDir)
		assert.Equal(t, 48*time.Hour, cfg.MaxAge)
		assert.Equal(t, 5*time.Minute, cfg.PlaybackWindow)
		assert.Equal(t, "http://minio:9000", cfg.S3Endpoint)
		assert.Equal(t, "http://127.0.0.1:8080", cfg.BackendURL, "absent keys keep defaults")
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "cfg.yaml")
		require.NoError(t, os.WriteFile(path, []byte("purge_cron: \"0 * * * *\"\npoll_interval: 1s\n"), 0o600))
		os.Args = []string{"testbin", "-c", path}

		var cfg Config
		cfg.LoadDefaults()
		require.NoError(t, parseFile(&cfg))

		assert.Equal(t, "0 * * * *", cfg.PurgeCron)
		assert.Equal(t, time.Second, cfg.PollInterval)
	})

	t.Run("no file flag", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := Config{DataDir: "keep"}
		require.NoError(t, parseFile(&cfg))
		assert.Equal(t, "keep", cfg.DataDir)
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		require.Error(t, parseFile(&Config{}))
	})

	t.Run("missing file", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "absent.json")}
		require.Error(t, parseFile(&Config{}))
	})
}
