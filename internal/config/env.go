package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "AUDIOKEEPER_"

// dotenvFile is loaded before the environment is read. Variables already set
// in the process win.
var dotenvFile = ".env"

func parseEnv(cfg *Config) error {
	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	strs := map[string]*string{
		"DATA_DIR":      &cfg.DataDir,
		"BACKEND_URL":   &cfg.BackendURL,
		"ACCESS_TOKEN":  &cfg.AccessToken,
		"APP_SALT":      &cfg.AppSalt,
		"PURGE_CRON":    &cfg.PurgeCron,
		"METRICS_ADDR":  &cfg.MetricsAddr,
		"LOG_LEVEL":     &cfg.LogLevel,
		"S3_REGION":     &cfg.S3Region,
		"S3_ENDPOINT":   &cfg.S3Endpoint,
		"S3_ACCESS_KEY": &cfg.S3AccessKey,
		"S3_SECRET_KEY": &cfg.S3SecretKey,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"MAX_AGE":         &cfg.MaxAge,
		"PLAYBACK_WINDOW": &cfg.PlaybackWindow,
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
		"POLL_INTERVAL":   &cfg.PollInterval,
	}
	for name, dst := range durations {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}
	return nil
}
