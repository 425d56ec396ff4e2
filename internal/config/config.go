package config

import (
	"fmt"
	"time"
)

const defaultAppSalt = "audiokeeper/app-salt/v1"

// Config holds runtime settings for the AudioKeeper CLI.
type Config struct {
	DataDir     string
	BackendURL  string
	AccessToken string

	// AppSalt is mixed into every item key. Changing it makes existing
	// artifacts undecryptable.
	AppSalt string

	MaxAge         time.Duration
	PlaybackWindow time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration

	// PurgeCron schedules removal of expired vault entries; empty disables it.
	PurgeCron string

	MetricsAddr string
	LogLevel    string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "./audiokeeper-data"
	c.BackendURL = "http://127.0.0.1:8080"
	c.AppSalt = defaultAppSalt
	c.MaxAge = 30 * 24 * time.Hour
	c.PlaybackWindow = 30 * time.Minute
	c.RequestTimeout = 10 * time.Minute
	c.PollInterval = 3 * time.Second
	c.LogLevel = "info"
	c.S3Region = "us-east-1"
}

// LoadConfig applies defaults, the config file, the environment and flags, in
// that order.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if err := parseEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("data dir is empty")
	case c.AppSalt == "":
		return fmt.Errorf("app salt is empty")
	case c.MaxAge <= 0:
		return fmt.Errorf("max age must be positive")
	case c.PlaybackWindow <= 0:
		return fmt.Errorf("playback window must be positive")
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
