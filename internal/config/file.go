package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/audiokeeper/internal/flagx"
	"github.com/dmitrijs2005/audiokeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Zero values leave the current
// setting untouched.
type FileConfig struct {
	DataDir        string         `json:"data_dir" yaml:"data_dir"`
	BackendURL     string         `json:"backend_url" yaml:"backend_url"`
	AccessToken    string         `json:"access_token" yaml:"access_token"`
	AppSalt        string         `json:"app_salt" yaml:"app_salt"`
	MaxAge         timex.Duration `json:"max_age" yaml:"max_age"`
	PlaybackWindow timex.Duration `json:"playback_window" yaml:"playback_window"`
	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	PollInterval   timex.Duration `json:"poll_interval" yaml:"poll_interval"`
	PurgeCron      string         `json:"purge_cron" yaml:"purge_cron"`
	MetricsAddr    string         `json:"metrics_addr" yaml:"metrics_addr"`
	LogLevel       string         `json:"log_level" yaml:"log_level"`
	S3Region       string         `json:"s3_region" yaml:"s3_region"`
	S3Endpoint     string         `json:"s3_endpoint" yaml:"s3_endpoint"`
	S3AccessKey    string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey    string         `json:"s3_secret_key" yaml:"s3_secret_key"`
}

// parseFile overlays cfg with the file named by -c/-config, if any.
func parseFile(cfg *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return err
	}

	fc.apply(cfg)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.BackendURL, fc.BackendURL)
	setString(&cfg.AccessToken, fc.AccessToken)
	setString(&cfg.AppSalt, fc.AppSalt)
	setString(&cfg.PurgeCron, fc.PurgeCron)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3Endpoint, fc.S3Endpoint)
	setString(&cfg.S3AccessKey, fc.S3AccessKey)
	setString(&cfg.S3SecretKey, fc.S3SecretKey)

	if fc.MaxAge.Duration != 0 {
		cfg.MaxAge = fc.MaxAge.Duration
	}
	if fc.PlaybackWindow.Duration != 0 {
		cfg.PlaybackWindow = fc.PlaybackWindow.Duration
	}
	if fc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.PollInterval.Duration != 0 {
		cfg.PollInterval = fc.PollInterval.Duration
	}
}
