package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/audiokeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Only the flags owned here are picked out of os.Args (see flagx.FilterArgs)
// so the config file flag and others do not interfere.
func parseFlags(cfg *Config) error {
	args := flagx.FilterArgs(os.Args[1:], "d", "b", "t", "m", "l")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.BackendURL, "b", cfg.BackendURL, "backend base url")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
