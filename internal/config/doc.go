// Package config loads runtime configuration for the AudioKeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON.
//  3. Environment variables AUDIOKEEPER_*, after loading an optional .env
//     file from the working directory.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-d string   data directory
//	-b string   backend base url
//	-t string   access token
//	-m string   metrics listen address (empty disables metrics)
//	-l string   log level: debug, info, warn, error
//
// # File schema
//
// Durations use timex.Duration, so values can be strings like "30m" or
// integer nanoseconds:
//
//	{
//	  "data_dir": "/var/lib/audiokeeper",
//	  "backend_url": "https://api.example.com",
//	  "max_age": "720h",
//	  "playback_window": "30m",
//	  "purge_cron": "0 * * * *"
//	}
package config
