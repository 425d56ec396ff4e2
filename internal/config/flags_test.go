package config

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{
			name: "all flags",
			args: []string{"cmd", "-d", "/data", "-b", "https://api", "-t", "tok", "-m", ":9100", "-l", "debug"},
			expected: &Config{DataDir: "/data", BackendURL: "https://api", AccessToken: "tok",
				MetricsAddr: ":9100", LogLevel: "debug"},
		},
		{
			name:     "foreign flags ignored",
			args:     []string{"cmd", "-c", "cfg.json", "-x", "-d=/data"},
			expected: &Config{DataDir: "/data"},
		},
		{
			name:    "missing value",
			args:    []string{"cmd", "-d"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			cfg := &Config{}
			err := parseFlags(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}
