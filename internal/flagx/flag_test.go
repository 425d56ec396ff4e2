package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-d", "/var/lib/ak", "-c", "ak.yaml"},
			allowed: []string{"d"},
			want:    []string{"-d", "/var/lib/ak"},
		},
		{
			name:    "equals form",
			args:    []string{"-b=https://api.x", "-l", "debug"},
			allowed: []string{"b"},
			want:    []string{"-b=https://api.x"},
		},
		{
			name:    "double dash is the same flag",
			args:    []string{"--d", "/data", "--l=warn"},
			allowed: []string{"d", "l"},
			want:    []string{"--d", "/data", "--l=warn"},
		},
		{
			name:    "allowed names may carry dashes",
			args:    []string{"-t", "tok"},
			allowed: []string{"-t"},
			want:    []string{"-t", "tok"},
		},
		{
			name:    "unknown flags and positionals dropped",
			args:    []string{"-x", "1", "download", "a1", "--y=2"},
			allowed: []string{"d"},
			want:    []string{},
		},
		{
			name:    "flag at end has no value",
			args:    []string{"-d"},
			allowed: []string{"d"},
			want:    []string{"-d"},
		},
		{
			name:    "next flag is not taken as value",
			args:    []string{"-d", "-l", "info"},
			allowed: []string{"d", "l"},
			want:    []string{"-d", "-l", "info"},
		},
		{
			name:    "repeated flag kept in order",
			args:    []string{"-m", ":9090", "-m", ":9091"},
			allowed: []string{"m"},
			want:    []string{"-m", ":9090", "-m", ":9091"},
		},
		{
			name:    "terminator ignored",
			args:    []string{"--", "-d", "x"},
			allowed: []string{"d"},
			want:    []string{"-d", "x"},
		},
		{
			name:    "empty",
			args:    nil,
			allowed: []string{"d"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed...))
		})
	}
}

func TestConfigFile(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"short", []string{"-c", "/etc/ak.yaml"}, "/etc/ak.yaml"},
		{"long", []string{"-config", "/etc/ak.json"}, "/etc/ak.json"},
		{"double dash equals", []string{"--config=/etc/ak.yml", "-d", "x"}, "/etc/ak.yml"},
		{"absent", []string{"-d", "/data"}, ""},
		{"last wins", []string{"-c", "one.yaml", "-config", "two.yaml"}, "two.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigFile(tt.args))
		})
	}
}

func TestConfigFileFlag_ReadsProcessArgs(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	os.Args = []string{"audiokeeper", "-c", "/tmp/ak.yaml"}
	assert.Equal(t, "/tmp/ak.yaml", ConfigFileFlag())
}
