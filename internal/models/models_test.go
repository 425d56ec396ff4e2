package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Fraction(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want float64
	}{
		{"start", Progress{BytesWritten: 0, BytesTotal: 100, Status: StatusDownloading}, 0},
		{"half", Progress{BytesWritten: 50, BytesTotal: 100, Status: StatusDownloading}, 0.5},
		{"unknown total", Progress{BytesWritten: 50, BytesTotal: -1, Status: StatusDownloading}, 0},
		{"overshoot clamps", Progress{BytesWritten: 150, BytesTotal: 100, Status: StatusDownloading}, 1},
		{"done with unknown total", Progress{BytesWritten: 50, BytesTotal: -1, Status: StatusDownloaded}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.p.Fraction(), 1e-9)
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusNone.Terminal())
	assert.False(t, StatusDownloading.Terminal())
	assert.True(t, StatusDownloaded.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
