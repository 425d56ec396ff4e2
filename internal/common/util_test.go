package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(32)
	b := GenerateRandByteArray(32)

	require.Len(t, a, 32)
	require.Len(t, b, 32)
	assert.NotEqual(t, a, b)
	assert.Empty(t, GenerateRandByteArray(0))
}

func TestWipeByteArray(t *testing.T) {
	key := []byte{1, 2, 3, 4, 5}
	WipeByteArray(key)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, key)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://x/a1.mp3", "https://x/a1.mp3"},
		{"https://x/a1.mp3?X-Amz-Signature=abc", "https://x/a1.mp3?[redacted]"},
		{"https://user:pw@cdn.x/a1.mp3", "https://cdn.x/a1.mp3"},
		{"https://cdn.x/a@b.mp3", "https://cdn.x/a@b.mp3"},
		{"s3://bucket/key.mp3", "s3://bucket/key.mp3"},
		{"/local/path?x=1", "/local/path?[redacted]"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactURL(tt.in))
		})
	}
}
