package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MPEG-1 Layer III, 128 kbit/s, 44.1 kHz, stereo, no CRC: 417 bytes and
// 1152 samples per frame.
const frameSize = 417

func silentMP3(frames int) []byte {
	out := make([]byte, 0, frames*frameSize)
	for range frames {
		frame := make([]byte, frameSize)
		copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
		out = append(out, frame...)
	}
	return out
}

func frameDuration(frames int) time.Duration {
	return time.Duration(float64(frames*1152) / 44100 * float64(time.Second))
}

func writeMP3(t *testing.T, frames int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(p, silentMP3(frames), 0o600))
	return p
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLoad_Local(t *testing.T) {
	e := New(Options{})

	d, err := e.Load(context.Background(), writeMP3(t, 100))
	require.NoError(t, err)
	assert.InDelta(t, frameDuration(100).Seconds(), d.Seconds(), 0.01)
	assert.Equal(t, d, e.Duration())
	assert.Zero(t, e.Position())
}

func TestLoad_Remote(t *testing.T) {
	data := silentMP3(50)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	e := New(Options{HTTPClient: srv.Client()})

	d, err := e.Load(context.Background(), srv.URL+"/a.mp3")
	require.NoError(t, err)
	assert.InDelta(t, frameDuration(50).Seconds(), d.Seconds(), 0.01)

	_, err = e.Load(context.Background(), srv.URL+"/missing.mp3")
	require.ErrorIs(t, err, common.ErrPlaybackTransport)
}

func TestLoad_Invalid(t *testing.T) {
	e := New(Options{})

	p := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(p, []byte("definitely not audio"), 0o600))

	_, err := e.Load(context.Background(), p)
	require.ErrorIs(t, err, common.ErrPlaybackTransport)

	_, err = e.Load(context.Background(), filepath.Join(t.TempDir(), "absent.mp3"))
	require.ErrorIs(t, err, common.ErrPlaybackTransport)

	require.ErrorIs(t, e.Play(nil), common.ErrPlaybackTransport, "nothing loaded")
}

func TestClock_PositionRateSeek(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	e := New(Options{Now: c.Now})

	_, err := e.Load(context.Background(), writeMP3(t, 400)) // ~10.4s
	require.NoError(t, err)

	require.NoError(t, e.Play(nil))
	c.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, e.Position())

	require.NoError(t, e.SetRate(2))
	c.Advance(time.Second)
	assert.Equal(t, 4*time.Second, e.Position())

	require.NoError(t, e.Pause())
	c.Advance(5 * time.Second)
	assert.Equal(t, 4*time.Second, e.Position(), "paused position does not move")

	require.NoError(t, e.Seek(time.Second))
	assert.Equal(t, time.Second, e.Position())

	require.NoError(t, e.Seek(time.Hour))
	assert.Equal(t, e.Duration(), e.Position(), "seek clamps to the end")

	require.NoError(t, e.Seek(-time.Second))
	assert.Zero(t, e.Position())

	require.ErrorIs(t, e.SetRate(0), common.ErrInvalidArgument)
	e.Stop()
}

func TestNaturalEnd(t *testing.T) {
	e := New(Options{})

	_, err := e.Load(context.Background(), writeMP3(t, 4)) // ~0.1s
	require.NoError(t, err)

	var ended atomic.Int32
	require.NoError(t, e.Play(func() { ended.Add(1) }))

	require.Eventually(t, func() bool { return ended.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, e.Position(), "rewound after the end")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ended.Load())
}

func TestStop_SuppressesEnd(t *testing.T) {
	e := New(Options{})

	_, err := e.Load(context.Background(), writeMP3(t, 4))
	require.NoError(t, err)

	var ended atomic.Int32
	require.NoError(t, e.Play(func() { ended.Add(1) }))
	e.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, ended.Load())
}
