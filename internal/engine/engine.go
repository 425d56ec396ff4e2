// Package engine is a headless audio engine. It decodes the source once to
// validate it and learn its duration, then keeps a playback clock: position
// advances with wall time scaled by the playback rate and a timer reports the
// natural end of the track.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/hajimehoshi/go-mp3"
)

// DefaultMaxRemoteBytes caps how much of a streamed source is buffered.
const DefaultMaxRemoteBytes = 512 << 20

// decoded PCM is 16-bit stereo
const bytesPerSample = 4

type Options struct {
	HTTPClient     *http.Client
	MaxRemoteBytes int64
	Now            func() time.Time
	Logger         logging.Logger
}

type Engine struct {
	client   *http.Client
	maxBytes int64
	now      func() time.Time
	log      logging.Logger

	mu       sync.Mutex
	loaded   bool
	duration time.Duration
	offset   time.Duration
	anchor   time.Time
	rate     float64
	playing  bool
	timer    *time.Timer
	onEnd    func()
	gen      uint64
}

func New(opts Options) *Engine {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.MaxRemoteBytes <= 0 {
		opts.MaxRemoteBytes = DefaultMaxRemoteBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Engine{
		client:   opts.HTTPClient,
		maxBytes: opts.MaxRemoteBytes,
		now:      opts.Now,
		log:      opts.Logger,
		rate:     1,
	}
}

func transportErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrPlaybackTransport, fmt.Sprintf(format, args...))
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func (e *Engine) open(ctx context.Context, source string) (io.ReadSeeker, func(), error) {
	if !isRemote(source) {
		f, err := os.Open(source)
		if err != nil {
			return nil, nil, transportErr("open source: %v", err)
		}
		return f, func() { _ = f.Close() }, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, nil, transportErr("build request: %v", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, transportErr("stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, transportErr("stream status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, nil, transportErr("stream: %v", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, nil, transportErr("stream larger than %d bytes", e.maxBytes)
	}
	return bytes.NewReader(data), func() {}, nil
}

// Load replaces the current source with source, a local path or an http(s)
// URL, and returns its duration. The engine is left paused at 0.
func (e *Engine) Load(ctx context.Context, source string) (time.Duration, error) {
	e.Stop()

	r, closeFn, err := e.open(ctx, source)
	if err != nil {
		return 0, err
	}
	defer closeFn()

	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return 0, transportErr("decode: %v", err)
	}
	length, rate := dec.Length(), dec.SampleRate()
	if length <= 0 || rate <= 0 {
		return 0, transportErr("source has no audio")
	}
	d := time.Duration(float64(length) / float64(rate*bytesPerSample) * float64(time.Second))

	e.mu.Lock()
	defer e.mu.Unlock()

	e.loaded = true
	e.duration = d
	e.offset = 0
	e.log.Debug(ctx, "source loaded", "remote", isRemote(source), "duration", d)
	return d, nil
}

func (e *Engine) positionLocked() time.Duration {
	if !e.playing {
		return e.offset
	}
	pos := e.offset + time.Duration(float64(e.now().Sub(e.anchor))*e.rate)
	return min(pos, e.duration)
}

// schedule arms the end-of-track timer for the current position and rate.
func (e *Engine) scheduleLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	remaining := time.Duration(float64(e.duration-e.offset) / e.rate)
	e.timer = time.AfterFunc(max(remaining, 0), func() { e.finish(gen) })
}

func (e *Engine) finish(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || !e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = false
	e.offset = 0
	e.timer = nil
	cb := e.onEnd
	e.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Play starts or resumes playback. onEnd is called once when the track
// reaches its end without being paused, stopped or reloaded.
func (e *Engine) Play(onEnd func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return transportErr("nothing loaded")
	}
	e.onEnd = onEnd
	if e.playing {
		return nil
	}
	if e.offset >= e.duration {
		e.offset = 0
	}
	e.playing = true
	e.anchor = e.now()
	e.scheduleLocked()
	return nil
}

func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return transportErr("nothing loaded")
	}
	if !e.playing {
		return nil
	}
	e.offset = e.positionLocked()
	e.playing = false
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return nil
}

// Seek moves to pos, clamped to the track.
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return transportErr("nothing loaded")
	}
	e.offset = min(max(pos, 0), e.duration)
	if e.playing {
		e.anchor = e.now()
		e.scheduleLocked()
	}
	return nil
}

func (e *Engine) SetRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("rate %v: %w", rate, common.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playing {
		e.offset = e.positionLocked()
		e.anchor = e.now()
	}
	e.rate = rate
	if e.playing {
		e.scheduleLocked()
	}
	return nil
}

func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// Stop unloads the source. Rate is kept.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.playing = false
	e.loaded = false
	e.duration = 0
	e.offset = 0
	e.onEnd = nil
}
