package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/backend"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/google/uuid"
)

// Request starts a new session for itemID, ending the previous one.
func (p *Player) Request(ctx context.Context, itemID, ownerID string) (models.Session, error) {
	if itemID == "" {
		return p.Snapshot(), fmt.Errorf("empty item id: %w", common.ErrInvalidArgument)
	}

	p.cmd.Lock()
	defer p.cmd.Unlock()

	p.teardown()

	p.mu.Lock()
	rate := p.rate
	p.mu.Unlock()

	s := &session{
		Session: models.Session{
			ID:           uuid.NewString(),
			ItemID:       itemID,
			State:        models.StateIdle,
			PlaybackRate: rate,
		},
		ownerID: ownerID,
	}
	p.setCurrent(s)
	p.log.Info(ctx, "playback requested", "session_id", s.ID, "item_id", itemID)

	err := p.resolve(ctx, s)
	return p.Snapshot(), err
}

// resolve finds a source for s: the local copy when there is one, otherwise
// the backend.
func (p *Player) resolve(ctx context.Context, s *session) error {
	h, err := p.sources.ObtainPlaybackHandle(ctx, s.ItemID, s.ownerID)
	switch {
	case err == nil:
		p.update(s, func(s *session) {
			s.handle = h
			s.SourceKind = models.SourceLocal
			s.State = models.StateReady
			s.LastError = ""
		})
		return nil
	case errors.Is(err, common.ErrAccessDenied), errors.Is(err, common.ErrCryptoIntegrity):
		p.fail(s, err)
		return err
	case ctx.Err() != nil:
		p.fail(s, ctx.Err())
		return ctx.Err()
	case !errors.Is(err, common.ErrNotFound):
		p.log.Warn(ctx, "local copy unusable, trying remote", "item_id", s.ItemID, "error", err)
	}

	return p.resolveRemote(ctx, s)
}

func (p *Player) resolveRemote(ctx context.Context, s *session) error {
	src, err := p.sources.ResolveAudio(ctx, s.ItemID)
	if err != nil {
		if u := p.catalogURL(s.ItemID); u != "" {
			p.log.Warn(ctx, "backend unavailable, using known url", "item_id", s.ItemID, "error", err)
			p.ready(s, u)
			return nil
		}
		p.fail(s, err)
		return err
	}

	switch src.Status {
	case backend.AudioReady:
		p.ready(s, src.URL)
	case backend.AudioGenerating:
		p.update(s, func(s *session) {
			s.State = models.StateGenerating
			s.LastError = ""
		})
		p.startWatch(s)
	default:
		err := generationFailed(src)
		p.fail(s, err)
		return err
	}
	return nil
}

func generationFailed(src backend.AudioSource) error {
	if src.Error != "" {
		return fmt.Errorf("audio generation failed: %s", src.Error)
	}
	return errors.New("audio generation failed")
}

func (p *Player) ready(s *session, url string) {
	p.update(s, func(s *session) {
		s.remoteURL = url
		s.SourceKind = models.SourceRemote
		s.State = models.StateReady
		s.LastError = ""
		s.loaded = false
	})
}

// catalogURL returns the streamable url an item was downloaded from, if any.
func (p *Player) catalogURL(itemID string) string {
	if p.catalog == nil {
		return ""
	}
	rec, ok := p.catalog.Get(itemID)
	if !ok {
		return ""
	}
	if strings.HasPrefix(rec.RemoteURL, "http://") || strings.HasPrefix(rec.RemoteURL, "https://") {
		return rec.RemoteURL
	}
	return ""
}

// fallbackURL is the remote url used when the local copy cannot be played.
func (p *Player) fallbackURL(ctx context.Context, s *session) string {
	if s.remoteURL != "" {
		return s.remoteURL
	}
	if src, err := p.sources.ResolveAudio(ctx, s.ItemID); err == nil && src.Status == backend.AudioReady {
		return src.URL
	}
	return p.catalogURL(s.ItemID)
}

func (p *Player) startWatch(s *session) {
	ctx, cancel := context.WithCancel(p.ctx)
	s.stopWatch = cancel

	p.wg.Add(1)
	go p.watch(ctx, s.ItemID)
}

// watch polls the backend until the audio of itemID is ready or failed.
func (p *Player) watch(ctx context.Context, itemID string) {
	defer p.wg.Done()

	t := time.NewTicker(p.poll)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		src, err := p.sources.ResolveAudio(ctx, itemID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Debug(ctx, "generation poll failed", "item_id", itemID, "error", err)
			continue
		}

		switch src.Status {
		case backend.AudioReady:
			p.SourceReady(itemID, src.URL)
			return
		case backend.AudioFailed:
			p.SourceFailed(itemID, generationFailed(src))
			return
		}
	}
}

// SourceReady reports that the audio of itemID can be streamed from url.
func (p *Player) SourceReady(itemID, url string) models.Session {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || s.ItemID != itemID || s.State != models.StateGenerating {
		return p.Snapshot()
	}
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	p.ready(s, url)
	return p.Snapshot()
}

// SourceFailed reports that generating the audio of itemID failed.
func (p *Player) SourceFailed(itemID string, err error) models.Session {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || s.ItemID != itemID || s.State != models.StateGenerating {
		return p.Snapshot()
	}
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	if err == nil {
		err = errors.New("audio generation failed")
	}
	p.fail(s, err)
	return p.Snapshot()
}

func (p *Player) start(ctx context.Context, s *session) error {
	if !s.loaded {
		source := s.remoteURL
		if s.SourceKind == models.SourceLocal {
			source = s.handle.Path
		}
		d, err := p.engine.Load(ctx, source)
		if err != nil {
			return err
		}
		p.update(s, func(s *session) {
			s.loaded = true
			s.DurationSeconds = d.Seconds()
		})
		if err := p.engine.SetRate(s.PlaybackRate); err != nil {
			return err
		}
	}
	return p.engine.Play(p.onEnd(s.ID))
}

// Play starts a Ready session. When the local copy cannot be played and a
// remote url is known, the session switches to the remote source once.
func (p *Player) Play(ctx context.Context) (models.Session, error) {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || s.State != models.StateReady {
		return p.Snapshot(), nil
	}

	err := p.start(ctx, s)
	if err != nil && s.SourceKind == models.SourceLocal {
		if u := p.fallbackURL(ctx, s); u != "" {
			p.log.Warn(ctx, "local playback failed, streaming instead", "item_id", s.ItemID, "error", err)
			p.engine.Stop()
			if s.handle != nil {
				s.handle.Release()
				s.handle = nil
			}
			p.update(s, func(s *session) {
				s.remoteURL = u
				s.SourceKind = models.SourceRemote
				s.loaded = false
			})
			err = p.start(ctx, s)
		}
	}
	if err != nil {
		p.fail(s, err)
		return p.Snapshot(), err
	}

	p.update(s, func(s *session) { s.State = models.StatePlaying })
	if !s.notified {
		s.notified = true
		p.notify(s.ItemID)
	}
	return p.Snapshot(), nil
}

func (p *Player) notify(itemID string) {
	if p.notifier == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(p.ctx, p.notifyTO)
		defer cancel()
		if err := p.notifier.PlayStarted(ctx, itemID); err != nil {
			p.log.Warn(ctx, "play count not recorded", "item_id", itemID, "error", err)
		}
	}()
}

// onEnd returns the natural-end callback for the session id.
func (p *Player) onEnd(id string) func() {
	return func() {
		p.cmd.Lock()
		defer p.cmd.Unlock()

		s := p.cur
		if s == nil || s.ID != id || s.State != models.StatePlaying {
			return
		}
		p.update(s, func(s *session) {
			s.State = models.StateReady
			s.PositionSeconds = 0
		})
	}
}

func (p *Player) Pause() (models.Session, error) {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || s.State != models.StatePlaying {
		return p.Snapshot(), nil
	}
	if err := p.engine.Pause(); err != nil {
		p.fail(s, err)
		return p.Snapshot(), err
	}
	pos := p.engine.Position().Seconds()
	p.update(s, func(s *session) {
		s.State = models.StatePaused
		s.PositionSeconds = pos
	})
	return p.Snapshot(), nil
}

func (p *Player) Resume() (models.Session, error) {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || s.State != models.StatePaused {
		return p.Snapshot(), nil
	}
	if err := p.engine.Play(p.onEnd(s.ID)); err != nil {
		p.fail(s, err)
		return p.Snapshot(), err
	}
	p.update(s, func(s *session) { s.State = models.StatePlaying })
	return p.Snapshot(), nil
}

// Stop ends the session. The decrypted copy is released.
func (p *Player) Stop() models.Session {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	if p.cur == nil {
		return p.Snapshot()
	}
	p.log.Info(p.ctx, "playback stopped", "session_id", p.cur.ID, "item_id", p.cur.ItemID)
	p.teardown()
	p.setCurrent(nil)
	return p.Snapshot()
}

// Seek moves the playing or paused session to sec, clamped to the track.
func (p *Player) Seek(sec float64) (models.Session, error) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return p.Snapshot(), fmt.Errorf("seek to %v: %w", sec, common.ErrInvalidArgument)
	}

	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || (s.State != models.StatePlaying && s.State != models.StatePaused) {
		return p.Snapshot(), nil
	}
	sec = min(max(sec, 0), s.DurationSeconds)
	if err := p.engine.Seek(time.Duration(sec * float64(time.Second))); err != nil {
		p.fail(s, err)
		return p.Snapshot(), err
	}
	p.update(s, func(s *session) { s.PositionSeconds = sec })
	return p.Snapshot(), nil
}

// SetRate changes the playback rate of a playing or paused session. The rate
// carries over to later sessions.
func (p *Player) SetRate(rate float64) (models.Session, error) {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return p.Snapshot(), fmt.Errorf("rate %v: %w", rate, common.ErrInvalidArgument)
	}

	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || (s.State != models.StatePlaying && s.State != models.StatePaused) {
		return p.Snapshot(), nil
	}
	if err := p.engine.SetRate(rate); err != nil {
		p.fail(s, err)
		return p.Snapshot(), err
	}

	p.mu.Lock()
	p.rate = rate
	p.mu.Unlock()
	p.update(s, func(s *session) { s.PlaybackRate = rate })
	return p.Snapshot(), nil
}

// Retry recovers a session in Error: Ready when a source is already known,
// otherwise the source is resolved again.
func (p *Player) Retry(ctx context.Context) (models.Session, error) {
	p.cmd.Lock()
	defer p.cmd.Unlock()

	s := p.cur
	if s == nil || s.State != models.StateError {
		return p.Snapshot(), nil
	}

	if s.handle != nil || s.remoteURL != "" {
		p.update(s, func(s *session) {
			s.State = models.StateReady
			s.LastError = ""
			s.loaded = false
		})
		return p.Snapshot(), nil
	}

	err := p.resolve(ctx, s)
	return p.Snapshot(), err
}
