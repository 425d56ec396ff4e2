package services

import (
	"context"

	"github.com/dmitrijs2005/audiokeeper/internal/models"
)

// RequestPlayback starts a playback session for itemID on behalf of
// ownerID, replacing the current one.
func (l *Library) RequestPlayback(ctx context.Context, itemID, ownerID string) (models.Session, error) {
	return l.player.Request(ctx, itemID, ownerID)
}

func (l *Library) Play(ctx context.Context) (models.Session, error) {
	return l.player.Play(ctx)
}

func (l *Library) Pause() (models.Session, error) {
	return l.player.Pause()
}

func (l *Library) Resume() (models.Session, error) {
	return l.player.Resume()
}

func (l *Library) Stop() models.Session {
	return l.player.Stop()
}

func (l *Library) Seek(sec float64) (models.Session, error) {
	return l.player.Seek(sec)
}

func (l *Library) SetRate(rate float64) (models.Session, error) {
	return l.player.SetRate(rate)
}

func (l *Library) Retry(ctx context.Context) (models.Session, error) {
	return l.player.Retry(ctx)
}

func (l *Library) Session() models.Session {
	return l.player.Snapshot()
}

// SubscribeSession delivers the session after every change until the
// returned func is called.
func (l *Library) SubscribeSession() (<-chan models.Session, func()) {
	return l.player.Subscribe()
}
