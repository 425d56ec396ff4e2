package services

import (
	"context"

	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/dmitrijs2005/audiokeeper/internal/vault"
)

// RequestDownload starts storing itemID for ownerID and returns its progress
// stream. Intermediate events are dropped when the reader falls behind; the
// terminal event (Downloaded or Failed) is always delivered, after which the
// channel is closed.
//
// ctx bounds only this caller's interest: when it is done the stream ends
// with a Failed event, and the download itself stops once nobody else waits
// for it.
func (l *Library) RequestDownload(ctx context.Context, itemID, remoteURL, title, ownerID string) (<-chan models.Progress, error) {
	req := vault.Request{ItemID: itemID, RemoteURL: remoteURL, Title: title, OwnerID: ownerID}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ch := make(chan models.Progress, progressBuffer)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(ch)

		terminal := false
		send := func(p models.Progress) {
			if !p.Status.Terminal() {
				select {
				case ch <- p:
				default:
				}
				return
			}
			terminal = true
			select {
			case ch <- p:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- p
			}
		}

		handle, err := l.vault.Download(ctx, req, send)
		if terminal {
			return
		}
		if err != nil {
			send(models.Progress{ItemID: itemID, BytesTotal: -1, Status: models.StatusFailed, Err: err})
			return
		}
		send(models.Progress{ItemID: itemID, BytesTotal: -1, Status: models.StatusDownloaded, Handle: handle})
	}()

	return ch, nil
}

// CancelDownload stops the running download of itemID.
func (l *Library) CancelDownload(itemID string) bool {
	return l.vault.Cancel(itemID)
}

func (l *Library) Status(itemID string) models.Status {
	return l.vault.Status(itemID)
}

// Records returns every known item, downloaded or not.
func (l *Library) Records() []models.AudioRecord {
	return l.store.List()
}

func (l *Library) ListDownloaded() []models.AudioRecord {
	return l.store.ListDownloaded()
}

func (l *Library) TotalDownloadedBytes() int64 {
	return l.store.TotalDownloadedBytes()
}

// RemoveDownload deletes the stored copy of itemID. The item stays known
// with status None.
func (l *Library) RemoveDownload(ctx context.Context, itemID string) error {
	return l.vault.Remove(ctx, itemID)
}

func (l *Library) RemoveAllDownloads(ctx context.Context) error {
	return l.vault.RemoveAll(ctx)
}

// PurgeExpired removes stored copies older than the maximum age.
func (l *Library) PurgeExpired(ctx context.Context) (int, error) {
	return l.vault.PurgeExpired(ctx)
}
