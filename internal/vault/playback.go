package vault

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/cryptox"
	"github.com/dmitrijs2005/audiokeeper/internal/filex"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
)

// PlaybackHandle is a decrypted copy of an item. The file is deleted when
// Release is called or when the playback window elapses, whichever is first.
type PlaybackHandle struct {
	ItemID    string
	Path      string
	Size      int64
	ExpiresAt time.Time

	mu      sync.Mutex
	timer   *time.Timer
	once    sync.Once
	release func(*PlaybackHandle, error)
}

// Release deletes the decrypted file. Safe to call more than once.
func (h *PlaybackHandle) Release() {
	h.once.Do(func() {
		h.mu.Lock()
		if h.timer != nil {
			h.timer.Stop()
		}
		h.mu.Unlock()
		err := filex.RemoveIfExists(h.Path)
		if h.release != nil {
			h.release(h, err)
		}
	})
}

func (v *Vault) track(h *PlaybackHandle) {
	v.mu.Lock()
	v.handles[h] = struct{}{}
	v.mu.Unlock()
}

// released drops h from the live set. A copy that could not be deleted is
// left to the scratch sweep of the next Open.
func (v *Vault) released(h *PlaybackHandle, err error) {
	if err != nil {
		v.metrics.CleanupFailure()
		v.log.Error(context.Background(), "decrypted copy not deleted", "item_id", h.ItemID, "path", h.Path, "error", err)
	}
	v.mu.Lock()
	delete(v.handles, h)
	v.mu.Unlock()
}

// liveHandles returns the unreleased handles of itemID, or all of them when
// itemID is empty.
func (v *Vault) liveHandles(itemID string) []*PlaybackHandle {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []*PlaybackHandle
	for h := range v.handles {
		if itemID == "" || h.ItemID == itemID {
			out = append(out, h)
		}
	}
	return out
}

// ObtainPlaybackHandle decrypts the stored item for ownerID.
//
// It returns common.ErrNotFound when nothing is stored and
// common.ErrAccessDenied, without decrypting anything, when the access guard
// rejects the entry. An artifact that fails authentication is purged, its
// record reset to None, and common.ErrCryptoIntegrity returned.
func (v *Vault) ObtainPlaybackHandle(ctx context.Context, itemID, ownerID string) (*PlaybackHandle, error) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	e, err := v.entries.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("playback %s: %w", itemID, err)
	}

	if err := v.guard.Check(e, ownerID, v.appVersion); err != nil {
		v.metrics.AccessDenied()
		v.log.Info(ctx, "playback denied", "item_id", itemID, "reason", err)
		return nil, fmt.Errorf("playback %s: %w", itemID, err)
	}

	if !filex.Exists(e.EncryptedPath) {
		v.log.Warn(ctx, "artifact missing, entry dropped", "item_id", itemID)
		_ = v.entries.Delete(ctx, itemID)
		v.registry.Reset(ctx, itemID)
		return nil, fmt.Errorf("playback %s: artifact missing: %w", itemID, common.ErrNotFound)
	}

	key := cryptox.DeriveItemKey(ownerID, itemID, v.appSalt)
	defer common.WipeByteArray(key)

	if !cryptox.EqualFingerprints(cryptox.KeyFingerprint(key), e.KeyFingerprint) {
		return nil, v.integrityFailure(ctx, itemID, fmt.Errorf("%w: key fingerprint mismatch", common.ErrCryptoIntegrity))
	}

	path, n, err := v.decrypt(e.EncryptedPath, key)
	if err != nil {
		if errors.Is(err, common.ErrCryptoIntegrity) {
			return nil, v.integrityFailure(ctx, itemID, err)
		}
		return nil, fmt.Errorf("playback %s: %w", itemID, err)
	}

	h := &PlaybackHandle{
		ItemID:    itemID,
		Path:      path,
		Size:      n,
		ExpiresAt: v.now().Add(v.window),
		release:   v.released,
	}
	v.track(h)
	h.mu.Lock()
	h.timer = time.AfterFunc(v.window, h.Release)
	h.mu.Unlock()

	v.log.Debug(ctx, "playback copy created", "item_id", itemID, "window", v.window)
	return h, nil
}

func (v *Vault) decrypt(src string, key []byte) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(v.scratchDir, playbackPrefix+"*")
	if err != nil {
		return "", 0, fmt.Errorf("playback file: %w", err)
	}

	w := bufio.NewWriter(out)
	n, err := cryptox.Decrypt(w, bufio.NewReader(in), key)
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = filex.RemoveIfExists(out.Name())
		return "", 0, err
	}
	return out.Name(), n, nil
}

// integrityFailure purges an unusable artifact so the item is downloaded
// again from scratch.
func (v *Vault) integrityFailure(ctx context.Context, itemID string, cause error) error {
	v.metrics.IntegrityFailure()
	v.log.Error(ctx, "artifact failed authentication, purged", "item_id", itemID, "error", cause)

	if err := v.purge(ctx, itemID); err != nil {
		v.log.Warn(ctx, "purge after integrity failure", "item_id", itemID, "error", err)
	}
	v.registry.Reset(ctx, itemID)
	return fmt.Errorf("playback %s: %w", itemID, cause)
}

// Status is a convenience for callers that only hold the vault.
func (v *Vault) Status(itemID string) models.Status {
	rec, ok := v.registry.Get(itemID)
	if !ok {
		return models.StatusNone
	}
	return rec.Status
}
