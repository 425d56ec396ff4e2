package vault

import (
	"bufio"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/cryptox"
	"github.com/dmitrijs2005/audiokeeper/internal/filex"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"golang.org/x/time/rate"
)

type Request struct {
	ItemID    string
	RemoteURL string
	Title     string
	OwnerID   string
}

// Validate checks that the request names an item, a url and an owner.
func (r Request) Validate() error {
	if r.ItemID == "" || r.RemoteURL == "" || r.OwnerID == "" {
		return fmt.Errorf("download request needs item, url and owner: %w", common.ErrInvalidArgument)
	}
	return nil
}

// Download stores the item for the owner and returns its local handle.
//
// A concurrent call for the same item, owner and URL attaches to the running
// download: onProgress first receives the latest event and then every
// following one. A call that differs in owner or URL, or that arrives after
// the running download was cancelled, waits for it to finish and then
// performs its own.
//
// ctx bounds the wait of this caller; the transfer itself is cancelled with
// Cancel, by Close, or when every waiting caller has given up.
func (v *Vault) Download(ctx context.Context, req Request, onProgress ProgressFunc) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	for {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return "", ErrClosed
		}

		if op, ok := v.inflight[req.ItemID]; ok {
			if op.ownerID == req.OwnerID && op.remoteURL == req.RemoteURL {
				if sub, joined := op.join(onProgress); joined {
					v.mu.Unlock()
					v.log.Debug(ctx, "attached to running download", "item_id", req.ItemID)
					return op.wait(ctx, sub)
				}
			}
			v.mu.Unlock()
			select {
			case <-op.done:
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		opCtx, cancel := context.WithCancel(v.rootCtx)
		op := newOperation(req, cancel)
		v.inflight[req.ItemID] = op
		sub, _ := op.join(onProgress)
		v.wg.Add(1)
		v.mu.Unlock()

		go v.run(opCtx, op, req)
		return op.wait(ctx, sub)
	}
}

// Cancel stops the running download of itemID. The download ends Failed with
// common.ErrDownloadCancelled.
func (v *Vault) Cancel(itemID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	op, ok := v.inflight[itemID]
	if !ok {
		return false
	}
	op.abandon()
	return true
}

// InFlight reports whether itemID is being downloaded.
func (v *Vault) InFlight(itemID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, ok := v.inflight[itemID]
	return ok
}

func (v *Vault) cancelAndWait(ctx context.Context, itemID string) error {
	v.mu.Lock()
	op, ok := v.inflight[itemID]
	if ok {
		op.abandon()
	}
	v.mu.Unlock()

	if !ok {
		return nil
	}
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Vault) run(ctx context.Context, op *operation, req Request) {
	defer v.wg.Done()
	defer op.cancel()

	v.metrics.DownloadStarted()
	handle, size, cached, err := v.download(ctx, op, req)

	result := "downloaded"
	switch {
	case err != nil && errors.Is(err, common.ErrDownloadCancelled):
		result = "cancelled"
	case err != nil:
		result = "failed"
	case cached:
		result = "cached"
		size = 0
	}
	v.metrics.DownloadFinished(result, size)

	op.handle, op.err = handle, err

	v.mu.Lock()
	if v.inflight[req.ItemID] == op {
		delete(v.inflight, req.ItemID)
	}
	v.mu.Unlock()
	close(op.done)
}

// download runs the whole pipeline and always emits the final event.
func (v *Vault) download(ctx context.Context, op *operation, req Request) (handle string, size int64, cached bool, err error) {
	var seq uint64
	fail := func(err error) (string, int64, bool, error) {
		if errors.Is(err, context.Canceled) {
			err = fmt.Errorf("download %s: %w", req.ItemID, common.ErrDownloadCancelled)
		}
		if seq != 0 {
			v.settleFailed(context.WithoutCancel(ctx), req.ItemID, seq)
		}
		v.log.Warn(ctx, "download failed", "item_id", req.ItemID, "error", err)
		op.emit(models.Progress{ItemID: req.ItemID, BytesTotal: -1, Status: models.StatusFailed, Err: err})
		return "", 0, false, err
	}

	changed, err := v.registry.RegisterIfAbsent(ctx, req.ItemID, req.RemoteURL, req.Title)
	if err != nil {
		return fail(err)
	}
	if changed {
		for _, h := range v.liveHandles(req.ItemID) {
			h.Release()
		}
		if err := v.purge(ctx, req.ItemID); err != nil {
			return fail(err)
		}
	}

	key := cryptox.DeriveItemKey(req.OwnerID, req.ItemID, v.appSalt)
	defer common.WipeByteArray(key)
	keyFP := cryptox.KeyFingerprint(key)

	if h, n, ok := v.reuse(ctx, req, keyFP); ok {
		op.emit(models.Progress{ItemID: req.ItemID, BytesWritten: n, BytesTotal: n, Status: models.StatusDownloaded, Handle: h})
		return h, n, true, nil
	}

	if seq, err = v.registry.Begin(ctx, req.ItemID); err != nil {
		return fail(err)
	}
	v.registry.MarkDownloading(ctx, req.ItemID, seq, 0)
	op.emit(models.Progress{ItemID: req.ItemID, BytesTotal: -1, Status: models.StatusDownloading})

	plain, err := os.CreateTemp(v.scratchDir, "dl-*.part")
	if err != nil {
		return fail(fmt.Errorf("scratch file: %w", err))
	}
	defer func() {
		plain.Close()
		_ = filex.RemoveIfExists(plain.Name())
	}()

	digest := sha256.New()
	limiter := rate.NewLimiter(rate.Every(v.progressEvery), 1)
	onBytes := func(written, total int64) {
		// the final event reports completion
		if total >= 0 && written >= total {
			return
		}
		if !limiter.Allow() {
			return
		}
		p := models.Progress{ItemID: req.ItemID, BytesWritten: written, BytesTotal: total, Status: models.StatusDownloading}
		v.registry.MarkDownloading(ctx, req.ItemID, seq, p.Fraction())
		op.emit(p)
	}

	n, err := v.fetcher.Fetch(ctx, req.RemoteURL, io.MultiWriter(plain, digest), onBytes)
	if err != nil {
		return fail(err)
	}
	if n == 0 {
		return fail(fmt.Errorf("empty content: %w", common.ErrInvalidArgument))
	}

	name := cryptox.ContentName(key, digest.Sum(nil))
	path := filepath.Join(v.dir, name+artifactSuffix)
	if err := v.seal(plain, path, key); err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		_ = filex.RemoveIfExists(path)
		return fail(err)
	}

	prev, err := v.entries.Get(ctx, req.ItemID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		_ = filex.RemoveIfExists(path)
		return fail(err)
	}

	entry := &models.VaultEntry{
		ItemID:           req.ItemID,
		EncryptedPath:    path,
		KeyFingerprint:   keyFP,
		OwnerFingerprint: v.guard.Fingerprint(req.OwnerID),
		FileSizeBytes:    n,
		CreatedAt:        v.now(),
		AppVersion:       v.appVersion,
	}
	if err := v.entries.Upsert(ctx, entry); err != nil {
		if prev == nil || prev.EncryptedPath != path {
			_ = filex.RemoveIfExists(path)
		}
		return fail(err)
	}
	if prev != nil && prev.EncryptedPath != path {
		if err := filex.RemoveIfExists(prev.EncryptedPath); err != nil {
			v.log.Warn(ctx, "failed to remove replaced artifact", "item_id", req.ItemID, "error", err)
		}
	}

	if !v.registry.MarkDownloaded(ctx, req.ItemID, seq, name, n) {
		v.log.Warn(ctx, "stale completion ignored by store", "item_id", req.ItemID)
	}

	v.log.Info(ctx, "download stored", "item_id", req.ItemID, "bytes", n)
	op.emit(models.Progress{ItemID: req.ItemID, BytesWritten: n, BytesTotal: n, Status: models.StatusDownloaded, Handle: name})
	return name, n, false, nil
}

// settleFailed ends a failed attempt in the store. An artifact stored by an
// earlier download is still on disk and playable by its owner, so the record
// goes back to Downloaded for it instead of Failed.
func (v *Vault) settleFailed(ctx context.Context, itemID string, seq uint64) {
	prev, err := v.entries.Get(ctx, itemID)
	if err != nil || !filex.Exists(prev.EncryptedPath) {
		v.registry.MarkFailed(ctx, itemID, seq)
		return
	}
	v.registry.MarkDownloaded(ctx, itemID, seq, handleOf(prev.EncryptedPath), prev.FileSizeBytes)
	v.log.Info(ctx, "previous artifact kept after failed download", "item_id", itemID)
}

// reuse returns the handle of a stored artifact that the owner may already
// use, marking the record Downloaded if it is not.
func (v *Vault) reuse(ctx context.Context, req Request, keyFP string) (string, int64, bool) {
	e, err := v.entries.Get(ctx, req.ItemID)
	if err != nil {
		return "", 0, false
	}
	if v.guard.Check(e, req.OwnerID, v.appVersion) != nil {
		return "", 0, false
	}
	if !cryptox.EqualFingerprints(keyFP, e.KeyFingerprint) || !filex.Exists(e.EncryptedPath) {
		return "", 0, false
	}

	handle := handleOf(e.EncryptedPath)
	if rec, ok := v.registry.Get(req.ItemID); !ok || rec.Status != models.StatusDownloaded || rec.LocalHandle != handle {
		seq, err := v.registry.Begin(ctx, req.ItemID)
		if err != nil {
			return "", 0, false
		}
		v.registry.MarkDownloaded(ctx, req.ItemID, seq, handle, e.FileSizeBytes)
	}
	v.log.Debug(ctx, "download already stored", "item_id", req.ItemID)
	return handle, e.FileSizeBytes, true
}

// seal encrypts the scratch plaintext into a temporary file and moves it to
// path once complete, so path never holds a partial artifact.
func (v *Vault) seal(plain *os.File, path string, key []byte) (err error) {
	if _, err := plain.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind scratch: %w", err)
	}

	tmp, err := os.CreateTemp(v.scratchDir, "enc-*.part")
	if err != nil {
		return fmt.Errorf("artifact temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			_ = filex.RemoveIfExists(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err := cryptox.EncryptChunked(w, bufio.NewReader(plain), key, v.chunkSize); err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move artifact: %w", err)
	}
	return nil
}
