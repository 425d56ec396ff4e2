// Package vault downloads audio items, stores them encrypted at rest in a
// private directory and hands out short-lived decrypted copies for playback.
//
// Keys are derived from the owner id, the item id and the application salt;
// they are never written anywhere. Each stored artifact has one VaultEntry
// binding it to an owner fingerprint, the app version and a creation time,
// and every decryption is preceded by an access guard check.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/cryptox"
	"github.com/dmitrijs2005/audiokeeper/internal/fetch"
	"github.com/dmitrijs2005/audiokeeper/internal/filex"
	"github.com/dmitrijs2005/audiokeeper/internal/guard"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/metrics"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/dmitrijs2005/audiokeeper/internal/repositories/vaultentries"
)

const (
	DefaultPlaybackWindow = 30 * time.Minute
	DefaultProgressEvery  = 100 * time.Millisecond

	scratchDirName = "scratch"
	artifactSuffix = ".bin"
	playbackPrefix = "play-"
)

var ErrClosed = errors.New("vault closed")

// Registry is the metadata store as seen by the vault.
type Registry interface {
	Get(id string) (models.AudioRecord, bool)
	RegisterIfAbsent(ctx context.Context, id, remoteURL, title string) (bool, error)
	Begin(ctx context.Context, id string) (uint64, error)
	MarkDownloading(ctx context.Context, id string, seq uint64, progress float64) bool
	MarkDownloaded(ctx context.Context, id string, seq uint64, handle string, size int64) bool
	MarkFailed(ctx context.Context, id string, seq uint64) bool
	Reset(ctx context.Context, id string)
	ListDownloaded() []models.AudioRecord
}

type Options struct {
	Dir        string
	Entries    vaultentries.Repository
	Registry   Registry
	Guard      *guard.Guard
	Fetcher    fetch.Fetcher
	AppSalt    []byte
	AppVersion string

	// PlaybackWindow is the lifetime of a decrypted playback copy.
	PlaybackWindow time.Duration
	// ProgressEvery is the minimum spacing of intermediate progress events.
	ProgressEvery time.Duration
	ChunkSize     int

	Metrics *metrics.Metrics
	Logger  logging.Logger
	Now     func() time.Time
}

type Vault struct {
	dir        string
	scratchDir string

	entries    vaultentries.Repository
	registry   Registry
	guard      *guard.Guard
	fetcher    fetch.Fetcher
	appSalt    []byte
	appVersion string

	window        time.Duration
	progressEvery time.Duration
	chunkSize     int

	metrics *metrics.Metrics
	log     logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight map[string]*operation
	handles  map[*PlaybackHandle]struct{}
	wg       sync.WaitGroup
	rootCtx  context.Context
	stop     context.CancelFunc
}

// New prepares the vault directory and removes scratch files left behind by
// a previous process.
func New(ctx context.Context, opts Options) (*Vault, error) {
	if opts.Entries == nil || opts.Registry == nil || opts.Guard == nil || opts.Fetcher == nil {
		return nil, fmt.Errorf("vault: missing dependency: %w", common.ErrInvalidArgument)
	}
	if len(opts.AppSalt) == 0 {
		return nil, fmt.Errorf("vault: empty app salt: %w", common.ErrInvalidArgument)
	}

	v := &Vault{
		entries:       opts.Entries,
		registry:      opts.Registry,
		guard:         opts.Guard,
		fetcher:       opts.Fetcher,
		appSalt:       opts.AppSalt,
		appVersion:    opts.AppVersion,
		window:        opts.PlaybackWindow,
		progressEvery: opts.ProgressEvery,
		chunkSize:     opts.ChunkSize,
		metrics:       opts.Metrics,
		log:           opts.Logger,
		now:           opts.Now,
		inflight:      make(map[string]*operation),
		handles:       make(map[*PlaybackHandle]struct{}),
	}
	if v.window <= 0 {
		v.window = DefaultPlaybackWindow
	}
	if v.progressEvery <= 0 {
		v.progressEvery = DefaultProgressEvery
	}
	if v.chunkSize <= 0 {
		v.chunkSize = cryptox.DefaultChunkSize
	}
	if v.log == nil {
		v.log = logging.Nop()
	}
	if v.now == nil {
		v.now = time.Now
	}

	var err error
	if v.dir, err = filex.EnsurePrivateDir(opts.Dir); err != nil {
		return nil, fmt.Errorf("vault dir: %w", err)
	}
	if v.scratchDir, err = filex.EnsurePrivateDir(filepath.Join(v.dir, scratchDirName)); err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	if n, err := v.sweepScratch(); err != nil {
		return nil, err
	} else if n > 0 {
		v.log.Info(ctx, "removed stale scratch files", "count", n)
	}

	v.rootCtx, v.stop = context.WithCancel(context.WithoutCancel(ctx))
	return v, nil
}

func (v *Vault) sweepScratch() (int, error) {
	des, err := os.ReadDir(v.scratchDir)
	if err != nil {
		return 0, fmt.Errorf("read scratch dir: %w", err)
	}
	n := 0
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		if err := filex.RemoveIfExists(filepath.Join(v.scratchDir, de.Name())); err != nil {
			return n, fmt.Errorf("sweep scratch: %w", err)
		}
		n++
	}
	return n, nil
}

// Dir is the absolute vault directory.
func (v *Vault) Dir() string { return v.dir }

// Close cancels running downloads, waits for them and deletes every live
// decrypted playback copy.
func (v *Vault) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.stop()
	v.mu.Unlock()

	v.wg.Wait()

	for _, h := range v.liveHandles("") {
		h.Release()
	}
}

func handleOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), artifactSuffix)
}

// Entry returns the vault entry of itemID without its storage path.
func (v *Vault) Entry(ctx context.Context, itemID string) (models.VaultEntry, error) {
	e, err := v.entries.Get(ctx, itemID)
	if err != nil {
		return models.VaultEntry{}, err
	}
	out := *e
	out.EncryptedPath = ""
	return out, nil
}

// purge deletes the artifact and the entry of itemID. Missing pieces are
// not an error.
func (v *Vault) purge(ctx context.Context, itemID string) error {
	e, err := v.entries.Get(ctx, itemID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := filex.RemoveIfExists(e.EncryptedPath); err != nil {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return v.entries.Delete(ctx, itemID)
}

// Remove cancels a running download of itemID, deletes its artifact, entry
// and live playback copies, and resets its record. Idempotent.
func (v *Vault) Remove(ctx context.Context, itemID string) error {
	if err := v.cancelAndWait(ctx, itemID); err != nil {
		return err
	}
	for _, h := range v.liveHandles(itemID) {
		h.Release()
	}
	if err := v.purge(ctx, itemID); err != nil {
		return fmt.Errorf("remove %s: %w", itemID, err)
	}
	v.registry.Reset(ctx, itemID)
	v.log.Info(ctx, "download removed", "item_id", itemID)
	return nil
}

// RemoveAll removes every stored artifact and resets every downloaded record.
func (v *Vault) RemoveAll(ctx context.Context) error {
	list, err := v.entries.List(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(list))
	for _, e := range list {
		seen[e.ItemID] = true
		if err := v.Remove(ctx, e.ItemID); err != nil {
			return err
		}
	}
	for _, r := range v.registry.ListDownloaded() {
		if !seen[r.ID] {
			if err := v.Remove(ctx, r.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// PurgeExpired removes entries older than the guard's maximum age and
// returns how many were removed.
func (v *Vault) PurgeExpired(ctx context.Context) (int, error) {
	list, err := v.entries.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range list {
		if !v.guard.Expired(e) {
			continue
		}
		if err := v.Remove(ctx, e.ItemID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		v.log.Info(ctx, "expired downloads purged", "count", n)
	}
	return n, nil
}
