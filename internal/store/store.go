// Package store implements the metadata store: the registry of every audio
// item referenced locally and its availability.
//
// The in-memory registry is authoritative for the lifetime of the process.
// Every status transition is written through a Persister; a failed write is
// logged and otherwise ignored, so after a restart an item may be reported
// as not downloaded even though it was.
//
// Transitions for one item are ordered by operation sequence numbers. A
// download calls Begin to obtain a number and passes it to every Mark call;
// calls carrying a number other than the item's current one, or arriving
// after the operation finished, are discarded.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
)

// DefaultProgressFlushInterval bounds how often progress-only updates of a
// downloading item are written to the persister.
const DefaultProgressFlushInterval = 2 * time.Second

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithProgressFlushInterval(d time.Duration) Option {
	return func(s *Store) { s.flushEvery = d }
}

type slot struct {
	rec       models.AudioRecord
	done      bool // the operation rec.Seq has reached a terminal status
	dirty     bool // in-memory changes not yet persisted
	flushedAt time.Time
}

type Store struct {
	mu         sync.Mutex
	items      map[string]*slot
	persister  Persister
	log        logging.Logger
	now        func() time.Time
	flushEvery time.Duration
}

// Open loads the registry from p. Records left Downloading by a previous
// process are moved to Failed.
func Open(ctx context.Context, p Persister, log logging.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		items:      make(map[string]*slot),
		persister:  p,
		log:        log,
		now:        time.Now,
		flushEvery: DefaultProgressFlushInterval,
	}
	for _, o := range opts {
		o(s)
	}

	recs, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	for _, r := range recs {
		sl := &slot{rec: *r, done: true}
		s.items[r.ID] = sl
		if r.Status == models.StatusDownloading {
			sl.rec.Status = models.StatusFailed
			sl.rec.Progress = 0
			sl.rec.UpdatedAt = s.now()
			s.log.Info(ctx, "interrupted download marked failed", "item_id", r.ID)
			s.persist(ctx, sl)
		}
	}

	return s, nil
}

func (s *Store) persist(ctx context.Context, sl *slot) {
	rec := sl.rec
	if err := s.persister.Save(ctx, &rec); err != nil {
		s.log.Warn(ctx, "failed to persist record", "item_id", rec.ID, "status", rec.Status, "error", err)
		sl.dirty = true
		return
	}
	sl.dirty = false
	sl.flushedAt = s.now()
}

// Get returns a copy of the record of id.
func (s *Store) Get(id string) (models.AudioRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.items[id]
	if !ok {
		return models.AudioRecord{}, false
	}
	return sl.rec, true
}

// RegisterIfAbsent creates a None record for id if there is none. When a
// record exists with a different remote URL it is reset to None, its handle
// cleared and any running operation invalidated; the return value reports
// that case. Otherwise only a non-empty title is refreshed.
func (s *Store) RegisterIfAbsent(ctx context.Context, id, remoteURL, title string) (bool, error) {
	if id == "" || remoteURL == "" {
		return false, fmt.Errorf("register %q: %w", id, common.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.items[id]
	if !ok {
		sl = &slot{
			rec: models.AudioRecord{
				ID:        id,
				RemoteURL: remoteURL,
				Status:    models.StatusNone,
				Title:     title,
				UpdatedAt: s.now(),
			},
			done: true,
		}
		s.items[id] = sl
		s.persist(ctx, sl)
		return false, nil
	}

	if sl.rec.RemoteURL != remoteURL {
		s.log.Info(ctx, "remote source changed, record reset", "item_id", id)
		sl.rec.RemoteURL = remoteURL
		if title != "" {
			sl.rec.Title = title
		}
		s.reset(sl)
		s.persist(ctx, sl)
		return true, nil
	}

	if title != "" && title != sl.rec.Title {
		sl.rec.Title = title
		sl.rec.UpdatedAt = s.now()
		s.persist(ctx, sl)
	}
	return false, nil
}

func (s *Store) reset(sl *slot) {
	sl.rec.Status = models.StatusNone
	sl.rec.LocalHandle = ""
	sl.rec.Progress = 0
	sl.rec.FileSizeBytes = 0
	sl.rec.DownloadedAt = nil
	sl.rec.Seq++
	sl.rec.UpdatedAt = s.now()
	sl.done = true
}

// Begin starts a new operation on id and returns its sequence number.
func (s *Store) Begin(ctx context.Context, id string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.items[id]
	if !ok {
		return 0, fmt.Errorf("begin %q: %w", id, common.ErrNotFound)
	}
	sl.rec.Seq++
	sl.done = false
	return sl.rec.Seq, nil
}

// current returns the slot of id if seq is its running operation.
func (s *Store) current(id string, seq uint64) *slot {
	sl, ok := s.items[id]
	if !ok || sl.rec.Seq != seq || sl.done {
		return nil
	}
	return sl
}

// MarkDownloading records progress in [0,1] for the operation seq. Progress
// lower than the last accepted value is discarded.
func (s *Store) MarkDownloading(ctx context.Context, id string, seq uint64, progress float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.current(id, seq)
	if sl == nil {
		return false
	}

	progress = min(max(progress, 0), 1)

	if sl.rec.Status == models.StatusDownloading {
		if progress < sl.rec.Progress {
			return false
		}
		sl.rec.Progress = progress
		sl.rec.UpdatedAt = s.now()
		if s.now().Sub(sl.flushedAt) < s.flushEvery {
			sl.dirty = true
			return true
		}
		s.persist(ctx, sl)
		return true
	}

	sl.rec.Status = models.StatusDownloading
	sl.rec.LocalHandle = ""
	sl.rec.Progress = progress
	sl.rec.UpdatedAt = s.now()
	s.persist(ctx, sl)
	return true
}

// MarkDownloaded completes the operation seq.
func (s *Store) MarkDownloaded(ctx context.Context, id string, seq uint64, handle string, size int64) bool {
	if handle == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.current(id, seq)
	if sl == nil {
		return false
	}

	now := s.now()
	sl.rec.Status = models.StatusDownloaded
	sl.rec.LocalHandle = handle
	sl.rec.Progress = 1
	sl.rec.FileSizeBytes = size
	sl.rec.DownloadedAt = &now
	sl.rec.UpdatedAt = now
	sl.done = true
	s.persist(ctx, sl)
	return true
}

// MarkFailed completes the operation seq unsuccessfully. The remote URL is
// kept so the download can be retried.
func (s *Store) MarkFailed(ctx context.Context, id string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.current(id, seq)
	if sl == nil {
		return false
	}

	sl.rec.Status = models.StatusFailed
	sl.rec.LocalHandle = ""
	sl.rec.Progress = 0
	sl.rec.DownloadedAt = nil
	sl.rec.UpdatedAt = s.now()
	sl.done = true
	s.persist(ctx, sl)
	return true
}

// Reset moves id back to None and invalidates its running operation.
func (s *Store) Reset(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.items[id]
	if !ok {
		return
	}
	s.reset(sl)
	s.persist(ctx, sl)
}

// Delete forgets id.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	if err := s.persister.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "failed to delete record", "item_id", id, "error", err)
	}
}

// List returns every record sorted by id.
func (s *Store) List() []models.AudioRecord {
	return s.filter(func(*models.AudioRecord) bool { return true })
}

// ListDownloaded returns the Downloaded records sorted by id.
func (s *Store) ListDownloaded() []models.AudioRecord {
	return s.filter(func(r *models.AudioRecord) bool { return r.Status == models.StatusDownloaded })
}

func (s *Store) filter(keep func(*models.AudioRecord) bool) []models.AudioRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.AudioRecord, 0, len(s.items))
	for _, sl := range s.items {
		if keep(&sl.rec) {
			result = append(result, sl.rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// TotalDownloadedBytes sums the sizes of Downloaded records.
func (s *Store) TotalDownloadedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, sl := range s.items {
		if sl.rec.Status == models.StatusDownloaded {
			total += sl.rec.FileSizeBytes
		}
	}
	return total
}

// Flush writes every record with unpersisted changes.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sl := range s.items {
		if sl.dirty {
			s.persist(ctx, sl)
		}
	}
}
