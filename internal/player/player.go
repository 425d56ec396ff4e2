// Package player implements the playback controller: a state machine over a
// single playback session that chooses between the decrypted local copy and
// the remote stream.
//
//	Idle --request--> Generating | Ready | Error
//	Generating --source ready--> Ready
//	Generating --source failed--> Error
//	Ready --play--> Playing
//	Playing --pause--> Paused --resume--> Playing
//	Playing --natural end--> Ready (position 0)
//	Playing | Paused --stop--> Idle
//	any --transport error--> Error
//	Error --retry--> Ready | Generating
//
// Events that are not valid in the current state leave it unchanged.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/backend"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/metrics"
	"github.com/dmitrijs2005/audiokeeper/internal/models"
	"github.com/dmitrijs2005/audiokeeper/internal/vault"
)

const (
	DefaultPollInterval  = 3 * time.Second
	DefaultNotifyTimeout = 10 * time.Second
)

// Engine renders a single source.
type Engine interface {
	Load(ctx context.Context, source string) (time.Duration, error)
	Play(onEnd func()) error
	Pause() error
	Seek(pos time.Duration) error
	SetRate(rate float64) error
	Position() time.Duration
	Stop()
}

// Sources provides the two ways to reach an item's audio.
type Sources interface {
	ObtainPlaybackHandle(ctx context.Context, itemID, ownerID string) (*vault.PlaybackHandle, error)
	ResolveAudio(ctx context.Context, itemID string) (backend.AudioSource, error)
}

// Catalog knows the remote url an item was downloaded from.
type Catalog interface {
	Get(id string) (models.AudioRecord, bool)
}

// Notifier is told when a session starts playing for the first time.
type Notifier interface {
	PlayStarted(ctx context.Context, itemID string) error
}

type NotifierFunc func(ctx context.Context, itemID string) error

func (f NotifierFunc) PlayStarted(ctx context.Context, itemID string) error {
	return f(ctx, itemID)
}

type Options struct {
	Engine        Engine
	Sources       Sources
	Catalog       Catalog
	Notifier      Notifier
	Metrics       *metrics.Metrics
	Logger        logging.Logger
	PollInterval  time.Duration
	NotifyTimeout time.Duration
}

type session struct {
	models.Session

	ownerID   string
	handle    *vault.PlaybackHandle
	remoteURL string
	loaded    bool
	notified  bool
	stopWatch context.CancelFunc
}

type Player struct {
	engine   Engine
	sources  Sources
	catalog  Catalog
	notifier Notifier
	metrics  *metrics.Metrics
	log      logging.Logger
	poll     time.Duration
	notifyTO time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// cmd serializes events; mu guards cur, rate and subs for readers.
	cmd     sync.Mutex
	mu      sync.Mutex
	cur     *session
	rate    float64
	subs    map[int]chan models.Session
	nextSub int
}

func New(opts Options) (*Player, error) {
	if opts.Engine == nil || opts.Sources == nil {
		return nil, fmt.Errorf("player needs an engine and sources: %w", common.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		engine:   opts.Engine,
		sources:  opts.Sources,
		catalog:  opts.Catalog,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		poll:     opts.PollInterval,
		notifyTO: opts.NotifyTimeout,
		ctx:      ctx,
		cancel:   cancel,
		rate:     1,
		subs:     make(map[int]chan models.Session),
	}, nil
}

// Close ends the session and waits for background work.
func (p *Player) Close() {
	p.cmd.Lock()
	p.teardown()
	p.setCurrent(nil)
	p.cmd.Unlock()

	p.cancel()
	p.wg.Wait()
}

// Snapshot returns the current session. Without a session the state is Idle.
func (p *Player) Snapshot() models.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Player) snapshotLocked() models.Session {
	if p.cur == nil {
		return models.Session{State: models.StateIdle, PlaybackRate: p.rate}
	}
	s := p.cur.Session
	if s.State == models.StatePlaying || s.State == models.StatePaused {
		s.PositionSeconds = p.engine.Position().Seconds()
	}
	return s
}

// Subscribe delivers the session after every change. Only the latest value is
// kept for a slow reader. The returned func unsubscribes and closes the
// channel.
func (p *Player) Subscribe() (<-chan models.Session, func()) {
	ch := make(chan models.Session, 1)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.snapshotLocked()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}

func (p *Player) publishLocked() {
	snap := p.snapshotLocked()
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (p *Player) setCurrent(s *session) {
	p.mu.Lock()
	p.cur = s
	p.publishLocked()
	p.mu.Unlock()

	state := models.StateIdle
	if s != nil {
		state = s.State
	}
	p.metrics.SessionState(string(state))
}

// update applies fn to s under the state lock and publishes the result when s
// is still the current session. Callers hold cmd.
func (p *Player) update(s *session, fn func(s *session)) {
	prev := s.State

	p.mu.Lock()
	fn(s)
	current := p.cur == s
	if current {
		p.publishLocked()
	}
	p.mu.Unlock()

	if current && s.State != prev {
		p.metrics.SessionState(string(s.State))
		p.log.Debug(p.ctx, "session state", "session_id", s.ID, "item_id", s.ItemID, "from", prev, "to", s.State)
	}
}

func (p *Player) fail(s *session, err error) {
	p.engine.Stop()
	p.update(s, func(s *session) {
		s.State = models.StateError
		s.LastError = err.Error()
		s.PositionSeconds = 0
		s.loaded = false
	})
	p.log.Warn(p.ctx, "playback error", "session_id", s.ID, "item_id", s.ItemID, "error", err)
}

// teardown stops the engine, releases the decrypted file and stops the
// generation watcher of the current session. Callers hold cmd.
func (p *Player) teardown() {
	s := p.cur
	if s == nil {
		return
	}
	p.engine.Stop()
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	if s.handle != nil {
		s.handle.Release()
	}
}
