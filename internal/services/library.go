// Package services composes the metadata store, the secure vault, the access
// guard and the playback controller into the Library the CLI talks to.
package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/backend"
	"github.com/dmitrijs2005/audiokeeper/internal/buildinfo"
	"github.com/dmitrijs2005/audiokeeper/internal/config"
	"github.com/dmitrijs2005/audiokeeper/internal/database"
	"github.com/dmitrijs2005/audiokeeper/internal/engine"
	"github.com/dmitrijs2005/audiokeeper/internal/fetch"
	"github.com/dmitrijs2005/audiokeeper/internal/filex"
	"github.com/dmitrijs2005/audiokeeper/internal/guard"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/metrics"
	"github.com/dmitrijs2005/audiokeeper/internal/player"
	"github.com/dmitrijs2005/audiokeeper/internal/repositories/metadata"
	"github.com/dmitrijs2005/audiokeeper/internal/repositories/vaultentries"
	"github.com/dmitrijs2005/audiokeeper/internal/store"
	"github.com/dmitrijs2005/audiokeeper/internal/vault"
)

const (
	dbFileName      = "audiokeeper.db"
	vaultDirName    = "vault"
	deviceSecretKey = "device_secret"
	progressBuffer  = 16
)

type Options struct {
	DataDir        string
	BackendURL     string
	AccessToken    string
	AppSalt        string
	AppVersion     string
	MaxAge         time.Duration
	PlaybackWindow time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration
	S3             fetch.S3Options

	Metrics *metrics.Metrics
	Logger  logging.Logger

	// Fetcher and Engine replace the network fetcher and the mp3 engine.
	Fetcher fetch.Fetcher
	Engine  player.Engine
	Now     func() time.Time
}

// OptionsFromConfig maps the loaded configuration onto library options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DataDir:        cfg.DataDir,
		BackendURL:     cfg.BackendURL,
		AccessToken:    cfg.AccessToken,
		AppSalt:        cfg.AppSalt,
		AppVersion:     buildinfo.Version(),
		MaxAge:         cfg.MaxAge,
		PlaybackWindow: cfg.PlaybackWindow,
		RequestTimeout: cfg.RequestTimeout,
		PollInterval:   cfg.PollInterval,
		S3: fetch.S3Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
	}
}

// playbackSources serves the player from the vault and the backend.
type playbackSources struct {
	*vault.Vault
	*backend.Client
}

type Library struct {
	db      *sql.DB
	store   *store.Store
	vault   *vault.Vault
	player  *player.Player
	metrics *metrics.Metrics
	log     logging.Logger

	wg sync.WaitGroup
}

func deviceSecret() []byte {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return b
}

// NewLibrary opens the data directory and builds every component.
func NewLibrary(ctx context.Context, opts Options) (*Library, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dir, err := filex.EnsurePrivateDir(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	db, err := database.InitDatabase(ctx, database.DSN(filepath.Join(dir, dbFileName)))
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	l, err := build(ctx, db, dir, opts, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func build(ctx context.Context, db *sql.DB, dir string, opts Options, log logging.Logger) (*Library, error) {
	secret, err := metadata.GetOrCreate(ctx, metadata.NewSQLiteRepository(db), deviceSecretKey, deviceSecret)
	if err != nil {
		return nil, fmt.Errorf("device secret: %w", err)
	}

	st, err := store.Open(ctx, store.NewSQLPersister(db), log.With("component", "store"), store.WithClock(opts.Now))
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: opts.RequestTimeout}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.New(fetch.Options{
			HTTPClient: httpClient,
			S3:         opts.S3,
			Logger:     log.With("component", "fetch"),
		})
	}

	g := guard.New(guard.Policy{MaxAge: opts.MaxAge, Now: opts.Now}, guard.NewDeviceFingerprinter(secret))

	v, err := vault.New(ctx, vault.Options{
		Dir:            filepath.Join(dir, vaultDirName),
		Entries:        vaultentries.NewSQLiteRepository(db),
		Registry:       st,
		Guard:          g,
		Fetcher:        fetcher,
		AppSalt:        []byte(opts.AppSalt),
		AppVersion:     opts.AppVersion,
		PlaybackWindow: opts.PlaybackWindow,
		Metrics:        opts.Metrics,
		Logger:         log.With("component", "vault"),
		Now:            opts.Now,
	})
	if err != nil {
		return nil, err
	}

	bc, err := backend.New(opts.BackendURL, opts.AccessToken, opts.RequestTimeout, log.With("component", "backend"))
	if err != nil {
		v.Close()
		return nil, err
	}

	eng := opts.Engine
	if eng == nil {
		eng = engine.New(engine.Options{HTTPClient: httpClient, Logger: log.With("component", "engine")})
	}

	p, err := player.New(player.Options{
		Engine:       eng,
		Sources:      playbackSources{Vault: v, Client: bc},
		Catalog:      st,
		Notifier:     player.NotifierFunc(bc.RecordPlay),
		Metrics:      opts.Metrics,
		Logger:       log.With("component", "player"),
		PollInterval: opts.PollInterval,
	})
	if err != nil {
		v.Close()
		return nil, err
	}

	return &Library{
		db:      db,
		store:   st,
		vault:   v,
		player:  p,
		metrics: opts.Metrics,
		log:     log,
	}, nil
}

// Close stops playback and downloads, flushes pending progress and closes
// the database.
func (l *Library) Close(ctx context.Context) error {
	l.player.Close()
	l.vault.Close()
	l.wg.Wait()
	l.store.Flush(ctx)
	return l.db.Close()
}
