package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/auth"
	"github.com/dmitrijs2005/audiokeeper/internal/buildinfo"
	"github.com/dmitrijs2005/audiokeeper/internal/cli"
	"github.com/dmitrijs2005/audiokeeper/internal/config"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"github.com/dmitrijs2005/audiokeeper/internal/metrics"
	"github.com/dmitrijs2005/audiokeeper/internal/services"
	"github.com/dmitrijs2005/audiokeeper/internal/sweeper"
	"golang.org/x/term"
)

// localOwner owns content when no access token is configured.
const localOwner = "local"

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, !term.IsTerminal(int(os.Stderr.Fd())))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "audiokeeper failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	owner := localOwner
	if cfg.AccessToken != "" {
		o, err := auth.OwnerFromToken(cfg.AccessToken, time.Now())
		if err != nil {
			return err
		}
		owner = o
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error(ctx, "metrics listener", "error", err)
			}
		}()
	}

	opts := services.OptionsFromConfig(cfg)
	opts.Metrics = m
	opts.Logger = logger

	lib, err := services.NewLibrary(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := lib.Close(context.Background()); err != nil {
			logger.Error(ctx, "close library", "error", err)
		}
	}()

	if cfg.PurgeCron != "" {
		sw, err := sweeper.New(cfg.PurgeCron, lib, logger.With("component", "sweeper"))
		if err != nil {
			return err
		}
		go sw.Run(ctx)
	}

	// unblocks the shell's read on interrupt
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	cli.NewApp(lib, owner, os.Stdin, os.Stdout, logger).Run(ctx)
	return nil
}
