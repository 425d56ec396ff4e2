// Package sweeper periodically purges vault entries that are past their
// maximum age, on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
)

const retryDelay = 30 * time.Second

type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type Sweeper struct {
	expr   string
	purger Purger
	log    logging.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New validates expr, a five-field cron expression.
func New(expr string, p Purger, log logging.Logger) (*Sweeper, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("cron expression %q: %w", expr, common.ErrInvalidArgument)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Sweeper{
		expr:   expr,
		purger: p,
		log:    log,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Next returns the first tick strictly after t.
func (s *Sweeper) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

// Run purges on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info(ctx, "expired entry sweeper started", "cron", s.expr)
	defer s.log.Info(ctx, "expired entry sweeper stopped")

	for {
		wait := retryDelay
		next, err := s.Next(s.now())
		if err != nil {
			s.log.Error(ctx, "next purge time", "cron", s.expr, "error", err)
		} else {
			wait = max(time.Until(next), 0)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
		if err != nil {
			continue
		}

		s.sweep(ctx)
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error(ctx, "purge expired entries", "error", err)
		}
		return
	}
	if n > 0 {
		s.log.Info(ctx, "expired entries purged", "count", n)
	}
}
