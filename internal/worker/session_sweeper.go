package worker

import (
	"context"
	"time"

	"github.com/wb-go/wbf/zlog"
)

// Sweeper removes expired sessions and reports how many were dropped.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SessionSweeper periodically evicts sessions nobody has touched within the TTL.
type SessionSweeper struct {
	sweeper  Sweeper
	interval time.Duration
}

func NewSessionSweeper(sweeper Sweeper, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (w *SessionSweeper) Run(ctx context.Context) {
	zlog.Logger.Info().Dur("interval", w.interval).Msg("session sweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("session sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SessionSweeper) sweep(ctx context.Context) {
	removed, err := w.sweeper.SweepExpired(ctx)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to sweep expired sessions")
		return
	}
	if removed > 0 {
		zlog.Logger.Info().Int("removed", removed).Msg("expired sessions swept")
	}
}
