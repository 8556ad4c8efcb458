package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpirySweepBatch caps how many sessions one tick expires.
const ExpirySweepBatch = 200

// Sweeper expires overdue sessions.
type Sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// ExpiryWorker periodically closes sessions whose deadline passed while
// nobody was looking at them.
type ExpiryWorker struct {
	sweeper  Sweeper
	interval time.Duration
	log      zerolog.Logger
}

func NewExpiryWorker(sweeper Sweeper, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ExpiryWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep keeps draining while full batches come back.
func (w *ExpiryWorker) sweep(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.sweeper.SweepExpired(ctx, ExpirySweepBatch)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
			return
		}
		if n > 0 {
			w.log.Info().Int("expired", n).Msg("Expired overdue sessions")
		}
		if n < ExpirySweepBatch {
			return
		}
	}
}
