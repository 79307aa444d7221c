package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"raffle-backend/internal/features/raffle/service"
)

// DrawWorker re-invokes the draw orchestrator on a timer. The grace period
// is a wall-clock gate, not an active timer, so something has to knock on
// the door; every tick is a blind retry and safe by construction.
type DrawWorker struct {
	service  *service.RaffleService
	interval time.Duration
	logger   zerolog.Logger
}

func NewDrawWorker(svc *service.RaffleService, interval time.Duration, logger zerolog.Logger) *DrawWorker {
	return &DrawWorker{service: svc, interval: interval, logger: logger}
}

// Start blocks until ctx is cancelled. Run it in its own goroutine.
func (w *DrawWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("draw worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("draw worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *DrawWorker) tick(ctx context.Context) {
	result, err := w.service.Draw(ctx, 0)
	if err != nil {
		w.logger.Error().Err(err).Msg("draw attempt failed")
		return
	}
	switch result.Status {
	case service.DrawSuccess:
		w.logger.Info().
			Int64("raffle_id", result.RaffleID).
			Int64("winner_user_id", result.WinnerUserID).
			Msg("worker completed draw")
	case service.DrawTooEarly:
		w.logger.Debug().
			Int64("raffle_id", result.RaffleID).
			Time("not_before", result.NotBefore).
			Msg("draw not yet eligible")
	case service.DrawMissingSeed:
		// Needs operator attention; the raffle stays ready until cancelled
		// or the seed backend recovers.
		w.logger.Warn().
			Int64("raffle_id", result.RaffleID).
			Msg("ready raffle has no seed in vault")
	default:
		w.logger.Debug().Str("status", string(result.Status)).Msg("nothing to draw")
	}
}
