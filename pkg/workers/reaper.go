package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/battlecards/pkg/game"
	"github.com/cbodonnell/battlecards/pkg/log"
)

// ReaperWorker periodically removes games that have no players and have been idle too long.
type ReaperWorker struct {
	sessionManager *game.SessionManager
	interval       time.Duration
	maxIdle        time.Duration
}

type NewReaperWorkerOptions struct {
	SessionManager *game.SessionManager
	Interval       time.Duration
	MaxIdle        time.Duration
}

func NewReaperWorker(opts NewReaperWorkerOptions) *ReaperWorker {
	return &ReaperWorker{
		sessionManager: opts.SessionManager,
		interval:       opts.Interval,
		maxIdle:        opts.MaxIdle,
	}
}

// Start reaps on every interval until ctx is cancelled. It returns immediately
// when the interval or the idle timeout is not positive.
func (w *ReaperWorker) Start(ctx context.Context) {
	if w.interval <= 0 || w.maxIdle <= 0 {
		log.Warn("Reaper not started: interval %v and idle timeout %v must be positive", w.interval, w.maxIdle)
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reap()
		}
	}
}

func (w *ReaperWorker) reap() {
	reaped := w.sessionManager.ReapIdleGames(w.maxIdle)
	for _, gameID := range reaped {
		log.Debug("Reaped idle game %s", gameID)
	}
	if len(reaped) > 0 {
		log.Info("Reaped %d idle games", len(reaped))
	}
}
