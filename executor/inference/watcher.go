package inference

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const DefaultReloadInterval = 10 * time.Second

// Watcher polls a Reloader so that long-running searches pick up weights
// written by the trainer.
type Watcher struct {
	Target   Reloader
	Interval time.Duration
	Logger   zerolog.Logger
}

// Run blocks until ctx is cancelled. Reload failures are logged and retried
// on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.check()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	reloaded, err := w.Target.ReloadIfUpdated()
	if err != nil {
		w.Logger.Warn().Err(err).Msg("weights reload failed")
		return
	}
	if reloaded {
		w.Logger.Info().Msg("reloaded weights")
	}
}
