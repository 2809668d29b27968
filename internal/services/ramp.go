package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/stickerflow/internal/models"
	"github.com/Lllllllleong/stickerflow/internal/progress"
)

// RampConfig describes one cosmetic progress ramp: starting at From, add Step
// every Interval until To is reached. A zero Interval disables the ramp.
type RampConfig struct {
	From     int
	To       int
	Step     int
	Interval time.Duration
}

// tracker serialises the events of one run. Ticks that would not advance the
// percentage are dropped, and nothing is emitted after the terminal event.
type tracker struct {
	mu       sync.Mutex
	ctx      context.Context
	runID    string
	notifier progress.Notifier
	last     int
	done     bool
}

func newTracker(ctx context.Context, runID string, notifier progress.Notifier) *tracker {
	if notifier == nil {
		notifier = progress.Discard
	}
	return &tracker{
		ctx:      context.WithoutCancel(ctx),
		runID:    runID,
		notifier: notifier,
		last:     -1,
	}
}

func (t *tracker) tick(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || pct <= t.last {
		return
	}
	t.last = pct
	t.notifier.Broadcast(t.ctx, models.NewProgress(t.runID, pct))
}

// finish emits ev as the terminal event. Only the first call has any effect.
func (t *tracker) finish(ev models.ProgressEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	ev.RunID = t.runID
	t.notifier.Broadcast(t.ctx, ev)
	return true
}

// runStage runs op while a ramp annotates it. The ramp is cancelled as soon
// as op returns and is fully stopped before runStage returns, so no ramp tick
// can follow the caller's next event.
func runStage(ctx context.Context, t *tracker, ramp RampConfig, op func(context.Context) error) error {
	rampCtx, stopRamp := context.WithCancel(ctx)
	defer stopRamp()

	eg, gctx := errgroup.WithContext(rampCtx)
	eg.Go(func() error {
		runRamp(gctx, t, ramp)
		return nil
	})

	err := op(ctx)
	stopRamp()
	_ = eg.Wait()
	return err
}

func runRamp(ctx context.Context, t *tracker, ramp RampConfig) {
	if ramp.Interval <= 0 || ramp.Step <= 0 || ramp.To <= ramp.From {
		return
	}
	ticker := time.NewTicker(ramp.Interval)
	defer ticker.Stop()

	pct := ramp.From
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Re-check so a tick that raced the cancellation is not emitted.
			if ctx.Err() != nil {
				return
			}
			pct += ramp.Step
			if pct > ramp.To {
				pct = ramp.To
			}
			t.tick(pct)
			if pct >= ramp.To {
				return
			}
		}
	}
}
