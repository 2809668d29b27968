package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

// recordingNotifier keeps every broadcast in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (n *recordingNotifier) Broadcast(_ context.Context, ev models.ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []models.ProgressEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.ProgressEvent(nil), n.events...)
}

func TestTracker_DropsNonAdvancingTicks(t *testing.T) {
	n := &recordingNotifier{}
	tr := newTracker(context.Background(), "run-1", n)

	tr.tick(0)
	tr.tick(10)
	tr.tick(10)
	tr.tick(5)
	tr.tick(150)

	events := n.Events()
	require.Len(t, events, 3)
	assert.Equal(t, 0, events[0].Progress)
	assert.Equal(t, 10, events[1].Progress)
	assert.Equal(t, 100, events[2].Progress)
	for _, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
	}
}

func TestTracker_NothingAfterTerminal(t *testing.T) {
	n := &recordingNotifier{}
	tr := newTracker(context.Background(), "run-1", n)

	tr.tick(10)
	assert.True(t, tr.finish(models.NewFailure("", "boom")))
	assert.False(t, tr.finish(models.NewComplete("", "late")))
	tr.tick(50)

	events := n.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventError, events[1].Kind)
	assert.Equal(t, "run-1", events[1].RunID)
}

func TestTracker_NilNotifier(t *testing.T) {
	tr := newTracker(context.Background(), "run-1", nil)

	assert.NotPanics(t, func() {
		tr.tick(10)
		tr.finish(models.NewComplete("run-1", "done"))
	})
}

func TestRunStage_RampAdvancesUntilOpReturns(t *testing.T) {
	n := &recordingNotifier{}
	tr := newTracker(context.Background(), "run-1", n)
	ramp := RampConfig{From: 0, To: 40, Step: 5, Interval: 2 * time.Millisecond}

	err := runStage(context.Background(), tr, ramp, func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	events := n.Events()
	require.NotEmpty(t, events)
	last := -1
	for _, ev := range events {
		assert.Greater(t, ev.Progress, last)
		assert.LessOrEqual(t, ev.Progress, 40)
		last = ev.Progress
	}
}

func TestRunStage_NoTicksAfterReturn(t *testing.T) {
	n := &recordingNotifier{}
	tr := newTracker(context.Background(), "run-1", n)
	ramp := RampConfig{From: 40, To: 70, Step: 1, Interval: time.Millisecond}

	opErr := errors.New("extract failed")
	err := runStage(context.Background(), tr, ramp, func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return opErr
	})
	require.ErrorIs(t, err, opErr)

	count := len(n.Events())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, n.Events(), count)
}

func TestRunStage_DisabledRamp(t *testing.T) {
	n := &recordingNotifier{}
	tr := newTracker(context.Background(), "run-1", n)

	err := runStage(context.Background(), tr, RampConfig{From: 0, To: 40, Step: 5}, func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Empty(t, n.Events())
}
