package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

func receive(t *testing.T, ch <-chan models.ProgressEvent) models.ProgressEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.ProgressEvent{}
}

func TestHub_DeliversOnlyToSubscribersOfTheRun(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()
	ctx := context.Background()

	a1, cancelA1, err := hub.Subscribe(ctx, "run-a")
	require.NoError(t, err)
	defer cancelA1()
	a2, cancelA2, err := hub.Subscribe(ctx, "run-a")
	require.NoError(t, err)
	defer cancelA2()
	b, cancelB, err := hub.Subscribe(ctx, "run-b")
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, hub.Publish(ctx, models.NewProgress("run-a", 10)))

	assert.Equal(t, 10, receive(t, a1).Progress)
	assert.Equal(t, 10, receive(t, a2).Progress)
	select {
	case ev := <-b:
		t.Fatalf("run-b received %+v", ev)
	default:
	}
}

func TestHub_PreservesOrderWithinRun(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, "run-a")
	require.NoError(t, err)
	defer cancel()

	for _, pct := range []int{0, 5, 10, 40} {
		require.NoError(t, hub.Publish(ctx, models.NewProgress("run-a", pct)))
	}
	require.NoError(t, hub.Publish(ctx, models.NewComplete("run-a", "done")))

	for _, pct := range []int{0, 5, 10, 40} {
		assert.Equal(t, pct, receive(t, ch).Progress)
	}
	assert.Equal(t, models.EventComplete, receive(t, ch).Kind)
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, "run-a")
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = hub.Publish(ctx, models.NewProgress("run-a", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, 0, receive(t, ch).Progress)
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	ch, cancel, err := hub.Subscribe(context.Background(), "run-a")
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers("run-a"))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers("run-a"))
}

func TestHub_ContextEndsSubscription(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := hub.Subscribe(ctx, "run-a")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed after context cancellation")
	}
}

func TestHub_NoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, models.NewProgress("run-a", 10)))

	ch, cancel, err := hub.Subscribe(ctx, "run-a")
	require.NoError(t, err)
	defer cancel()

	select {
	case ev := <-ch:
		t.Fatalf("late subscriber received %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, models.ProgressEvent) error {
	p.calls++
	return errors.New("bus down")
}

func TestForRun_StampsRunIDAndSwallowsErrors(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, "run-a")
	require.NoError(t, err)
	defer cancel()

	ForRun(hub, "run-a").Broadcast(ctx, models.ProgressEvent{Kind: models.EventProgress, Progress: 5})
	ev := receive(t, ch)
	assert.Equal(t, "run-a", ev.RunID)

	pub := &failingPublisher{}
	assert.NotPanics(t, func() {
		ForRun(pub, "run-a").Broadcast(ctx, models.NewProgress("", 1))
	})
	assert.Equal(t, 1, pub.calls)
}
