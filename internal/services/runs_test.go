package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/stickerflow/internal/models"
	"github.com/Lllllllleong/stickerflow/internal/progress"
)

func newClockedRegistry(retain time.Duration) (*RunRegistry, *time.Time) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	r := NewRunRegistry(retain)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRunRegistry_ClaimTwiceIsRefused(t *testing.T) {
	r := NewRunRegistry(time.Minute)

	require.NoError(t, r.Claim("run-1", "user-1"))
	assert.ErrorIs(t, r.Claim("run-1", "user-1"), ErrRunInUse)
	assert.ErrorIs(t, r.Claim("run-1", "user-2"), ErrRunInUse)
}

func TestRunRegistry_FinishedIDStaysTakenUntilRetentionEnds(t *testing.T) {
	r, now := newClockedRegistry(time.Minute)

	require.NoError(t, r.Claim("run-1", "user-1"))
	r.Finish("run-1")
	assert.ErrorIs(t, r.Claim("run-1", "user-1"), ErrRunInUse)

	*now = now.Add(2 * time.Minute)
	assert.NoError(t, r.Claim("run-1", "user-1"))
}

func TestRunRegistry_ActiveRunsNeverExpire(t *testing.T) {
	r, now := newClockedRegistry(time.Minute)

	require.NoError(t, r.Claim("run-1", "user-1"))
	*now = now.Add(time.Hour)

	assert.ErrorIs(t, r.Claim("run-1", "user-1"), ErrRunInUse)
}

func TestRunRegistry_ReservationOwnsTheRun(t *testing.T) {
	r := NewRunRegistry(time.Minute)

	require.NoError(t, r.Reserve("run-1", "user-1"))
	require.NoError(t, r.Reserve("run-1", "user-1"))
	assert.ErrorIs(t, r.Reserve("run-1", "user-2"), ErrRunForbidden)
	assert.ErrorIs(t, r.Claim("run-1", "user-2"), ErrRunInUse)

	require.NoError(t, r.Claim("run-1", "user-1"))
	owner, ok := r.Owner("run-1")
	assert.True(t, ok)
	assert.Equal(t, "user-1", owner)
	assert.ErrorIs(t, r.Reserve("run-1", "user-2"), ErrRunForbidden)
}

func TestRunRegistry_AbandonRestoresReservation(t *testing.T) {
	r := NewRunRegistry(time.Minute)

	require.NoError(t, r.Claim("run-1", ""))
	r.Abandon("run-1")
	_, ok := r.Owner("run-1")
	assert.False(t, ok)

	require.NoError(t, r.Reserve("run-2", "user-1"))
	require.NoError(t, r.Claim("run-2", "user-1"))
	r.Abandon("run-2")
	owner, ok := r.Owner("run-2")
	assert.True(t, ok)
	assert.Equal(t, "user-1", owner)
	assert.NoError(t, r.Claim("run-2", "user-1"))
}

func TestProcess_ConcurrentDuplicateRunIDIsRefused(t *testing.T) {
	f := newFixture(t)
	f.store.delay = 30 * time.Millisecond
	hub := progress.NewHub(256)
	defer hub.Close()
	events, unsubscribe, err := hub.Subscribe(context.Background(), "run-dup")
	require.NoError(t, err)
	defer unsubscribe()

	first := validRequest(t)
	first.RunID = "run-dup"
	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.processor.Process(context.Background(), first, progress.ForRun(hub, "run-dup"))
	}()

	var stream []models.ProgressEvent
	select {
	case ev := <-events:
		stream = append(stream, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	second := validRequest(t)
	second.RunID = "run-dup"
	_, err = f.processor.Process(context.Background(), second, progress.ForRun(hub, "run-dup"))
	require.Error(t, err)
	assert.Equal(t, KindRunConflict, KindOf(err))

	wg.Wait()
	require.NoError(t, firstErr)

	for done := false; !done; {
		select {
		case ev := <-events:
			stream = append(stream, ev)
			done = ev.Terminal()
		case <-time.After(2 * time.Second):
			t.Fatalf("stream never ended: %v", stream)
		}
	}
	assertWellFormedStream(t, stream, models.EventComplete)
	assert.Equal(t, []string{"uploads/run-dup/tray_photo.png"}, f.store.keys)
}

func TestProcess_FinishedRunIDCannotBeReused(t *testing.T) {
	f := newFixture(t)
	_, err := f.process(t, validRequest(t))
	require.NoError(t, err)

	retry := &recordingNotifier{}
	_, err = f.processor.Process(context.Background(), validRequest(t), retry)

	assert.Equal(t, KindRunConflict, KindOf(err))
	assert.Empty(t, retry.Events())
	assert.Equal(t, 1, f.store.calls)
}

func TestProcess_RejectedRunIDCanBeRetried(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.UserID = ""

	_, err := f.process(t, req)
	require.Equal(t, KindUnauthenticated, KindOf(err))

	_, err = f.processor.Process(context.Background(), validRequest(t), &recordingNotifier{})
	assert.NoError(t, err)
}

func TestProcess_RunReservedByAnotherUserIsRefused(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.processor.Reserve("run-1", "user-2"))

	_, err := f.process(t, validRequest(t))

	assert.Equal(t, KindRunConflict, KindOf(err))
	assert.Empty(t, f.notifier.Events())
	assert.Zero(t, f.store.calls)
}
