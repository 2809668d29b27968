package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

func TestRenderProgress_StopsAtTerminalEvent(t *testing.T) {
	events := make(chan models.ProgressEvent, 4)
	events <- models.NewProgress("run-1", 40)
	events <- models.NewComplete("run-1", "done")

	// The channel stays open, as it does while a subscription is live.
	assert.True(t, renderProgress(events, true))
}

func TestRenderProgress_ClosedWithoutTerminalEvent(t *testing.T) {
	events := make(chan models.ProgressEvent, 1)
	events <- models.NewProgress("run-1", 40)
	close(events)

	assert.False(t, renderProgress(events, true))
}

func TestAwaitRendered_WaitsForLateTerminalEvent(t *testing.T) {
	events := make(chan models.ProgressEvent, 1)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(events, true)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		events <- models.NewFailure("run-1", "storage down")
	}()

	assert.True(t, awaitRendered(rendered, time.Second))
}

func TestAwaitRendered_TimesOut(t *testing.T) {
	rendered := make(chan struct{})

	assert.False(t, awaitRendered(rendered, 10*time.Millisecond))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectContentType("case.PDF", nil))
	assert.Equal(t, "image/heic", detectContentType("tray.heic", nil))
	assert.Equal(t, "image/png", detectContentType("tray", []byte("\x89PNG\r\n\x1a\n")))
}
