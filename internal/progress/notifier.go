// Package progress fans progress events out to observers, one logical
// channel per upload run.
package progress

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

// Notifier receives the events of a single run. Broadcast is fire-and-forget.
type Notifier interface {
	Broadcast(ctx context.Context, ev models.ProgressEvent)
}

// Publisher delivers an event to whoever is subscribed to its run.
type Publisher interface {
	Publish(ctx context.Context, ev models.ProgressEvent) error
}

// Subscriber opens a stream of events for one run. The returned cancel func
// must be called to release the subscription; the channel is closed after it.
type Subscriber interface {
	Subscribe(ctx context.Context, runID string) (<-chan models.ProgressEvent, func(), error)
}

// Bus is a multi-writer, multi-reader fan-out keyed by run ID.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

type runNotifier struct {
	pub   Publisher
	runID string
}

// ForRun returns a Notifier that stamps every event with runID before
// publishing it. Publish errors are logged and dropped.
func ForRun(pub Publisher, runID string) Notifier {
	return &runNotifier{pub: pub, runID: runID}
}

func (n *runNotifier) Broadcast(ctx context.Context, ev models.ProgressEvent) {
	ev.RunID = n.runID
	if err := n.pub.Publish(ctx, ev); err != nil {
		slog.Warn("Failed to publish progress event.", "runId", n.runID, "kind", ev.Kind, "progress", ev.Progress, "error", err)
	}
}

// Discard is a Notifier that drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Broadcast(context.Context, models.ProgressEvent) {}
