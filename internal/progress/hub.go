package progress

import (
	"context"
	"sync"

	"github.com/Lllllllleong/stickerflow/internal/models"
)

// DefaultBuffer is the per-subscriber channel capacity of a Hub.
const DefaultBuffer = 64

// Hub is an in-process Bus. Sends never block: a subscriber whose buffer is
// full misses the event. Nothing is replayed to late subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	closed bool
}

type subscription struct {
	ch   chan models.ProgressEvent
	once sync.Once
}

// NewHub creates a Hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
	}
}

// Publish delivers ev to the current subscribers of ev.RunID.
func (h *Hub) Publish(_ context.Context, ev models.ProgressEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.RunID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a new observer for runID. The subscription also ends
// when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, runID string) (<-chan models.ProgressEvent, func(), error) {
	sub := &subscription{ch: make(chan models.ProgressEvent, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}, nil
	}
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*subscription]struct{})
	}
	h.subs[runID][sub] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	cancel := func() {
		sub.once.Do(func() {
			close(done)
			h.remove(runID, sub)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return sub.ch, cancel, nil
}

func (h *Hub) remove(runID string, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[runID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(h.subs, runID)
		}
	}
}

// Subscribers reports how many observers are attached to runID.
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[runID])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for runID, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, runID)
	}
	h.closed = true
	return nil
}
