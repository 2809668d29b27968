package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/Lllllllleong/stickerflow/internal/models"
	"github.com/Lllllllleong/stickerflow/internal/progress"
)

// Control actions a progress client can send.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ControlMessage is sent by the client to pick the runs it observes.
type ControlMessage struct {
	Action string `json:"action"`
	RunID  string `json:"runId"`
}

// ControlReply acknowledges a ControlMessage, or reports why it was refused.
type ControlReply struct {
	Ack   string `json:"ack,omitempty"`
	RunID string `json:"runId,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleProgress upgrades to a WebSocket carrying any number of run
// subscriptions. Events are sent as structured-mode CloudEvents.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	websocket.Server{
		Handler: func(ws *websocket.Conn) {
			s.serveProgress(ws, userID)
		},
	}.ServeHTTP(w, r)
}

func (s *Server) serveProgress(ws *websocket.Conn, userID string) {
	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	conn := &progressConn{ws: ws, subs: make(map[string]func())}
	defer conn.closeAll()
	logCtx := slog.With("userId", userID, "remote", ws.Request().RemoteAddr)
	logCtx.Info("Progress client connected.")

	for {
		var msg ControlMessage
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				logCtx.Debug("Progress client read ended.", "error", err)
			}
			logCtx.Info("Progress client disconnected.")
			return
		}

		if msg.RunID == "" {
			conn.reply(ControlReply{Error: "runId is required"})
			continue
		}

		switch msg.Action {
		case ActionSubscribe:
			if err := s.processor.Reserve(msg.RunID, userID); err != nil {
				logCtx.Warn("Refused subscription to another user's run.", "runId", msg.RunID, "error", err)
				conn.reply(ControlReply{RunID: msg.RunID, Error: "run belongs to another user"})
				continue
			}
			if err := conn.subscribe(ctx, s.bus, msg.RunID); err != nil {
				logCtx.Warn("Failed to subscribe to run.", "runId", msg.RunID, "error", err)
				conn.reply(ControlReply{RunID: msg.RunID, Error: "subscribe failed"})
			}
		case ActionUnsubscribe:
			conn.unsubscribe(msg.RunID)
			conn.reply(ControlReply{Ack: ActionUnsubscribe, RunID: msg.RunID})
		default:
			conn.reply(ControlReply{RunID: msg.RunID, Error: "unknown action " + msg.Action})
		}
	}
}

// progressConn multiplexes run subscriptions over one WebSocket. Writes are
// serialised by mu.
type progressConn struct {
	ws *websocket.Conn

	mu   sync.Mutex
	subs map[string]func()
}

func (c *progressConn) reply(r ControlReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := websocket.JSON.Send(c.ws, r); err != nil {
		slog.Debug("Failed to send control reply.", "error", err)
	}
}

// subscribe acknowledges before the first event can be forwarded.
func (c *progressConn) subscribe(ctx context.Context, sub progress.Subscriber, runID string) error {
	c.mu.Lock()
	if _, ok := c.subs[runID]; ok {
		c.mu.Unlock()
		c.reply(ControlReply{Ack: ActionSubscribe, RunID: runID})
		return nil
	}
	events, cancel, err := sub.Subscribe(ctx, runID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.subs[runID] = cancel
	if err := websocket.JSON.Send(c.ws, ControlReply{Ack: ActionSubscribe, RunID: runID}); err != nil {
		slog.Debug("Failed to send control reply.", "error", err)
	}
	c.mu.Unlock()

	go c.forward(runID, events)
	return nil
}

func (c *progressConn) forward(runID string, events <-chan models.ProgressEvent) {
	for ev := range events {
		data, err := progress.Encode(ev)
		if err != nil {
			slog.Error("Failed to encode progress event.", "runId", runID, "error", err)
			continue
		}
		c.mu.Lock()
		err = websocket.Message.Send(c.ws, string(data))
		c.mu.Unlock()
		if err != nil {
			slog.Debug("Failed to forward progress event.", "runId", runID, "error", err)
		}
		if ev.Terminal() {
			c.unsubscribe(runID)
		}
	}
}

func (c *progressConn) unsubscribe(runID string) {
	c.mu.Lock()
	cancel, ok := c.subs[runID]
	delete(c.subs, runID)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *progressConn) closeAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]func())
	c.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}
}
