// Package api exposes the upload processor over HTTP: a multipart upload
// endpoint and a WebSocket endpoint streaming per-run progress.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/stickerflow/internal/models"
	"github.com/Lllllllleong/stickerflow/internal/progress"
)

// Processor runs one upload. Reserve claims a run for the user observing it,
// and fails when another user owns the run.
type Processor interface {
	Process(ctx context.Context, req *models.UploadRequest, notifier progress.Notifier) (*models.UploadResponse, error)
	Reserve(runID, userID string) error
}

// Server holds the handlers' dependencies.
type Server struct {
	processor      Processor
	bus            progress.Bus
	auth           Authenticator
	maxUploadBytes int64
}

// NewServer creates a new Server. A nil auth falls back to DevAuth.
func NewServer(processor Processor, bus progress.Bus, auth Authenticator, maxUploadBytes int64) *Server {
	if auth == nil {
		auth = DevAuth{}
	}
	return &Server{
		processor:      processor,
		bus:            bus,
		auth:           auth,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "upload-processor"})
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate(s.auth, false))
		r.Post("/upload", s.handleUpload)
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate(s.auth, true))
		r.Get("/progress", s.handleProgress)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, kind, runID string, err error) {
	resp := models.ErrorResponse{Message: message, Kind: kind, RunID: runID}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}
