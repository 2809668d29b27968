package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/stickerflow/internal/api"
	"github.com/Lllllllleong/stickerflow/internal/services"
)

var (
	handler http.Handler
	once    sync.Once
	initErr error
)

func init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	functions.HTTP("HandleLabelAPI", handleLabelAPI)
}

// main starts a local server. Deployed functions use the registered entry point.
func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	// Serve the API at the root so chi sees the request paths unchanged.
	if os.Getenv("FUNCTION_TARGET") == "" {
		_ = os.Setenv("FUNCTION_TARGET", "HandleLabelAPI")
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("Function framework exited.", "error", err)
		os.Exit(1)
	}
}

func handleLabelAPI(w http.ResponseWriter, r *http.Request) {
	// Clients are created once and reused across invocations.
	once.Do(func() {
		handler, initErr = newHandler(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Upload processor initialization failed.", "error", initErr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"failed to initialize service"}`))
		return
	}
	handler.ServeHTTP(w, r)
}

func newHandler(ctx context.Context) (http.Handler, error) {
	rt, err := services.NewRuntime(ctx)
	if err != nil {
		return nil, err
	}

	var auth api.Authenticator = api.DevAuth{}
	switch {
	case rt.IDTokens != nil:
		auth = api.BearerAuth{Verifier: rt.IDTokens}
	case rt.Config.AuthDisabled:
		slog.Warn("Authentication is disabled; trusting X-User-ID.")
	default:
		_ = rt.Close()
		return nil, fmt.Errorf("AUTH_AUDIENCE must be set unless AUTH_DISABLED is true")
	}

	server := api.NewServer(rt.Processor, rt.Bus, auth, rt.Config.MaxUploadBytes)
	return server.Routes(), nil
}
