package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrNoCredentials is returned when a request carries no identity at all.
var ErrNoCredentials = errors.New("no credentials provided")

// TokenVerifier validates a bearer token and returns the user it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Authenticator resolves the user behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// BearerAuth reads a token from the Authorization header, or from the token
// query parameter for WebSocket clients that cannot set headers.
type BearerAuth struct {
	Verifier TokenVerifier
}

func (a BearerAuth) Authenticate(r *http.Request) (string, error) {
	token := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", ErrNoCredentials
	}
	return a.Verifier.Verify(r.Context(), token)
}

// DevAuth trusts the X-User-ID header or userId query parameter. It is only
// used when authentication is disabled.
type DevAuth struct{}

func (DevAuth) Authenticate(r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(r.URL.Query().Get("userId")); id != "" {
		return id, nil
	}
	return "", ErrNoCredentials
}

type contextKey string

const userIDKey contextKey = "userID"

// UserFromContext returns the authenticated user, or "" for anonymous requests.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// authenticate resolves the caller and stores the user ID in the request
// context. When required is false, unauthenticated requests pass through
// anonymously and the handler decides.
func authenticate(auth Authenticator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := auth.Authenticate(r)
			if err != nil {
				if !errors.Is(err, ErrNoCredentials) {
					slog.Warn("Authentication failed.", "path", r.URL.Path, "error", err)
				}
				if required {
					writeError(w, http.StatusUnauthorized, "authentication required", "Unauthenticated", "", err)
					return
				}
				userID = ""
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}
