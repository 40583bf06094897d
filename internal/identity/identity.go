// Package identity provides anonymous per-device broker identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/store"
)

const (
	BrokerCookieName      = "mediai_broker_id"
	SessionHeaderName     = "X-MediAI-Session-ID"
	SessionQueryParam     = "session_id"
	DefaultSessionIDValue = "default"
	brokerCookieMaxAge    = 30 * 24 * time.Hour
	lastSeenResolution    = time.Minute
)

type contextKey int

const (
	brokerIDKey contextKey = iota
	displayNameKey
	sessionIDKey
)

var (
	brokerIDPattern  = regexp.MustCompile(`^brk_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)
)

// BrokerIDFromContext extracts the broker ID from the request context.
func BrokerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(brokerIDKey).(string); ok {
		return v
	}
	return ""
}

// DisplayNameFromContext extracts the broker display name from the request context.
func DisplayNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(displayNameKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithBroker returns a context carrying the given identity.
func WithBroker(ctx context.Context, brokerID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, brokerIDKey, brokerID)
	ctx = context.WithValue(ctx, displayNameKey, deriveDisplayName(brokerID))
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

func generateBrokerID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate broker id: %w", err)
	}
	return "brk_" + hex.EncodeToString(buf), nil
}

func isValidBrokerID(id string) bool {
	return brokerIDPattern.MatchString(id)
}

// sanitizeSessionID rejects ids that could collide with the brokerID:sessionID key format.
func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func deriveDisplayName(brokerID string) string {
	if len(brokerID) > 12 {
		return "broker-" + brokerID[len(brokerID)-8:]
	}
	return "broker"
}

func ensureBroker(ctx context.Context, repo store.Repository, brokerID string) error {
	broker, err := repo.GetBroker(ctx, brokerID)
	if err != nil {
		return err
	}

	now := time.Now()
	if broker != nil {
		if broker.IdleFor(now) < lastSeenResolution {
			return nil
		}
		return repo.UpdateLastSeen(ctx, brokerID, now)
	}

	return repo.UpsertBroker(ctx, &domain.Broker{
		BrokerID:    brokerID,
		DisplayName: deriveDisplayName(brokerID),
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func setBrokerCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     BrokerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(brokerCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(brokerCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateBrokerID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(BrokerCookieName); err == nil && isValidBrokerID(c.Value) {
		setBrokerCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateBrokerID()
	if err != nil {
		return "", err
	}
	setBrokerCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SessionQueryParam)
	}
	return sanitizeSessionID(sid)
}

// Middleware injects anonymous per-device broker identity and per-request session ID.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			brokerID, err := getOrCreateBrokerID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish broker identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureBroker(r.Context(), repo, brokerID); err != nil {
				slog.Error("failed to initialize broker", "broker_id", brokerID, "error", err)
				http.Error(w, `{"error":"failed to initialize broker"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithBroker(r.Context(), brokerID, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
