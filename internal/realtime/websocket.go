package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/mediai-broker/internal/assistant"
	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/identity"
	"github.com/ashureev/mediai-broker/internal/metrics"
	"github.com/ashureev/mediai-broker/internal/quote"
	"github.com/coder/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultEventBuffer  = 32
	maxFrameSize        = 64 << 10
)

// Frame types.
const (
	FrameMessage = "message"
	FrameQuote   = "quote"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameTyping  = "typing"
	FrameError   = "error"
)

// Error codes carried by error frames.
const (
	CodeInvalidFrame       = "invalid_frame"
	CodeEmptyMessage       = "empty_message"
	CodeRateLimited        = "rate_limited"
	CodeInvalidForm        = "invalid_form"
	CodeNoQuoteFormPending = "no_quote_form_pending"
	CodeSessionUnavailable = "session_unavailable"
	CodeSessionReset       = "session_reset"
)

// Limiter throttles inbound chat actions per broker.
type Limiter interface {
	Allow(key string) bool
}

// LastSeenUpdater records broker activity.
type LastSeenUpdater interface {
	UpdateLastSeen(ctx context.Context, brokerID string, lastSeen time.Time) error
}

// clientFrame is a frame sent by the browser.
type clientFrame struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Form    *quote.Form `json:"form,omitempty"`
}

// serverFrame is a frame sent to the browser.
type serverFrame struct {
	Type       string              `json:"type"`
	Message    *domain.ChatMessage `json:"message,omitempty"`
	Typing     *bool               `json:"typing,omitempty"`
	Code       string              `json:"code,omitempty"`
	Error      string              `json:"error,omitempty"`
	Violations map[string]string   `json:"violations,omitempty"`
}

// Options configures a WebSocketHandler.
type Options struct {
	AllowedOrigin string
	IsDev         bool
	WriteTimeout  time.Duration
	EventBuffer   int
	Limiter       Limiter
	LastSeen      LastSeenUpdater
}

// WebSocketHandler serves the /ws/chat transport.
type WebSocketHandler struct {
	sessions *assistant.Registry
	sm       *SessionManager
	opts     Options
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(sessions *assistant.Registry, sm *SessionManager, opts Options) *WebSocketHandler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	return &WebSocketHandler{sessions: sessions, sm: sm, opts: opts}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "broker_id", brokerID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if brokerID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "broker_id", brokerID)
		return
	}
	ws.SetReadLimit(maxFrameSize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "broker_id", brokerID)
		}
	}()

	h.sm.Register(brokerID, sessionID, ws)
	defer h.sm.Unregister(brokerID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := h.sessions.Get(brokerID, sessionID)
	events, unsubscribe := c.Subscribe(h.opts.EventBuffer)
	defer unsubscribe()

	snapshot := c.Snapshot()
	for i := range snapshot.Messages {
		if err := h.writeFrame(ctx, ws, serverFrame{Type: FrameMessage, Message: &snapshot.Messages[i]}); err != nil {
			slog.Debug("Failed to replay transcript", "error", err, "broker_id", brokerID)
			return
		}
	}
	replayed := int64(snapshot.Len())

	go func() {
		defer cancel()
		h.eventLoop(ctx, ws, events, replayed)
	}()

	h.inputLoop(ctx, ws, brokerID, sessionID)
	slog.Info("Chat socket ended", "broker_id", brokerID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

// eventLoop forwards controller events to the socket until the controller stops.
func (h *WebSocketHandler) eventLoop(ctx context.Context, ws *websocket.Conn, events <-chan assistant.Event, replayed int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = h.writeError(ctx, ws, CodeSessionReset, "chat session closed", nil)
				_ = ws.Close(websocket.StatusNormalClosure, "session reset")
				return
			}
			var frame serverFrame
			switch ev.Type {
			case assistant.EventMessage:
				if ev.Message.Seq <= replayed {
					continue
				}
				frame = serverFrame{Type: FrameMessage, Message: ev.Message}
			case assistant.EventTyping:
				typing := ev.Typing
				frame = serverFrame{Type: FrameTyping, Typing: &typing}
			default:
				continue
			}
			if err := h.writeFrame(ctx, ws, frame); err != nil {
				slog.Debug("WebSocket event write failed", "error", err)
				return
			}
		}
	}
}

//nolint:gocognit // Frame dispatch keeps validation and controller hand-off together.
func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, brokerID, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "broker_id", brokerID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "broker_id", brokerID)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = h.writeError(ctx, ws, CodeInvalidFrame, "frame is not valid JSON", nil)
			continue
		}

		switch frame.Type {
		case FramePing:
			if err := h.writeFrame(ctx, ws, serverFrame{Type: FramePong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
			continue
		case FrameMessage:
			if strings.TrimSpace(frame.Content) == "" {
				_ = h.writeError(ctx, ws, CodeEmptyMessage, "message is required", nil)
				continue
			}
			if !h.allow(ctx, ws, brokerID) {
				continue
			}
			h.dispatch(ctx, ws, brokerID, sessionID, func(c *assistant.Controller) (*assistant.Pending, error) {
				return c.Send(ctx, frame.Content)
			})
		case FrameQuote:
			if frame.Form == nil {
				_ = h.writeError(ctx, ws, CodeInvalidForm, "form is required", nil)
				continue
			}
			profile, err := quote.ParseForm(*frame.Form)
			if err != nil {
				var verr *quote.ValidationError
				if errors.As(err, &verr) {
					_ = h.writeError(ctx, ws, CodeInvalidForm, "invalid quote form", verr.Violations)
				} else {
					_ = h.writeError(ctx, ws, CodeInvalidForm, err.Error(), nil)
				}
				continue
			}
			if !h.allow(ctx, ws, brokerID) {
				continue
			}
			h.dispatch(ctx, ws, brokerID, sessionID, func(c *assistant.Controller) (*assistant.Pending, error) {
				return c.SubmitQuote(ctx, profile)
			})
		default:
			_ = h.writeError(ctx, ws, CodeInvalidFrame, "unknown frame type "+frame.Type, nil)
			continue
		}

		h.touch(brokerID)
	}
}

func (h *WebSocketHandler) allow(ctx context.Context, ws *websocket.Conn, brokerID string) bool {
	if h.opts.Limiter == nil || h.opts.Limiter.Allow(brokerID) {
		return true
	}
	metrics.RateLimitHits.WithLabelValues("ws_chat").Inc()
	_ = h.writeError(ctx, ws, CodeRateLimited, "rate limit exceeded", nil)
	return false
}

// dispatch queues an action. Replies arrive through the event loop; only
// failures are reported here.
func (h *WebSocketHandler) dispatch(ctx context.Context, ws *websocket.Conn, brokerID, sessionID string, send func(*assistant.Controller) (*assistant.Pending, error)) {
	p, err := send(h.sessions.Get(brokerID, sessionID))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			_ = h.writeError(ctx, ws, CodeSessionUnavailable, "chat session unavailable", nil)
		}
		return
	}

	go func() {
		_, err := p.Wait(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, assistant.ErrNoQuoteFormPending):
			_ = h.writeError(ctx, ws, CodeNoQuoteFormPending, "no quote form pending", nil)
		default:
			slog.Error("Chat action failed", "broker_id", brokerID, "session_id", sessionID, "error", err)
			_ = h.writeError(ctx, ws, CodeSessionUnavailable, "chat action failed", nil)
		}
	}()
}

func (h *WebSocketHandler) touch(brokerID string) {
	if h.opts.LastSeen == nil {
		return
	}
	go func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.opts.LastSeen.UpdateLastSeen(updateCtx, brokerID, time.Now()); err != nil {
			slog.Warn("Failed to update last seen", "error", err)
		}
	}()
}

func (h *WebSocketHandler) writeError(ctx context.Context, ws *websocket.Conn, code, message string, violations map[string]string) error {
	return h.writeFrame(ctx, ws, serverFrame{Type: FrameError, Code: code, Error: message, Violations: violations})
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, frame serverFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
