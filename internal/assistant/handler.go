package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/mediai-broker/internal/api"
	"github.com/ashureev/mediai-broker/internal/config"
	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/identity"
	"github.com/ashureev/mediai-broker/internal/metrics"
	"github.com/ashureev/mediai-broker/internal/quote"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// QuoteStore persists quotes a broker saves from the chat.
type QuoteStore interface {
	SaveQuote(ctx context.Context, q *domain.SavedQuote) error
}

// ChatRequest is the body of POST /api/chat/messages.
type ChatRequest struct {
	Message string `json:"message"`
}

// TranscriptResponse is the body of GET /api/chat/transcript.
type TranscriptResponse struct {
	SessionID string               `json:"session_id"`
	State     State                `json:"state"`
	Typing    bool                 `json:"typing"`
	Messages  []domain.ChatMessage `json:"messages"`
}

type validationResponse struct {
	Error      string            `json:"error"`
	Violations map[string]string `json:"violations"`
}

// Handler serves the chat HTTP API.
type Handler struct {
	sessions    *Registry
	quotes      QuoteStore
	rateLimiter *RateLimiter

	maxBodySize int64
	keepalive   time.Duration
	retryDelay  time.Duration
	eventBuffer int
	now         func() time.Time
}

// NewHandler creates a chat handler. A nil cfg uses defaults.
func NewHandler(sessions *Registry, quotes QuoteStore, cfg *config.Config) *Handler {
	h := &Handler{
		sessions:    sessions,
		quotes:      quotes,
		maxBodySize: defaultMaxRequestBodySize,
		keepalive:   10 * time.Second,
		retryDelay:  5 * time.Second,
		eventBuffer: 32,
		now:         time.Now,
	}

	rateLimitRequests := 30
	rateLimitWindow := time.Minute
	if cfg != nil {
		rateLimitRequests = cfg.RateLimit.RequestsPerWindow
		rateLimitWindow = cfg.RateLimit.WindowDuration
		h.maxBodySize = cfg.SSE.MaxRequestBodySize
		h.keepalive = cfg.SSE.KeepaliveInterval
		h.retryDelay = cfg.SSE.RetryDelay
		if cfg.Assistant.EventBuffer > 0 {
			h.eventBuffer = cfg.Assistant.EventBuffer
		}
	}
	h.rateLimiter = NewRateLimiter(rateLimitRequests, rateLimitWindow)
	return h
}

// RateLimiter returns the limiter shared with other chat transports.
func (h *Handler) RateLimiter() *RateLimiter {
	return h.rateLimiter
}

// RegisterRoutes registers chat routes (requires identity middleware).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/messages", h.HandleMessage)
		r.Post("/quote", h.HandleQuote)
		r.Get("/transcript", h.HandleTranscript)
		r.Get("/stream", h.HandleStream)
		r.Post("/reset", h.HandleReset)
	})
	r.Post("/api/quotes/{quoteID}/save", h.HandleSaveQuote)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) allow(w http.ResponseWriter, brokerID, endpoint string) bool {
	if h.rateLimiter.Allow(brokerID) {
		return true
	}
	metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
	api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// enqueue hands an action to the session controller. A controller closed by a
// concurrent reset is replaced once.
func (h *Handler) enqueue(brokerID, sessionID string, send func(*Controller) (*Pending, error)) (*Pending, error) {
	p, err := send(h.sessions.Get(brokerID, sessionID))
	if errors.Is(err, ErrSessionClosed) {
		p, err = send(h.sessions.Get(brokerID, sessionID))
	}
	return p, err
}

// HandleMessage handles POST /api/chat/messages.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if brokerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.allow(w, brokerID, "chat_messages") {
		return
	}

	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	slog.Info("Chat message received",
		"broker_id", brokerID,
		"session_id", sessionID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	p, err := h.enqueue(brokerID, sessionID, func(c *Controller) (*Pending, error) {
		return c.Send(r.Context(), req.Message)
	})
	if err != nil {
		h.enqueueFailed(w, r, err)
		return
	}

	res, err := p.Wait(r.Context())
	if err != nil {
		// The reply is still appended to the transcript and published on the stream.
		slog.Info("Chat client left before reply", "broker_id", brokerID, "session_id", sessionID, "error", err)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

// HandleQuote handles POST /api/chat/quote.
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if brokerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.allow(w, brokerID, "chat_quote") {
		return
	}

	var form quote.Form
	if !h.decode(w, r, &form) {
		return
	}
	profile, err := quote.ParseForm(form)
	if err != nil {
		var verr *quote.ValidationError
		if errors.As(err, &verr) {
			api.JSON(w, http.StatusUnprocessableEntity, validationResponse{
				Error:      "invalid quote form",
				Violations: verr.Violations,
			})
			return
		}
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.enqueue(brokerID, sessionID, func(c *Controller) (*Pending, error) {
		return c.SubmitQuote(r.Context(), profile)
	})
	if err != nil {
		h.enqueueFailed(w, r, err)
		return
	}

	res, err := p.Wait(r.Context())
	switch {
	case errors.Is(err, ErrNoQuoteFormPending):
		api.Error(w, http.StatusConflict, "no quote form pending")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Info("Quote client left before reply", "broker_id", brokerID, "session_id", sessionID)
		return
	case err != nil:
		slog.Error("Quote submission failed", "broker_id", brokerID, "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to generate quote")
		return
	}

	slog.Info("Quote generated",
		"broker_id", brokerID,
		"session_id", sessionID,
		"quote_id", res.Reply.Quote.ID,
		"premium", res.Reply.Quote.Premium,
	)
	api.JSON(w, http.StatusOK, map[string]any{"message": res.Reply})
}

func (h *Handler) enqueueFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	slog.Error("Failed to queue chat action",
		"broker_id", identity.BrokerIDFromContext(r.Context()),
		"session_id", identity.SessionIDFromContext(r.Context()),
		"error", err,
	)
	api.Error(w, http.StatusServiceUnavailable, "chat session unavailable")
}

// HandleTranscript handles GET /api/chat/transcript.
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if brokerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	c := h.sessions.Get(brokerID, sessionID)
	s := c.Snapshot()
	api.JSON(w, http.StatusOK, TranscriptResponse{
		SessionID: sessionID,
		State:     s.State,
		Typing:    c.Typing(),
		Messages:  s.Messages,
	})
}

// HandleReset handles POST /api/chat/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if brokerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	existed := h.sessions.Reset(brokerID, sessionID)
	api.JSON(w, http.StatusOK, map[string]bool{"reset": existed})
}

// HandleSaveQuote handles POST /api/quotes/{quoteID}/save.
func (h *Handler) HandleSaveQuote(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if brokerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	quoteID := chi.URLParam(r, "quoteID")

	c, ok := h.sessions.Lookup(brokerID, sessionID)
	if !ok {
		api.Error(w, http.StatusNotFound, "quote not found")
		return
	}
	q, ok := c.Snapshot().FindQuote(quoteID)
	if !ok {
		api.Error(w, http.StatusNotFound, "quote not found")
		return
	}

	saved := quote.NewSavedQuote(brokerID, q, h.now())
	if err := h.quotes.SaveQuote(r.Context(), &saved); err != nil {
		slog.Error("Failed to save quote", "broker_id", brokerID, "quote_id", quoteID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to save quote")
		return
	}
	metrics.QuotesSaved.Inc()

	slog.Info("Quote saved", "broker_id", brokerID, "session_id", sessionID, "quote_id", quoteID)
	api.JSON(w, http.StatusCreated, saved)
}

// HandleStream handles GET /api/chat/stream. Messages after Last-Event-ID
// (a transcript sequence number) are replayed before live events.
//
//nolint:gocognit,gocyclo // SSE lifecycle handling intentionally keeps branches together.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if brokerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil && parsed > 0 {
			lastEventID = parsed
			slog.Info("SSE client reconnecting with Last-Event-ID",
				"broker_id", brokerID,
				"session_id", sessionID,
				"last_event_id", lastEventID,
			)
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	c := h.sessions.Get(brokerID, sessionID)
	// Subscribe before the snapshot so nothing appended in between is lost.
	events, unsubscribe := c.Subscribe(h.eventBuffer)
	defer unsubscribe()
	snapshot := c.Snapshot()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", h.retryDelay.Milliseconds())); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "broker_id", brokerID)
		return
	}

	sent := lastEventID
	for _, msg := range snapshot.After(lastEventID) {
		if err := writeMessageEvent(w, msg); err != nil {
			slog.Warn("failed to replay SSE message", "error", err, "broker_id", brokerID)
			return
		}
		sent = msg.Seq
	}
	connected := fmt.Sprintf(`{"status":"connected","session_id":%q,"last_seq":%d}`, sessionID, snapshot.Len())
	if err := writeSSE(w, "connected", connected); err != nil {
		slog.Warn("failed to write SSE connected event", "error", err, "broker_id", brokerID)
		return
	}
	flusher.Flush()

	slog.Info("SSE connection established",
		"broker_id", brokerID,
		"session_id", sessionID,
		"replayed", sent-lastEventID,
		"reconnect", lastEventID > 0,
	)

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("Chat stream disconnected", "broker_id", brokerID, "session_id", sessionID)
			return
		case ev, ok := <-events:
			if !ok {
				// Controller reset or reaped.
				if err := writeSSE(w, "reset", `{"status":"session_closed"}`); err == nil {
					flusher.Flush()
				}
				return
			}
			var err error
			switch ev.Type {
			case EventMessage:
				if ev.Message.Seq <= sent {
					continue
				}
				err = writeMessageEvent(w, *ev.Message)
				sent = ev.Message.Seq
			case EventTyping:
				err = writeSSE(w, "typing", fmt.Sprintf(`{"typing":%t}`, ev.Typing))
			}
			if err != nil {
				slog.Warn("failed to write SSE event", "error", err, "broker_id", brokerID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "broker_id", brokerID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeMessageEvent(w io.Writer, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	return writeSSEWithID(w, msg.Seq, "message", string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
