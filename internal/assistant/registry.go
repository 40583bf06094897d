package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/metrics"
)

const (
	recordTimeout    = 5 * time.Second
	unknownClient    = "Unknown client"
	summaryDateShape = "2006-01-02"
)

// ConversationRecorder persists conversation history rows for the dashboard.
type ConversationRecorder interface {
	UpsertConversation(ctx context.Context, c *domain.ConversationSummary) error
}

// RegistryConfig configures the controllers a Registry creates.
type RegistryConfig struct {
	ReplyDelay time.Duration
	Assembler  QuoteAssembler
	Recorder   ConversationRecorder
	Log        ConversationLogger
	Logger     *slog.Logger
	Now        func() time.Time
}

// Registry holds one controller per broker tab session.
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Log == nil {
		cfg.Log = noopConversationLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Controller),
	}
}

// SessionKey identifies a broker tab session.
func SessionKey(brokerID, sessionID string) string {
	return brokerID + ":" + sessionID
}

// Get returns the controller for a session, starting one on first use.
func (r *Registry) Get(brokerID, sessionID string) *Controller {
	key := SessionKey(brokerID, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[key]; ok {
		return c
	}

	c := NewController(key, ControllerConfig{
		ReplyDelay: r.cfg.ReplyDelay,
		Assembler:  r.cfg.Assembler,
		Observer:   r.observer(brokerID, sessionID),
		Logger:     r.cfg.Logger,
		Now:        r.cfg.Now,
	})
	r.sessions[key] = c
	metrics.ActiveSessions.Inc()
	r.cfg.Logger.Info("Chat session started", "broker_id", brokerID, "session_id", sessionID)
	return c
}

// Lookup returns the controller for a session if one is running.
func (r *Registry) Lookup(brokerID, sessionID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[SessionKey(brokerID, sessionID)]
	return c, ok
}

// Reset closes and forgets a session. It reports whether one existed.
func (r *Registry) Reset(brokerID, sessionID string) bool {
	key := SessionKey(brokerID, sessionID)

	r.mu.Lock()
	c, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if !ok {
		return false
	}
	c.Close()
	metrics.ActiveSessions.Dec()
	r.cfg.Logger.Info("Chat session reset", "broker_id", brokerID, "session_id", sessionID)
	return true
}

// Sweep closes sessions idle for longer than ttl and returns how many were closed.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.cfg.Now().Add(-ttl)

	r.mu.Lock()
	var expired []*Controller
	for key, c := range r.sessions {
		if c.LastActive().Before(cutoff) && !c.Typing() {
			expired = append(expired, c)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
		metrics.ActiveSessions.Dec()
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every session and waits for queued replies to land.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Controller, 0, len(r.sessions))
	for key, c := range r.sessions {
		all = append(all, c)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
		metrics.ActiveSessions.Dec()
	}
	for _, c := range all {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) observer(brokerID, sessionID string) Observer {
	return func(s Session, msg domain.ChatMessage) {
		metrics.ChatMessagesTotal.WithLabelValues(string(msg.Author), string(msg.Kind)).Inc()
		r.logMessage(brokerID, sessionID, msg)

		if msg.Quote != nil {
			metrics.QuotesGenerated.WithLabelValues(string(msg.Quote.Profile.CoverageClass)).Inc()
		}

		if r.cfg.Recorder == nil {
			return
		}
		summary := summarize(brokerID, sessionID, s, msg.Timestamp)
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.cfg.Recorder.UpsertConversation(ctx, summary); err != nil {
			r.cfg.Logger.Warn("failed to record conversation summary",
				"broker_id", brokerID,
				"session_id", sessionID,
				"error", err,
			)
		}
	}
}

func (r *Registry) logMessage(brokerID, sessionID string, msg domain.ChatMessage) {
	event := ConversationLogEvent{
		Timestamp:  msg.Timestamp.UTC().Format(time.RFC3339Nano),
		BrokerID:   brokerID,
		SessionID:  sessionID,
		Channel:    "chat",
		ContentRaw: msg.Body,
		Meta: map[string]any{
			"message_id": msg.ID,
			"seq":        msg.Seq,
		},
	}
	switch {
	case msg.Author == domain.AuthorUser:
		event.Direction = "inbound"
		event.EventType = "chat_user_message"
	case msg.Kind == domain.KindQuoteForm:
		event.Direction = "outbound"
		event.EventType = "chat_quote_form"
	case msg.Kind == domain.KindQuote:
		event.Direction = "outbound"
		event.EventType = "chat_quote"
		event.Meta["quote_id"] = msg.Quote.ID
		event.Meta["premium"] = msg.Quote.Premium
		event.Meta["coverage_class"] = msg.Quote.Profile.CoverageClass
	default:
		event.Direction = "outbound"
		event.EventType = "chat_assistant_message"
	}
	r.cfg.Log.Log(event)
}

// summarize builds the dashboard history row for a session.
func summarize(brokerID, sessionID string, s Session, at time.Time) *domain.ConversationSummary {
	clientName := unknownClient
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if q := s.Messages[i].Quote; q != nil && q.Profile.Name != "" {
			clientName = q.Profile.Name
			break
		}
	}
	return &domain.ConversationSummary{
		ID:         SessionKey(brokerID, sessionID),
		BrokerID:   brokerID,
		ClientName: clientName,
		Date:       at.Format(summaryDateShape),
		Messages:   s.Len(),
		HasQuote:   s.HasQuote(),
		UpdatedAt:  at,
	}
}

// StartReaper periodically closes chat sessions idle for longer than ttl.
func StartReaper(ctx context.Context, r *Registry, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Chat session reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(ttl); n > 0 {
					slog.Info("Chat session reaper closed idle sessions", "count", n, "remaining", r.Len())
				}
			case <-ctx.Done():
				slog.Info("Chat session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
