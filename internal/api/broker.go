package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/identity"
	"github.com/ashureev/mediai-broker/internal/quote"
	"github.com/go-chi/chi/v5"
)

// BrokerHandler serves the broker profile and frontend configuration.
type BrokerHandler struct {
	*Handler
}

// NewBrokerHandler creates a new broker handler.
func NewBrokerHandler(base *Handler) *BrokerHandler {
	return &BrokerHandler{Handler: base}
}

// RegisterRoutes registers broker routes.
func (h *BrokerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
	})
}

// GetMe returns the current broker's information.
func (h *BrokerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	if brokerID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	broker, err := h.repo.GetBroker(r.Context(), brokerID)
	if err != nil || broker == nil {
		Error(w, http.StatusUnauthorized, "broker not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"broker_id":    broker.BrokerID,
		"display_name": broker.DisplayName,
		"session_id":   identity.SessionIDFromContext(r.Context()),
		"last_seen_at": broker.LastSeenAt,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *BrokerHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	replyDelay := 1500 * time.Millisecond
	currency := quote.DefaultCurrency
	period := domain.PeriodAnnual
	if h.cfg != nil {
		replyDelay = h.cfg.Assistant.ReplyDelay
		currency = h.cfg.Quote.Currency
		period = h.cfg.Quote.Period
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"reply_delay_ms": replyDelay.Milliseconds(),
		"currency":       currency,
		"period":         period,
		"quote_form":     domain.NewQuoteFormRequest(),
		"session_header": identity.SessionHeaderName,
	})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	*Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(base *Handler) *HealthHandler {
	return &HealthHandler{Handler: base}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	healthCheckTimeout := 5 * time.Second
	if h.cfg != nil {
		healthCheckTimeout = h.cfg.Timeout.HealthCheck
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
