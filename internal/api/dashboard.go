package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/identity"
	"github.com/ashureev/mediai-broker/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxStatusBodySize = 4 << 10

// DashboardHandler serves the broker dashboard tables and stats.
type DashboardHandler struct {
	*Handler
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(base *Handler) *DashboardHandler {
	return &DashboardHandler{Handler: base}
}

// StatusRequest is the body of PATCH /api/dashboard/quotes/{id}.
type StatusRequest struct {
	Status domain.QuoteStatus `json:"status"`
}

// RegisterRoutes registers dashboard routes.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/dashboard", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/quotes", h.ListQuotes)
		r.Patch("/quotes/{quoteID}", h.UpdateQuoteStatus)
		r.Delete("/quotes/{quoteID}", h.DeleteQuote)
		r.Get("/clients", h.ListClients)
		r.Get("/conversations", h.ListConversations)
	})
}

func brokerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	brokerID := identity.BrokerIDFromContext(r.Context())
	if brokerID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return brokerID, true
}

// Stats returns the dashboard headline figures.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerFromRequest(w, r)
	if !ok {
		return
	}

	stats, err := h.repo.Stats(r.Context(), brokerID)
	if err != nil {
		slog.Error("Failed to compute dashboard stats", "broker_id", brokerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}

// ListQuotes returns saved quotes matching ?q=.
func (h *DashboardHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerFromRequest(w, r)
	if !ok {
		return
	}

	quotes, err := h.repo.ListSavedQuotes(r.Context(), brokerID, r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("Failed to list saved quotes", "broker_id", brokerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load quotes")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

// ListClients returns clients matching ?q=.
func (h *DashboardHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerFromRequest(w, r)
	if !ok {
		return
	}

	clients, err := h.repo.ListClients(r.Context(), brokerID, r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("Failed to list clients", "broker_id", brokerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load clients")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"clients": clients})
}

// ListConversations returns conversation history rows matching ?q=.
func (h *DashboardHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerFromRequest(w, r)
	if !ok {
		return
	}

	conversations, err := h.repo.ListConversations(r.Context(), brokerID, r.URL.Query().Get("q"))
	if err != nil {
		slog.Error("Failed to list conversations", "broker_id", brokerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

// UpdateQuoteStatus changes the status of a saved quote.
func (h *DashboardHandler) UpdateQuoteStatus(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerFromRequest(w, r)
	if !ok {
		return
	}
	quoteID := chi.URLParam(r, "quoteID")

	r.Body = http.MaxBytesReader(w, r.Body, maxStatusBodySize)
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		Error(w, http.StatusUnprocessableEntity, "status must be pending, accepted or rejected")
		return
	}

	if err := h.repo.UpdateQuoteStatus(r.Context(), brokerID, quoteID, req.Status); err != nil {
		h.writeStoreError(w, err, "failed to update quote", "quote_id", quoteID)
		return
	}

	updated, err := h.repo.GetSavedQuote(r.Context(), brokerID, quoteID)
	if err != nil {
		h.writeStoreError(w, err, "failed to load quote", "quote_id", quoteID)
		return
	}
	slog.Info("Saved quote status changed", "broker_id", brokerID, "quote_id", quoteID, "status", req.Status)
	JSON(w, http.StatusOK, updated)
}

// DeleteQuote removes a saved quote.
func (h *DashboardHandler) DeleteQuote(w http.ResponseWriter, r *http.Request) {
	brokerID, ok := brokerFromRequest(w, r)
	if !ok {
		return
	}
	quoteID := chi.URLParam(r, "quoteID")

	if err := h.repo.DeleteSavedQuote(r.Context(), brokerID, quoteID); err != nil {
		h.writeStoreError(w, err, "failed to delete quote", "quote_id", quoteID)
		return
	}
	slog.Info("Saved quote deleted", "broker_id", brokerID, "quote_id", quoteID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *DashboardHandler) writeStoreError(w http.ResponseWriter, err error, message string, attrs ...any) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "quote not found")
	case errors.Is(err, store.ErrReadOnly):
		Error(w, http.StatusForbidden, "demo rows cannot be changed")
	default:
		slog.Error(message, append(attrs, "error", err)...)
		Error(w, http.StatusInternalServerError, message)
	}
}
