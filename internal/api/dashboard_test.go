//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/identity"
	"github.com/ashureev/mediai-broker/internal/store"
	"github.com/go-chi/chi/v5"
)

const testBroker = "brk_0123456789abcdef0123456789abcdef"

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "mediai.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestRouter(repo store.Repository) http.Handler {
	base := NewHandler(repo, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithBroker(r.Context(), testBroker, "tab-1")))
		})
	})
	NewDashboardHandler(base).RegisterRoutes(r)
	NewBrokerHandler(base).RegisterRoutes(r)
	NewHealthHandler(base).RegisterHealth(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func saveOwnQuote(t *testing.T, repo store.Repository, id string) {
	t.Helper()
	now := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	if err := repo.SaveQuote(context.Background(), &domain.SavedQuote{
		ID: id, BrokerID: testBroker, ClientName: "Jane Roe", Date: "2026-03-14",
		InsuranceType: "Family Health", Premium: 1260, Currency: "USD", Period: domain.PeriodAnnual,
		PremiumText: "$1,260.00/year", Status: domain.QuotePending, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("SaveQuote: %v", err)
	}
}

func TestDashboardStats(t *testing.T) {
	t.Parallel()
	h := newTestRouter(newTestRepo(t))

	rec := do(t, h, http.MethodGet, "/api/dashboard/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[domain.DashboardStats](t, rec)
	want := domain.DashboardStats{TotalQuotes: 5, ActiveClients: 4, Conversations: 5, AcceptanceRate: 40}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}

func TestDashboardListsWithSearch(t *testing.T) {
	t.Parallel()
	h := newTestRouter(newTestRepo(t))

	rec := do(t, h, http.MethodGet, "/api/dashboard/quotes?q=johnson", "")
	quotes := decode[struct {
		Quotes []domain.SavedQuote `json:"quotes"`
	}](t, rec)
	if len(quotes.Quotes) != 1 || quotes.Quotes[0].ClientName != "Sarah Johnson" {
		t.Fatalf("unexpected quotes %+v", quotes.Quotes)
	}

	rec = do(t, h, http.MethodGet, "/api/dashboard/clients", "")
	clients := decode[struct {
		Clients []domain.Client `json:"clients"`
	}](t, rec)
	if len(clients.Clients) != 5 {
		t.Fatalf("clients = %d, want 5", len(clients.Clients))
	}

	rec = do(t, h, http.MethodGet, "/api/dashboard/conversations?q=nobody", "")
	conversations := decode[struct {
		Conversations []domain.ConversationSummary `json:"conversations"`
	}](t, rec)
	if conversations.Conversations == nil || len(conversations.Conversations) != 0 {
		t.Fatalf("conversations = %+v, want empty list", conversations.Conversations)
	}
}

func TestDashboardUpdateQuoteStatus(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	saveOwnQuote(t, repo, "QT-1")
	h := newTestRouter(repo)

	rec := do(t, h, http.MethodPatch, "/api/dashboard/quotes/QT-1", `{"status":"accepted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.SavedQuote](t, rec); got.Status != domain.QuoteAccepted {
		t.Fatalf("status = %s, want accepted", got.Status)
	}

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"invalid status", "/api/dashboard/quotes/QT-1", `{"status":"lost"}`, http.StatusUnprocessableEntity},
		{"bad json", "/api/dashboard/quotes/QT-1", `{`, http.StatusBadRequest},
		{"unknown quote", "/api/dashboard/quotes/QT-404", `{"status":"rejected"}`, http.StatusNotFound},
		{"demo quote", "/api/dashboard/quotes/demo-quote-1", `{"status":"rejected"}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		if rec := do(t, h, http.MethodPatch, tt.target, tt.body); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestDashboardDeleteQuote(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	saveOwnQuote(t, repo, "QT-1")
	h := newTestRouter(repo)

	if rec := do(t, h, http.MethodDelete, "/api/dashboard/quotes/QT-1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/dashboard/quotes/QT-1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/dashboard/quotes/demo-quote-2", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("demo delete status = %d", rec.Code)
	}
}

func TestGetMeAndConfig(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	now := time.Now()
	if err := repo.UpsertBroker(context.Background(), &domain.Broker{
		BrokerID: testBroker, DisplayName: "broker-89abcdef", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertBroker: %v", err)
	}
	h := newTestRouter(repo)

	me := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/me", ""))
	if me["broker_id"] != testBroker || me["session_id"] != "tab-1" {
		t.Fatalf("unexpected /api/me %+v", me)
	}

	cfg := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/config", ""))
	if cfg["reply_delay_ms"] != float64(1500) || cfg["currency"] != "USD" {
		t.Fatalf("unexpected /api/config %+v", cfg)
	}
}

type brokenRepo struct {
	store.Repository
}

func (brokenRepo) Ping(context.Context) error { return errors.New("disk gone") }

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(newTestRepo(t)), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	rec = do(t, newTestRouter(brokenRepo{}), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "degraded" {
		t.Fatalf("unexpected body %+v", body)
	}
}
