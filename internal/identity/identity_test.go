package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/store"
)

// fakeRepo implements the broker methods; anything else panics through the nil embed.
type fakeRepo struct {
	store.Repository

	mu       sync.Mutex
	brokers  map[string]domain.Broker
	lastSeen int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{brokers: make(map[string]domain.Broker)}
}

func (f *fakeRepo) GetBroker(_ context.Context, brokerID string) (*domain.Broker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.brokers[brokerID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeRepo) UpsertBroker(_ context.Context, b *domain.Broker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brokers[b.BrokerID] = *b
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, brokerID string, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.brokers[brokerID]
	b.LastSeenAt = lastSeen
	f.brokers[brokerID] = b
	f.lastSeen++
	return nil
}

func serveWithIdentity(t *testing.T, repo store.Repository, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var brokerID, sessionID string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		brokerID = BrokerIDFromContext(r.Context())
		sessionID = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, brokerID, sessionID
}

func TestMiddlewareIssuesBrokerCookie(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec, brokerID, sessionID := serveWithIdentity(t, repo, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if !isValidBrokerID(brokerID) {
		t.Fatalf("broker id %q does not match brk_ format", brokerID)
	}
	if sessionID != DefaultSessionIDValue {
		t.Fatalf("session id = %q, want default", sessionID)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != BrokerCookieName || cookies[0].Value != brokerID {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatal("broker cookie is not HttpOnly")
	}

	b, _ := repo.GetBroker(context.Background(), brokerID)
	if b == nil || !strings.HasPrefix(b.DisplayName, "broker-") {
		t.Fatalf("broker row not created: %+v", b)
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	id := "brk_" + strings.Repeat("ab", 16)

	req := httptest.NewRequest(http.MethodGet, "/api/me?session_id=tab-7", nil)
	req.AddCookie(&http.Cookie{Name: BrokerCookieName, Value: id})
	_, brokerID, sessionID := serveWithIdentity(t, repo, req)

	if brokerID != id {
		t.Fatalf("broker id = %q, want %q", brokerID, id)
	}
	if sessionID != "tab-7" {
		t.Fatalf("session id = %q, want tab-7", sessionID)
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: BrokerCookieName, Value: "brk_../../etc"})
	_, brokerID, _ := serveWithIdentity(t, repo, req)

	if brokerID == "brk_../../etc" || !isValidBrokerID(brokerID) {
		t.Fatalf("forged cookie accepted: %q", brokerID)
	}
}

func TestMiddlewareRefreshesLastSeen(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	id := "brk_" + strings.Repeat("cd", 16)
	old := time.Now().Add(-time.Hour)
	repo.brokers[id] = domain.Broker{BrokerID: id, LastSeenAt: old}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: BrokerCookieName, Value: id})
	serveWithIdentity(t, repo, req)

	if repo.lastSeen != 1 {
		t.Fatalf("UpdateLastSeen calls = %d, want 1", repo.lastSeen)
	}
}

func TestSessionIDFromHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"tab-1", "tab-1"},
		{"  tab.2  ", "tab.2"},
		{"", DefaultSessionIDValue},
		{"has:colon", DefaultSessionIDValue},
		{"has space", DefaultSessionIDValue},
		{strings.Repeat("x", 129), DefaultSessionIDValue},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set(SessionHeaderName, tt.header)
		}
		if got := sessionIDFromRequest(req); got != tt.want {
			t.Errorf("sessionIDFromRequest(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestWithBroker(t *testing.T) {
	t.Parallel()

	ctx := WithBroker(context.Background(), "brk_0123456789abcdef", "tab-3")
	if BrokerIDFromContext(ctx) != "brk_0123456789abcdef" {
		t.Fatal("broker id not stored")
	}
	if DisplayNameFromContext(ctx) != "broker-89abcdef" {
		t.Fatalf("display name = %q", DisplayNameFromContext(ctx))
	}
	if SessionIDFromContext(ctx) != "tab-3" {
		t.Fatal("session id not stored")
	}
	if SessionIDFromContext(context.Background()) != DefaultSessionIDValue {
		t.Fatal("missing session id did not default")
	}
}
