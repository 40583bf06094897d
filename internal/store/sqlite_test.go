package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
)

func newTestStore(t *testing.T, opts ...Option) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "mediai.db"), opts...)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func savedQuote(id, brokerID, client string) *domain.SavedQuote {
	now := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	return &domain.SavedQuote{
		ID:            id,
		BrokerID:      brokerID,
		ClientName:    client,
		Date:          "2026-03-14",
		InsuranceType: "Family Health",
		Premium:       1260,
		Currency:      "USD",
		Period:        domain.PeriodAnnual,
		PremiumText:   "$1,260.00/year",
		Status:        domain.QuotePending,
		Quote: &domain.Quote{
			ID:      id,
			Premium: 1260,
			Profile: domain.ClientProfile{Name: client, Age: 55, CoverageClass: domain.CoverageFamily},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteBrokerRoundTrip(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetBroker(ctx, "brk_missing")
	if err != nil || got != nil {
		t.Fatalf("GetBroker(missing) = %v, %v; want nil, nil", got, err)
	}

	now := time.Unix(1_700_000_000, 0)
	if err := repo.UpsertBroker(ctx, &domain.Broker{
		BrokerID: "brk_1", DisplayName: "broker-1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertBroker: %v", err)
	}
	later := now.Add(time.Hour)
	if err := repo.UpdateLastSeen(ctx, "brk_1", later); err != nil {
		t.Fatalf("UpdateLastSeen: %v", err)
	}

	got, err = repo.GetBroker(ctx, "brk_1")
	if err != nil {
		t.Fatalf("GetBroker: %v", err)
	}
	if got.DisplayName != "broker-1" || !got.LastSeenAt.Equal(later) {
		t.Fatalf("unexpected broker %+v", got)
	}
}

func TestSQLiteDemoRowsSharedWithEveryBroker(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	quotes, err := repo.ListSavedQuotes(ctx, "brk_any", "")
	if err != nil {
		t.Fatalf("ListSavedQuotes: %v", err)
	}
	if len(quotes) != len(demoQuotes) {
		t.Fatalf("quotes = %d, want %d", len(quotes), len(demoQuotes))
	}
	if quotes[0].ClientName != "John Smith" || quotes[0].PremiumText != "$450.00/month" {
		t.Fatalf("unexpected newest demo quote %+v", quotes[0])
	}

	stats, err := repo.Stats(ctx, "brk_any")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := domain.DashboardStats{TotalQuotes: 5, ActiveClients: 4, Conversations: 5, AcceptanceRate: 40}
	if *stats != want {
		t.Fatalf("stats = %+v, want %+v", *stats, want)
	}
}

func TestSQLiteWithoutDemoData(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t, WithDemoData(false))

	stats, err := repo.Stats(context.Background(), "brk_1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if *stats != (domain.DashboardStats{}) {
		t.Fatalf("stats = %+v, want zero", *stats)
	}
}

func TestSQLiteSaveQuoteScopedToBroker(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t, WithDemoData(false))
	ctx := context.Background()

	if err := repo.SaveQuote(ctx, savedQuote("QT-1", "brk_1", "Jane Roe")); err != nil {
		t.Fatalf("SaveQuote: %v", err)
	}
	// Saving twice keeps one row.
	if err := repo.SaveQuote(ctx, savedQuote("QT-1", "brk_1", "Jane Roe")); err != nil {
		t.Fatalf("SaveQuote again: %v", err)
	}

	mine, err := repo.ListSavedQuotes(ctx, "brk_1", "")
	if err != nil {
		t.Fatalf("ListSavedQuotes: %v", err)
	}
	if len(mine) != 1 || mine[0].Quote == nil || mine[0].Quote.Premium != 1260 {
		t.Fatalf("unexpected saved quotes %+v", mine)
	}

	theirs, err := repo.ListSavedQuotes(ctx, "brk_2", "")
	if err != nil {
		t.Fatalf("ListSavedQuotes: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("other broker sees %d quotes", len(theirs))
	}
	if _, err := repo.GetSavedQuote(ctx, "brk_2", "QT-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSavedQuote(other broker) err = %v, want ErrNotFound", err)
	}

	clients, err := repo.ListClients(ctx, "brk_1", "")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "Jane Roe" || clients[0].Policies != 0 {
		t.Fatalf("unexpected clients %+v", clients)
	}
}

func TestSQLiteUpdateQuoteStatusTracksPolicies(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t, WithDemoData(false))
	ctx := context.Background()

	if err := repo.SaveQuote(ctx, savedQuote("QT-1", "brk_1", "Jane Roe")); err != nil {
		t.Fatalf("SaveQuote: %v", err)
	}
	if err := repo.UpdateQuoteStatus(ctx, "brk_1", "QT-1", domain.QuoteAccepted); err != nil {
		t.Fatalf("UpdateQuoteStatus: %v", err)
	}

	stats, err := repo.Stats(ctx, "brk_1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ActiveClients != 1 || stats.AcceptanceRate != 100 {
		t.Fatalf("stats after accept = %+v", *stats)
	}

	if err := repo.UpdateQuoteStatus(ctx, "brk_1", "QT-1", domain.QuoteRejected); err != nil {
		t.Fatalf("UpdateQuoteStatus: %v", err)
	}
	stats, err = repo.Stats(ctx, "brk_1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ActiveClients != 0 || stats.AcceptanceRate != 0 {
		t.Fatalf("stats after reject = %+v", *stats)
	}

	if err := repo.UpdateQuoteStatus(ctx, "brk_2", "QT-1", domain.QuoteAccepted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other broker update err = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateQuoteStatus(ctx, "brk_1", "QT-1", domain.QuoteStatus("lost")); err == nil {
		t.Fatal("invalid status accepted")
	}
}

func TestSQLiteDemoRowsAreReadOnly(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpdateQuoteStatus(ctx, "brk_1", "demo-quote-2", domain.QuoteAccepted); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("update demo quote err = %v, want ErrReadOnly", err)
	}
	if err := repo.DeleteSavedQuote(ctx, "brk_1", "demo-quote-2"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("delete demo quote err = %v, want ErrReadOnly", err)
	}
}

func TestSQLiteDeleteSavedQuote(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t, WithDemoData(false))
	ctx := context.Background()

	if err := repo.SaveQuote(ctx, savedQuote("QT-1", "brk_1", "Jane Roe")); err != nil {
		t.Fatalf("SaveQuote: %v", err)
	}
	if err := repo.DeleteSavedQuote(ctx, "brk_1", "QT-1"); err != nil {
		t.Fatalf("DeleteSavedQuote: %v", err)
	}
	if err := repo.DeleteSavedQuote(ctx, "brk_1", "QT-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteSearch(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		search string
		list   func(string) (int, error)
		want   int
	}{
		{"quotes by client", "smith", func(q string) (int, error) {
			rows, err := repo.ListSavedQuotes(ctx, "brk_1", q)
			return len(rows), err
		}, 1},
		{"quotes by type", "HEALTH", func(q string) (int, error) {
			rows, err := repo.ListSavedQuotes(ctx, "brk_1", q)
			return len(rows), err
		}, 3},
		{"quotes by status", "pending", func(q string) (int, error) {
			rows, err := repo.ListSavedQuotes(ctx, "brk_1", q)
			return len(rows), err
		}, 2},
		{"clients by email", "example.com", func(q string) (int, error) {
			rows, err := repo.ListClients(ctx, "brk_1", q)
			return len(rows), err
		}, 5},
		{"clients by phone", "(555) 345", func(q string) (int, error) {
			rows, err := repo.ListClients(ctx, "brk_1", q)
			return len(rows), err
		}, 1},
		{"conversations by client", "davis", func(q string) (int, error) {
			rows, err := repo.ListConversations(ctx, "brk_1", q)
			return len(rows), err
		}, 1},
		{"wildcards are literal", "%", func(q string) (int, error) {
			rows, err := repo.ListClients(ctx, "brk_1", q)
			return len(rows), err
		}, 0},
	}

	for _, tt := range tests {
		got, err := tt.list(tt.search)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %d rows, want %d", tt.name, got, tt.want)
		}
	}
}

func TestSQLiteUpsertConversation(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t, WithDemoData(false))
	ctx := context.Background()

	row := &domain.ConversationSummary{
		ID: "brk_1:tab-1", BrokerID: "brk_1", ClientName: "Unknown client",
		Date: "2026-03-14", Messages: 3, UpdatedAt: time.Unix(1_700_000_000, 0),
	}
	if err := repo.UpsertConversation(ctx, row); err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}
	row.ClientName = "Jane Roe"
	row.Messages = 4
	row.HasQuote = true
	if err := repo.UpsertConversation(ctx, row); err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}

	rows, err := repo.ListConversations(ctx, "brk_1", "")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if got := rows[0]; got.ClientName != "Jane Roe" || got.Messages != 4 || !got.HasQuote {
		t.Fatalf("unexpected conversation %+v", got)
	}
}

func TestAcceptanceRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		accepted, total int64
		want            int
	}{
		{0, 0, 0},
		{2, 5, 40},
		{2, 3, 67},
		{1, 3, 33},
		{4, 4, 100},
	}
	for _, tt := range tests {
		if got := AcceptanceRate(tt.accepted, tt.total); got != tt.want {
			t.Errorf("AcceptanceRate(%d, %d) = %d, want %d", tt.accepted, tt.total, got, tt.want)
		}
	}
}
