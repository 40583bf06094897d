package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/quote"
)

// Shared demo rows shown to every broker next to their own.
var (
	demoQuotes = []domain.SavedQuote{
		{ID: "demo-quote-1", ClientName: "John Smith", Date: "2023-06-15", InsuranceType: "Health", Premium: 450, Status: domain.QuoteAccepted},
		{ID: "demo-quote-2", ClientName: "Sarah Johnson", Date: "2023-06-12", InsuranceType: "Life", Premium: 120, Status: domain.QuotePending},
		{ID: "demo-quote-3", ClientName: "Michael Brown", Date: "2023-06-10", InsuranceType: "Family Health", Premium: 780, Status: domain.QuoteAccepted},
		{ID: "demo-quote-4", ClientName: "Emily Davis", Date: "2023-06-08", InsuranceType: "Corporate", Premium: 2500, Status: domain.QuoteRejected},
		{ID: "demo-quote-5", ClientName: "Robert Wilson", Date: "2023-06-05", InsuranceType: "Health", Premium: 350, Status: domain.QuotePending},
	}

	demoClients = []domain.Client{
		{ID: "demo-client-1", Name: "John Smith", Email: "john.smith@example.com", Phone: "(555) 123-4567", LastContact: "2023-06-15", Policies: 2},
		{ID: "demo-client-2", Name: "Sarah Johnson", Email: "sarah.j@example.com", Phone: "(555) 234-5678", LastContact: "2023-06-12", Policies: 1},
		{ID: "demo-client-3", Name: "Michael Brown", Email: "mbrown@example.com", Phone: "(555) 345-6789", LastContact: "2023-06-10", Policies: 3},
		{ID: "demo-client-4", Name: "Emily Davis", Email: "emily.davis@example.com", Phone: "(555) 456-7890", LastContact: "2023-06-08", Policies: 0},
		{ID: "demo-client-5", Name: "Robert Wilson", Email: "rwilson@example.com", Phone: "(555) 567-8901", LastContact: "2023-06-05", Policies: 1},
	}

	demoConversations = []domain.ConversationSummary{
		{ID: "demo-conversation-1", ClientName: "John Smith", Date: "2023-06-15", Messages: 12, HasQuote: true},
		{ID: "demo-conversation-2", ClientName: "Sarah Johnson", Date: "2023-06-12", Messages: 8, HasQuote: true},
		{ID: "demo-conversation-3", ClientName: "Michael Brown", Date: "2023-06-10", Messages: 15, HasQuote: true},
		{ID: "demo-conversation-4", ClientName: "Emily Davis", Date: "2023-06-08", Messages: 5, HasQuote: false},
		{ID: "demo-conversation-5", ClientName: "Robert Wilson", Date: "2023-06-05", Messages: 10, HasQuote: true},
	}
)

// seedDemoData inserts the shared demo rows. Existing rows are left alone.
func (s *SQLiteStore) seedDemoData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range demoQuotes {
		created, err := time.Parse(time.DateOnly, q.Date)
		if err != nil {
			return fmt.Errorf("parse demo date %q: %w", q.Date, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO saved_quotes (
				id, broker_id, client_name, date, insurance_type, premium, currency,
				period, premium_text, status, quote_json, created_at, updated_at
			) VALUES (?, '', ?, ?, ?, ?, 'USD', ?, ?, ?, NULL, ?, ?)`,
			q.ID, q.ClientName, q.Date, q.InsuranceType, q.Premium,
			string(domain.PeriodMonthly), quote.FormatPremium(q.Premium, "USD", domain.PeriodMonthly),
			string(q.Status), created.Unix(), created.Unix(),
		); err != nil {
			return fmt.Errorf("seed quote %s: %w", q.ID, err)
		}
	}

	for _, c := range demoClients {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO clients (id, broker_id, name, email, phone, last_contact, policies)
			VALUES (?, '', ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Email, c.Phone, c.LastContact, c.Policies,
		); err != nil {
			return fmt.Errorf("seed client %s: %w", c.ID, err)
		}
	}

	for _, c := range demoConversations {
		updated, err := time.Parse(time.DateOnly, c.Date)
		if err != nil {
			return fmt.Errorf("parse demo date %q: %w", c.Date, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversations (id, broker_id, client_name, date, messages, has_quote, updated_at)
			VALUES (?, '', ?, ?, ?, ?, ?)`,
			c.ID, c.ClientName, c.Date, c.Messages, c.HasQuote, updated.Unix(),
		); err != nil {
			return fmt.Errorf("seed conversation %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
