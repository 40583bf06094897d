package domain

import "time"

// QuoteStatus tracks a saved quote through the broker's pipeline.
type QuoteStatus string

const (
	QuotePending  QuoteStatus = "pending"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteRejected QuoteStatus = "rejected"
)

// Valid reports whether s is a known quote status.
func (s QuoteStatus) Valid() bool {
	return s == QuotePending || s == QuoteAccepted || s == QuoteRejected
}

// SavedQuote is a row of the broker dashboard's saved quotes table.
type SavedQuote struct {
	ID            string         `json:"id"`
	BrokerID      string         `json:"-"`
	ClientName    string         `json:"client_name"`
	Date          string         `json:"date"`
	InsuranceType string         `json:"insurance_type"`
	Premium       float64        `json:"premium"`
	Currency      string         `json:"currency"`
	Period        CoveragePeriod `json:"period"`
	PremiumText   string         `json:"premium_text"`
	Status        QuoteStatus    `json:"status"`
	Quote         *Quote         `json:"quote,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Client is a row of the broker dashboard's client table.
type Client struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LastContact string `json:"last_contact"`
	Policies    int    `json:"policies"`
}

// ConversationSummary is a row of the conversation history table.
type ConversationSummary struct {
	ID         string    `json:"id"`
	BrokerID   string    `json:"-"`
	ClientName string    `json:"client_name"`
	Date       string    `json:"date"`
	Messages   int       `json:"messages"`
	HasQuote   bool      `json:"has_quote"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DashboardStats are the headline figures shown above the dashboard tables.
type DashboardStats struct {
	TotalQuotes    int64 `json:"total_quotes"`
	ActiveClients  int64 `json:"active_clients"`
	Conversations  int64 `json:"conversations"`
	AcceptanceRate int   `json:"acceptance_rate"`
}
