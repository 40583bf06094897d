// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the broker.
	ErrNotFound = errors.New("not found")
	// ErrReadOnly is returned when a broker tries to change a shared demo row.
	ErrReadOnly = errors.New("row is read-only")
)

// Repository defines the interface for persisting broker and dashboard data.
//
// Dashboard rows are visible to a broker when they belong to that broker or are
// shared demo rows. Only a broker's own rows can be modified.
type Repository interface {
	// GetBroker retrieves a broker by id. It returns nil, nil when the broker does not exist.
	GetBroker(ctx context.Context, brokerID string) (*domain.Broker, error)

	// UpsertBroker creates or updates a broker record.
	UpsertBroker(ctx context.Context, broker *domain.Broker) error

	// UpdateLastSeen updates the last_seen_at timestamp for a broker.
	UpdateLastSeen(ctx context.Context, brokerID string, lastSeen time.Time) error

	// SaveQuote stores a saved quote and records its client for the broker.
	// Saving the same quote twice keeps the existing row.
	SaveQuote(ctx context.Context, q *domain.SavedQuote) error

	// GetSavedQuote retrieves one saved quote visible to the broker.
	GetSavedQuote(ctx context.Context, brokerID, quoteID string) (*domain.SavedQuote, error)

	// ListSavedQuotes returns saved quotes matching search, newest first.
	ListSavedQuotes(ctx context.Context, brokerID, search string) ([]domain.SavedQuote, error)

	// UpdateQuoteStatus changes the status of one of the broker's saved quotes.
	UpdateQuoteStatus(ctx context.Context, brokerID, quoteID string, status domain.QuoteStatus) error

	// DeleteSavedQuote removes one of the broker's saved quotes.
	DeleteSavedQuote(ctx context.Context, brokerID, quoteID string) error

	// ListClients returns clients matching search, most recently contacted first.
	ListClients(ctx context.Context, brokerID, search string) ([]domain.Client, error)

	// UpsertConversation creates or updates a conversation history row.
	UpsertConversation(ctx context.Context, c *domain.ConversationSummary) error

	// ListConversations returns conversation history rows matching search, newest first.
	ListConversations(ctx context.Context, brokerID, search string) ([]domain.ConversationSummary, error)

	// Stats computes the dashboard headline figures for the broker.
	Stats(ctx context.Context, brokerID string) (*domain.DashboardStats, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
