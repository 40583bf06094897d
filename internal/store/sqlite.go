package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/ashureev/mediai-broker/internal/metrics"
	"github.com/ashureev/mediai-broker/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sharedBrokerID = ""

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	maxRetries int
	retryDelay time.Duration
	seed       bool
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithRetry sets how often writes are retried on SQLITE_BUSY and the initial backoff.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *SQLiteStore) {
		s.maxRetries = maxAttempts
		s.retryDelay = baseDelay
	}
}

// WithDemoData controls whether the shared demo dashboard rows are seeded.
func WithDemoData(enabled bool) Option {
	return func(s *SQLiteStore) {
		s.seed = enabled
	}
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, opts ...Option) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{
		db:         db,
		maxRetries: 3,
		retryDelay: 50 * time.Millisecond,
		seed:       true,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if store.seed {
		if err := store.seedDemoData(context.Background()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS brokers (
		broker_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS saved_quotes (
		id TEXT PRIMARY KEY,
		broker_id TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL,
		date TEXT NOT NULL,
		insurance_type TEXT NOT NULL,
		premium REAL NOT NULL,
		currency TEXT NOT NULL,
		period TEXT NOT NULL,
		premium_text TEXT NOT NULL,
		status TEXT NOT NULL,
		quote_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_saved_quotes_broker ON saved_quotes(broker_id, created_at);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		broker_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		last_contact TEXT NOT NULL,
		policies INTEGER NOT NULL DEFAULT 0,
		UNIQUE(broker_id, name)
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		broker_id TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL,
		date TEXT NOT NULL,
		messages INTEGER NOT NULL,
		has_quote INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_broker ON conversations(broker_id, updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) retry(ctx context.Context, fn func() error) error {
	return shared.RetryOnConflict(ctx, s.maxRetries, s.retryDelay, fn)
}

func observe(start time.Time) {
	metrics.SQLiteLatency.Observe(time.Since(start).Seconds())
}

// searchPattern turns free text into a case-insensitive LIKE pattern.
func searchPattern(search string) string {
	search = strings.ToLower(strings.TrimSpace(search))
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetBroker retrieves a broker by id.
func (s *SQLiteStore) GetBroker(ctx context.Context, brokerID string) (*domain.Broker, error) {
	defer observe(time.Now())
	query := `
		SELECT broker_id, display_name, last_seen_at, created_at, updated_at
		FROM brokers WHERE broker_id = ?`

	var b domain.Broker
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, brokerID).Scan(
		&b.BrokerID, &b.DisplayName, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan broker row: %w", err)
	}

	b.LastSeenAt = time.Unix(lastSeen, 0)
	b.CreatedAt = time.Unix(createdAt, 0)
	b.UpdatedAt = time.Unix(updatedAt, 0)
	return &b, nil
}

// UpsertBroker creates or updates a broker record.
func (s *SQLiteStore) UpsertBroker(ctx context.Context, b *domain.Broker) error {
	defer observe(time.Now())
	query := `
	INSERT INTO brokers (broker_id, display_name, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(broker_id) DO UPDATE SET
		display_name = excluded.display_name,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			b.BrokerID, b.DisplayName, b.LastSeenAt.Unix(),
			b.CreatedAt.Unix(), b.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert broker: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a broker.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, brokerID string, lastSeen time.Time) error {
	defer observe(time.Now())
	query := `UPDATE brokers SET last_seen_at = ?, updated_at = ? WHERE broker_id = ?`

	var rows int64
	err := s.retry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), brokerID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "broker_id", brokerID)
	}
	return nil
}

// SaveQuote stores a saved quote and records its client for the broker.
func (s *SQLiteStore) SaveQuote(ctx context.Context, q *domain.SavedQuote) error {
	defer observe(time.Now())

	var quoteJSON any
	if q.Quote != nil {
		data, err := json.Marshal(q.Quote)
		if err != nil {
			return fmt.Errorf("marshal quote: %w", err)
		}
		quoteJSON = string(data)
	}

	insertQuote := `
	INSERT INTO saved_quotes (
		id, broker_id, client_name, date, insurance_type, premium, currency,
		period, premium_text, status, quote_json, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

	insertClient := `
	INSERT INTO clients (id, broker_id, name, last_contact, policies)
	VALUES (?, ?, ?, ?, 0)
	ON CONFLICT(broker_id, name) DO UPDATE SET
		last_contact = MAX(clients.last_contact, excluded.last_contact)`

	err := s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, insertQuote,
			q.ID, q.BrokerID, q.ClientName, q.Date, q.InsuranceType, q.Premium, q.Currency,
			string(q.Period), q.PremiumText, string(q.Status), quoteJSON,
			q.CreatedAt.Unix(), q.UpdatedAt.Unix(),
		); err != nil {
			return err
		}
		if q.ClientName != "" {
			if _, err := tx.ExecContext(ctx, insertClient,
				"cl_"+uuid.Must(uuid.NewV7()).String(), q.BrokerID, q.ClientName, q.Date,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("save quote: %w", err)
	}
	return nil
}

const savedQuoteColumns = `
	id, broker_id, client_name, date, insurance_type, premium, currency,
	period, premium_text, status, quote_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSavedQuote(row rowScanner) (*domain.SavedQuote, error) {
	var q domain.SavedQuote
	var period, status string
	var quoteJSON sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(
		&q.ID, &q.BrokerID, &q.ClientName, &q.Date, &q.InsuranceType, &q.Premium, &q.Currency,
		&period, &q.PremiumText, &status, &quoteJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	q.Period = domain.CoveragePeriod(period)
	q.Status = domain.QuoteStatus(status)
	q.CreatedAt = time.Unix(createdAt, 0)
	q.UpdatedAt = time.Unix(updatedAt, 0)
	if quoteJSON.Valid && quoteJSON.String != "" {
		var full domain.Quote
		if err := json.Unmarshal([]byte(quoteJSON.String), &full); err != nil {
			return nil, fmt.Errorf("decode quote payload: %w", err)
		}
		q.Quote = &full
	}
	return &q, nil
}

// GetSavedQuote retrieves one saved quote visible to the broker.
func (s *SQLiteStore) GetSavedQuote(ctx context.Context, brokerID, quoteID string) (*domain.SavedQuote, error) {
	defer observe(time.Now())
	query := `SELECT ` + savedQuoteColumns + `
		FROM saved_quotes WHERE id = ? AND (broker_id = ? OR broker_id = '')`

	q, err := scanSavedQuote(s.db.QueryRowContext(ctx, query, quoteID, brokerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan saved quote: %w", err)
	}
	return q, nil
}

// ListSavedQuotes returns saved quotes matching search, newest first.
func (s *SQLiteStore) ListSavedQuotes(ctx context.Context, brokerID, search string) ([]domain.SavedQuote, error) {
	defer observe(time.Now())
	query := `SELECT ` + savedQuoteColumns + `
		FROM saved_quotes
		WHERE (broker_id = ? OR broker_id = '')
		  AND (lower(client_name) LIKE ? ESCAPE '\'
		    OR lower(insurance_type) LIKE ? ESCAPE '\'
		    OR lower(status) LIKE ? ESCAPE '\'
		    OR lower(premium_text) LIKE ? ESCAPE '\'
		    OR date LIKE ? ESCAPE '\')
		ORDER BY date DESC, created_at DESC, id`

	p := searchPattern(search)
	rows, err := s.db.QueryContext(ctx, query, brokerID, p, p, p, p, p)
	if err != nil {
		return nil, fmt.Errorf("query saved quotes: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close saved quote rows", "error", closeErr)
		}
	}()

	out := []domain.SavedQuote{}
	for rows.Next() {
		q, err := scanSavedQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saved quote row: %w", err)
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved quotes: %w", err)
	}
	return out, nil
}

// ownedQuote loads the owner, status and client of a quote inside tx.
func ownedQuote(ctx context.Context, tx *sql.Tx, brokerID, quoteID string) (domain.QuoteStatus, string, error) {
	var owner, status, clientName string
	err := tx.QueryRowContext(ctx,
		`SELECT broker_id, status, client_name FROM saved_quotes WHERE id = ? AND (broker_id = ? OR broker_id = '')`,
		quoteID, brokerID,
	).Scan(&owner, &status, &clientName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	if owner == sharedBrokerID {
		return "", "", ErrReadOnly
	}
	return domain.QuoteStatus(status), clientName, nil
}

// UpdateQuoteStatus changes the status of one of the broker's saved quotes.
// Accepting a quote adds a policy to its client; withdrawing an acceptance removes it.
func (s *SQLiteStore) UpdateQuoteStatus(ctx context.Context, brokerID, quoteID string, status domain.QuoteStatus) error {
	defer observe(time.Now())
	if !status.Valid() {
		return fmt.Errorf("update quote status: invalid status %q", status)
	}

	err := s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		prev, clientName, err := ownedQuote(ctx, tx, brokerID, quoteID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE saved_quotes SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), time.Now().Unix(), quoteID,
		); err != nil {
			return err
		}

		var delta int
		switch {
		case prev != domain.QuoteAccepted && status == domain.QuoteAccepted:
			delta = 1
		case prev == domain.QuoteAccepted && status != domain.QuoteAccepted:
			delta = -1
		}
		if delta != 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE clients SET policies = MAX(policies + ?, 0) WHERE broker_id = ? AND name = ?`,
				delta, brokerID, clientName,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReadOnly) {
			return err
		}
		return fmt.Errorf("update quote status: %w", err)
	}
	return nil
}

// DeleteSavedQuote removes one of the broker's saved quotes.
func (s *SQLiteStore) DeleteSavedQuote(ctx context.Context, brokerID, quoteID string) error {
	defer observe(time.Now())

	err := s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, _, err := ownedQuote(ctx, tx, brokerID, quoteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM saved_quotes WHERE id = ?`, quoteID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReadOnly) {
			return err
		}
		return fmt.Errorf("delete saved quote: %w", err)
	}
	return nil
}

// ListClients returns clients matching search, most recently contacted first.
func (s *SQLiteStore) ListClients(ctx context.Context, brokerID, search string) ([]domain.Client, error) {
	defer observe(time.Now())
	query := `
		SELECT id, name, email, phone, last_contact, policies
		FROM clients
		WHERE (broker_id = ? OR broker_id = '')
		  AND (lower(name) LIKE ? ESCAPE '\'
		    OR lower(email) LIKE ? ESCAPE '\'
		    OR phone LIKE ? ESCAPE '\')
		ORDER BY last_contact DESC, name`

	p := searchPattern(search)
	rows, err := s.db.QueryContext(ctx, query, brokerID, p, p, p)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close client rows", "error", closeErr)
		}
	}()

	out := []domain.Client{}
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.LastContact, &c.Policies); err != nil {
			return nil, fmt.Errorf("scan client row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return out, nil
}

// UpsertConversation creates or updates a conversation history row.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, c *domain.ConversationSummary) error {
	defer observe(time.Now())
	query := `
	INSERT INTO conversations (id, broker_id, client_name, date, messages, has_quote, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		client_name = excluded.client_name,
		date = excluded.date,
		messages = excluded.messages,
		has_quote = excluded.has_quote,
		updated_at = excluded.updated_at`

	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			c.ID, c.BrokerID, c.ClientName, c.Date, c.Messages, c.HasQuote, c.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// ListConversations returns conversation history rows matching search, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, brokerID, search string) ([]domain.ConversationSummary, error) {
	defer observe(time.Now())
	query := `
		SELECT id, broker_id, client_name, date, messages, has_quote, updated_at
		FROM conversations
		WHERE (broker_id = ? OR broker_id = '')
		  AND (lower(client_name) LIKE ? ESCAPE '\' OR date LIKE ? ESCAPE '\')
		ORDER BY date DESC, updated_at DESC, id`

	p := searchPattern(search)
	rows, err := s.db.QueryContext(ctx, query, brokerID, p, p)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	out := []domain.ConversationSummary{}
	for rows.Next() {
		var c domain.ConversationSummary
		var updatedAt int64
		if err := rows.Scan(&c.ID, &c.BrokerID, &c.ClientName, &c.Date, &c.Messages, &c.HasQuote, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		c.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// Stats computes the dashboard headline figures for the broker.
func (s *SQLiteStore) Stats(ctx context.Context, brokerID string) (*domain.DashboardStats, error) {
	defer observe(time.Now())
	query := `
		SELECT
			(SELECT COUNT(*) FROM saved_quotes WHERE broker_id = ? OR broker_id = ''),
			(SELECT COUNT(*) FROM saved_quotes WHERE (broker_id = ? OR broker_id = '') AND status = 'accepted'),
			(SELECT COUNT(*) FROM clients WHERE (broker_id = ? OR broker_id = '') AND policies > 0),
			(SELECT COUNT(*) FROM conversations WHERE broker_id = ? OR broker_id = '')`

	var stats domain.DashboardStats
	var accepted int64
	if err := s.db.QueryRowContext(ctx, query, brokerID, brokerID, brokerID, brokerID).Scan(
		&stats.TotalQuotes, &accepted, &stats.ActiveClients, &stats.Conversations,
	); err != nil {
		return nil, fmt.Errorf("query dashboard stats: %w", err)
	}
	stats.AcceptanceRate = AcceptanceRate(accepted, stats.TotalQuotes)
	return &stats, nil
}

// AcceptanceRate returns accepted/total as a whole percent, 0 when total is 0.
func AcceptanceRate(accepted, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(accepted) * 100 / float64(total)))
}
