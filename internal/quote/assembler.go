package quote

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
	"github.com/oklog/ulid/v2"
)

const (
	// DefaultCurrency is used when no currency is configured.
	DefaultCurrency = "USD"
	idPrefix        = "QT-"
)

// Assembler combines estimator and resolver output into quotes.
type Assembler struct {
	currency string
	period   domain.CoveragePeriod
	now      func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the clock used for effective dates and ids.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// NewAssembler creates an assembler issuing quotes in currency for period.
func NewAssembler(currency string, period domain.CoveragePeriod, opts ...Option) *Assembler {
	if currency == "" {
		currency = DefaultCurrency
	}
	if !period.Valid() {
		period = domain.PeriodAnnual
	}
	a := &Assembler{
		currency: currency,
		period:   period,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds a quote for p. It never fails.
func (a *Assembler) Assemble(p domain.ClientProfile) domain.Quote {
	now := a.now()
	effective := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	return domain.Quote{
		ID:             a.newID(now),
		Profile:        p.Clone(),
		Premium:        EstimatePremium(p),
		Currency:       a.currency,
		CoveragePeriod: a.period,
		CoverageLimits: ResolveCoverage(p),
		Benefits:       ResolveBenefits(p),
		EffectiveDate:  effective,
		ExpiryDate:     effective.AddDate(1, 0, 0),
	}
}

func (a *Assembler) newID(now time.Time) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return idPrefix + ulid.MustNew(ulid.Timestamp(now), a.entropy).String()
}
