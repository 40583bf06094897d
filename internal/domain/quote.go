package domain

import (
	"slices"
	"time"
)

// CoveragePeriod is the billing period a premium applies to.
type CoveragePeriod string

const (
	PeriodAnnual  CoveragePeriod = "annual"
	PeriodMonthly CoveragePeriod = "monthly"
)

// Valid reports whether p is a known coverage period.
func (p CoveragePeriod) Valid() bool {
	return p == PeriodAnnual || p == PeriodMonthly
}

// Suffix returns the short unit appended to display premiums ("year", "month").
func (p CoveragePeriod) Suffix() string {
	if p == PeriodMonthly {
		return "month"
	}
	return "year"
}

// CoverageLimits maps each coverage category to its descriptive limit.
type CoverageLimits struct {
	Hospital    string `json:"hospital"`
	Outpatient  string `json:"outpatient"`
	Medication  string `json:"medication"`
	AnnualLimit string `json:"annual_limit"`
}

// Benefit is a line on the quote's coverage details list.
type Benefit struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Included    bool   `json:"included"`
}

// Quote is an assembled insurance quote. Quotes are never mutated after assembly.
type Quote struct {
	ID             string         `json:"id"`
	Profile        ClientProfile  `json:"profile"`
	Premium        float64        `json:"premium"`
	Currency       string         `json:"currency"`
	CoveragePeriod CoveragePeriod `json:"coverage_period"`
	CoverageLimits CoverageLimits `json:"coverage_limits"`
	Benefits       []Benefit      `json:"benefits"`
	EffectiveDate  time.Time      `json:"effective_date"`
	ExpiryDate     time.Time      `json:"expiry_date"`
}

// Clone returns a copy that shares no slices with q.
func (q Quote) Clone() Quote {
	q.Profile.SelectedOptions = slices.Clone(q.Profile.SelectedOptions)
	q.Benefits = slices.Clone(q.Benefits)
	return q
}
