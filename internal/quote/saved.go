package quote

import (
	"time"

	"github.com/ashureev/mediai-broker/internal/domain"
)

const dashboardDate = "2006-01-02"

// NewSavedQuote converts a generated quote into a pending dashboard row owned by brokerID.
func NewSavedQuote(brokerID string, q domain.Quote, now time.Time) domain.SavedQuote {
	qc := q
	return domain.SavedQuote{
		ID:            q.ID,
		BrokerID:      brokerID,
		ClientName:    q.Profile.Name,
		Date:          q.EffectiveDate.Format(dashboardDate),
		InsuranceType: InsuranceType(q.Profile.CoverageClass),
		Premium:       q.Premium,
		Currency:      q.Currency,
		Period:        q.CoveragePeriod,
		PremiumText:   FormatPremium(q.Premium, q.Currency, q.CoveragePeriod),
		Status:        domain.QuotePending,
		Quote:         &qc,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
