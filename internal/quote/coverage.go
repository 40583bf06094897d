package quote

import "github.com/ashureev/mediai-broker/internal/domain"

// ResolveCoverage derives the coverage limits for a profile. Each field is independent.
func ResolveCoverage(p domain.ClientProfile) domain.CoverageLimits {
	limits := domain.CoverageLimits{
		Hospital:    "$1,000,000",
		Outpatient:  "$10,000",
		Medication:  "80% coverage",
		AnnualLimit: "$2,000,000",
	}
	if p.CoverageClass == domain.CoverageCompany {
		limits.Hospital = "$2,000,000"
		limits.AnnualLimit = "Unlimited"
	}
	if basicTierOnly(p.SelectedOptions) {
		limits.Outpatient = "$5,000"
	}
	if p.HasOption(domain.OptionPremium) {
		limits.Medication = "Full coverage"
	}
	return limits
}

// basicTierOnly reports whether the options are exactly {basic}, duplicates ignored.
func basicTierOnly(opts []domain.CoverageOption) bool {
	if len(opts) == 0 {
		return false
	}
	for _, o := range opts {
		if o != domain.OptionBasic {
			return false
		}
	}
	return true
}

// ResolveBenefits lists the coverage details shown on a quote.
func ResolveBenefits(p domain.ClientProfile) []domain.Benefit {
	return []domain.Benefit{
		{Name: "Hospitalization", Description: "Full coverage for hospital stays", Included: true},
		{Name: "Outpatient Care", Description: "Coverage for doctor visits and outpatient procedures", Included: true},
		{Name: "Prescription Drugs", Description: "Coverage for prescribed medications", Included: true},
		{Name: "Dental", Description: "Basic dental coverage", Included: p.HasOption(domain.OptionDental)},
		{Name: "Vision", Description: "Eye exams and glasses allowance", Included: p.HasOption(domain.OptionVision)},
	}
}
