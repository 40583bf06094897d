// Package quote implements premium estimation, coverage resolution and quote assembly.
package quote

import "github.com/ashureev/mediai-broker/internal/domain"

const (
	basePremium       = 500.0
	seniorAgeCutoff   = 50
	seniorSurcharge   = 200.0
	familyMultiplier  = 1.8
	companyMultiplier = 3.0
)

// EstimatePremium returns the premium for a profile.
// The age surcharge is added before the class multiplier; at most one multiplier applies.
// The result is not rounded.
func EstimatePremium(p domain.ClientProfile) float64 {
	premium := basePremium
	if p.Age > seniorAgeCutoff {
		premium += seniorSurcharge
	}

	switch p.CoverageClass {
	case domain.CoverageFamily:
		premium *= familyMultiplier
	case domain.CoverageCompany:
		premium *= companyMultiplier
	}
	return premium
}
