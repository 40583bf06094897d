package quote

import (
	"fmt"
	"strings"

	"github.com/ashureev/mediai-broker/internal/domain"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer = message.NewPrinter(language.AmericanEnglish)

	symbols = map[currency.Unit]string{
		currency.USD: "$",
		currency.CAD: "CA$",
		currency.AUD: "A$",
		currency.GBP: "£",
		currency.EUR: "€",
	}
)

// ParseCurrency canonicalizes an ISO 4217 currency code.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("parse currency %q: %w", code, err)
	}
	return unit.String(), nil
}

// FormatPremium renders a premium for dashboard tables, e.g. "$1,260.00/year".
func FormatPremium(amount float64, code string, period domain.CoveragePeriod) string {
	value := printer.Sprintf("%.2f", amount)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %s/%s", code, value, period.Suffix())
	}
	if sym, ok := symbols[unit]; ok {
		return sym + value + "/" + period.Suffix()
	}
	return unit.String() + " " + value + "/" + period.Suffix()
}

// InsuranceType returns the dashboard insurance type label for a coverage class.
func InsuranceType(c domain.CoverageClass) string {
	switch c {
	case domain.CoverageFamily:
		return "Family Health"
	case domain.CoverageCompany:
		return "Corporate"
	default:
		return "Health"
	}
}
