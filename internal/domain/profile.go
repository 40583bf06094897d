package domain

import "slices"

// CoverageClass is the three-way categorization of a quote.
type CoverageClass string

const (
	CoverageIndividual CoverageClass = "individual"
	CoverageFamily     CoverageClass = "family"
	CoverageCompany    CoverageClass = "company"
)

// CoverageClasses lists the classes in form display order.
var CoverageClasses = []CoverageClass{CoverageIndividual, CoverageFamily, CoverageCompany}

// Valid reports whether c is one of the known coverage classes.
func (c CoverageClass) Valid() bool {
	return slices.Contains(CoverageClasses, c)
}

// Label returns the capitalized display name used on quotes.
func (c CoverageClass) Label() string {
	switch c {
	case CoverageIndividual:
		return "Individual"
	case CoverageFamily:
		return "Family"
	case CoverageCompany:
		return "Company"
	default:
		return string(c)
	}
}

// CoverageOption is an optional benefit tag selected on the quote form.
type CoverageOption string

const (
	OptionBasic   CoverageOption = "basic"
	OptionPremium CoverageOption = "premium"
	OptionDental  CoverageOption = "dental"
	OptionVision  CoverageOption = "vision"
)

// CoverageOptions lists the selectable options in form display order.
var CoverageOptions = []CoverageOption{OptionBasic, OptionPremium, OptionDental, OptionVision}

// Valid reports whether o is one of the known coverage options.
func (o CoverageOption) Valid() bool {
	return slices.Contains(CoverageOptions, o)
}

// Residency is the client's country of residency code.
type Residency string

const (
	ResidencyUSA   Residency = "USA"
	ResidencyCAN   Residency = "CAN"
	ResidencyUK    Residency = "UK"
	ResidencyAUS   Residency = "AUS"
	ResidencyOther Residency = "OTHER"
)

// Residencies lists the residency codes offered by the quote form.
var Residencies = []Residency{ResidencyUSA, ResidencyCAN, ResidencyUK, ResidencyAUS, ResidencyOther}

// Valid reports whether r is one of the known residency codes.
func (r Residency) Valid() bool {
	return slices.Contains(Residencies, r)
}

// Label returns the country name shown on quotes.
func (r Residency) Label() string {
	switch r {
	case ResidencyUSA:
		return "United States"
	case ResidencyCAN:
		return "Canada"
	case ResidencyUK:
		return "United Kingdom"
	case ResidencyAUS:
		return "Australia"
	case ResidencyOther:
		return "Other"
	default:
		return string(r)
	}
}

// ClientProfile is the structured client data submitted through the quote form.
// It is treated as immutable once created.
type ClientProfile struct {
	Name              string           `json:"name"`
	Age               int              `json:"age"`
	Residency         Residency        `json:"residency"`
	CoverageClass     CoverageClass    `json:"coverage_class"`
	FamilyMemberCount int              `json:"family_member_count"`
	EmployeeCount     int              `json:"employee_count"`
	SelectedOptions   []CoverageOption `json:"selected_options"`
	Notes             string           `json:"notes"`
}

// HasOption reports whether the profile selected option o.
func (p ClientProfile) HasOption(o CoverageOption) bool {
	return slices.Contains(p.SelectedOptions, o)
}

// Clone returns a copy of p that shares no backing arrays with it.
func (p ClientProfile) Clone() ClientProfile {
	p.SelectedOptions = slices.Clone(p.SelectedOptions)
	return p
}
