package quote

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ashureev/mediai-broker/internal/domain"
)

const maxClientAge = 120

// Violation codes reported per form field.
const (
	CodeRequired       = "required"
	CodeOutOfRange     = "out_of_range"
	CodeInvalidChoice  = "invalid_choice"
	CodeMustBePositive = "must_be_positive"
)

// Form is the raw quote-request form as submitted by the chat client.
type Form struct {
	ClientName      string   `json:"clientName"`
	ClientAge       int      `json:"clientAge"`
	Residency       string   `json:"residency"`
	CoverageType    string   `json:"coverageType"`
	FamilyMembers   int      `json:"familyMembers"`
	EmployeeCount   int      `json:"employeeCount"`
	CoverageOptions []string `json:"coverageOptions"`
	AdditionalNotes string   `json:"additionalNotes"`
}

// ValidationError lists form fields that failed validation, keyed by JSON field name.
type ValidationError struct {
	Violations map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.Violations[f])
	}
	return fmt.Sprintf("invalid quote form (%s)", strings.Join(parts, ", "))
}

// ParseForm validates f and converts it into a client profile.
// Household and headcount fields are zeroed when they do not apply to the coverage class.
func ParseForm(f Form) (domain.ClientProfile, error) {
	v := map[string]string{}

	name := strings.TrimSpace(f.ClientName)
	if name == "" {
		v["clientName"] = CodeRequired
	}
	if f.ClientAge < 0 || f.ClientAge > maxClientAge {
		v["clientAge"] = CodeOutOfRange
	}

	residency := domain.Residency(strings.ToUpper(strings.TrimSpace(f.Residency)))
	if residency == "" {
		residency = domain.ResidencyUSA
	}
	if !residency.Valid() {
		v["residency"] = CodeInvalidChoice
	}

	class := domain.CoverageClass(strings.ToLower(strings.TrimSpace(f.CoverageType)))
	if class == "" {
		class = domain.CoverageIndividual
	}
	if !class.Valid() {
		v["coverageType"] = CodeInvalidChoice
	}

	familyMembers, employees := 0, 0
	switch class {
	case domain.CoverageFamily:
		familyMembers = f.FamilyMembers
		if familyMembers < 1 {
			v["familyMembers"] = CodeMustBePositive
		}
	case domain.CoverageCompany:
		employees = f.EmployeeCount
		if employees < 1 {
			v["employeeCount"] = CodeMustBePositive
		}
	}

	options := make([]domain.CoverageOption, 0, len(f.CoverageOptions))
	for _, raw := range f.CoverageOptions {
		o := domain.CoverageOption(strings.ToLower(strings.TrimSpace(raw)))
		if !o.Valid() {
			v["coverageOptions"] = CodeInvalidChoice
			continue
		}
		if !slices.Contains(options, o) {
			options = append(options, o)
		}
	}

	if len(v) > 0 {
		return domain.ClientProfile{}, &ValidationError{Violations: v}
	}

	return domain.ClientProfile{
		Name:              name,
		Age:               f.ClientAge,
		Residency:         residency,
		CoverageClass:     class,
		FamilyMemberCount: familyMembers,
		EmployeeCount:     employees,
		SelectedOptions:   options,
		Notes:             f.AdditionalNotes,
	}, nil
}
