package quote

import (
	"errors"
	"testing"

	"github.com/ashureev/mediai-broker/internal/domain"
)

func TestParseFormValid(t *testing.T) {
	t.Parallel()

	p, err := ParseForm(Form{
		ClientName:      "  Maria Lopez ",
		ClientAge:       41,
		Residency:       "can",
		CoverageType:    "Family",
		FamilyMembers:   4,
		EmployeeCount:   9,
		CoverageOptions: []string{"basic", "dental", "basic"},
		AdditionalNotes: "prefers email",
	})
	if err != nil {
		t.Fatalf("ParseForm returned error: %v", err)
	}

	if p.Name != "Maria Lopez" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Residency != domain.ResidencyCAN {
		t.Errorf("residency = %q", p.Residency)
	}
	if p.CoverageClass != domain.CoverageFamily {
		t.Errorf("class = %q", p.CoverageClass)
	}
	if p.FamilyMemberCount != 4 || p.EmployeeCount != 0 {
		t.Errorf("expected family=4 employees=0, got %d/%d", p.FamilyMemberCount, p.EmployeeCount)
	}
	if len(p.SelectedOptions) != 2 {
		t.Errorf("expected duplicate options collapsed, got %v", p.SelectedOptions)
	}
}

func TestParseFormDefaults(t *testing.T) {
	t.Parallel()

	p, err := ParseForm(Form{ClientName: "Sam", ClientAge: 30})
	if err != nil {
		t.Fatalf("ParseForm returned error: %v", err)
	}
	if p.Residency != domain.ResidencyUSA || p.CoverageClass != domain.CoverageIndividual {
		t.Errorf("expected USA/individual defaults, got %s/%s", p.Residency, p.CoverageClass)
	}
}

func TestParseFormViolations(t *testing.T) {
	t.Parallel()

	_, err := ParseForm(Form{
		ClientName:      " ",
		ClientAge:       130,
		Residency:       "FR",
		CoverageType:    "company",
		CoverageOptions: []string{"gold"},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	want := map[string]string{
		"clientName":      CodeRequired,
		"clientAge":       CodeOutOfRange,
		"residency":       CodeInvalidChoice,
		"employeeCount":   CodeMustBePositive,
		"coverageOptions": CodeInvalidChoice,
	}
	for field, code := range want {
		if verr.Violations[field] != code {
			t.Errorf("%s: got %q, want %q", field, verr.Violations[field], code)
		}
	}
	if len(verr.Violations) != len(want) {
		t.Errorf("unexpected violations: %v", verr.Violations)
	}
}
