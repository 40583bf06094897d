package quote

import (
	"testing"

	"github.com/ashureev/mediai-broker/internal/domain"
)

func TestResolveCoverageHospitalAndAnnualLimit(t *testing.T) {
	t.Parallel()

	for _, class := range domain.CoverageClasses {
		got := ResolveCoverage(domain.ClientProfile{CoverageClass: class})
		wantHospital, wantAnnual := "$1,000,000", "$2,000,000"
		if class == domain.CoverageCompany {
			wantHospital, wantAnnual = "$2,000,000", "Unlimited"
		}
		if got.Hospital != wantHospital {
			t.Errorf("%s: hospital = %q, want %q", class, got.Hospital, wantHospital)
		}
		if got.AnnualLimit != wantAnnual {
			t.Errorf("%s: annual limit = %q, want %q", class, got.AnnualLimit, wantAnnual)
		}
	}
}

func TestResolveCoverageOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		options        []domain.CoverageOption
		wantOutpatient string
		wantMedication string
	}{
		{"basic only", []domain.CoverageOption{domain.OptionBasic}, "$5,000", "80% coverage"},
		{"basic twice", []domain.CoverageOption{domain.OptionBasic, domain.OptionBasic}, "$5,000", "80% coverage"},
		{"no options", nil, "$10,000", "80% coverage"},
		{"basic and dental", []domain.CoverageOption{domain.OptionBasic, domain.OptionDental}, "$10,000", "80% coverage"},
		{"premium", []domain.CoverageOption{domain.OptionPremium}, "$10,000", "Full coverage"},
		{"basic and premium", []domain.CoverageOption{domain.OptionBasic, domain.OptionPremium}, "$10,000", "Full coverage"},
		{"vision only", []domain.CoverageOption{domain.OptionVision}, "$10,000", "80% coverage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCoverage(domain.ClientProfile{
				CoverageClass:   domain.CoverageIndividual,
				SelectedOptions: tt.options,
			})
			if got.Outpatient != tt.wantOutpatient {
				t.Errorf("outpatient = %q, want %q", got.Outpatient, tt.wantOutpatient)
			}
			if got.Medication != tt.wantMedication {
				t.Errorf("medication = %q, want %q", got.Medication, tt.wantMedication)
			}
		})
	}
}

func TestResolveBenefits(t *testing.T) {
	t.Parallel()

	got := ResolveBenefits(domain.ClientProfile{
		SelectedOptions: []domain.CoverageOption{domain.OptionBasic, domain.OptionVision},
	})
	included := map[string]bool{}
	for _, b := range got {
		included[b.Name] = b.Included
	}

	want := map[string]bool{
		"Hospitalization":    true,
		"Outpatient Care":    true,
		"Prescription Drugs": true,
		"Dental":             false,
		"Vision":             true,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d benefits, got %d", len(want), len(got))
	}
	for name, w := range want {
		if included[name] != w {
			t.Errorf("%s included = %v, want %v", name, included[name], w)
		}
	}
}
