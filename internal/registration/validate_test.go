package registration

import (
	"strings"
	"testing"

	"github.com/seibukan/gasshuku/internal/pricing"
)

func validInput() Input {
	return Input{
		FullName:          "Anna Vermeulen",
		Email:             "anna@example.com",
		Phone:             "+32 478 11 22 33",
		City:              "Antwerpen",
		CampType:          pricing.CampIaido,
		MealPlan:          pricing.MealLunch,
		Accommodation:     pricing.AccommodationShared,
		IaidoGrade:        "1st kyu",
		BillingName:       "Anna Vermeulen",
		BillingAddress:    "Meir 12",
		BillingPostalCode: "2000",
		BillingCity:       "Antwerpen",
		BillingCountry:    "BE",
		PrivacyConsent:    true,
		TermsConsent:      true,
	}
}

func TestValidateAcceptsValidInput(t *testing.T) {
	errs := Validate(Sanitize(validInput(), pricing.DefaultCatalog()))
	if len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestValidateAccumulatesAllViolations(t *testing.T) {
	in := Input{}
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))
	if len(errs) < 5 {
		t.Fatalf("expected accumulated violations, got %d: %v", len(errs), errs)
	}
}

func TestValidateRejectsBadEmailAndPhone(t *testing.T) {
	in := validInput()
	in.Email = "not-an-email"
	in.Phone = "banana"
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))

	if !containsMessage(errs, "email") {
		t.Fatalf("expected email violation, got %v", errs)
	}
	if !containsMessage(errs, "phone") {
		t.Fatalf("expected phone violation, got %v", errs)
	}
}

func TestValidateRequiresGradeForAttendedDiscipline(t *testing.T) {
	in := validInput()
	in.CampType = pricing.CampBoth
	in.JodoGrade = ""
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))
	if !containsMessage(errs, "jodo grade") {
		t.Fatalf("expected jodo grade violation, got %v", errs)
	}
}

func TestValidateRejectsExamOutsideCampType(t *testing.T) {
	in := validInput()
	in.CampType = pricing.CampJodo
	in.JodoGrade = "2nd kyu"
	in.IaidoExam = true
	in.IaidoTargetGrade = "shodan"
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))
	if !containsMessage(errs, "iaido exam") {
		t.Fatalf("expected iaido exam conflict, got %v", errs)
	}
}

func TestValidateRequiresTargetGradeForExam(t *testing.T) {
	in := validInput()
	in.IaidoExam = true
	in.IaidoTargetGrade = ""
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))
	if !containsMessage(errs, "target grade") {
		t.Fatalf("expected target grade violation, got %v", errs)
	}
}

func TestValidateRequiresFourDigitPostalCode(t *testing.T) {
	in := validInput()
	in.BillingPostalCode = "B-2000"
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))
	if !containsMessage(errs, "postal code") {
		t.Fatalf("expected postal code violation, got %v", errs)
	}
}

func TestValidateBoundsNoteLength(t *testing.T) {
	in := validInput()
	in.Note = strings.Repeat("a", NoteMaxLength+1)
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))
	if !containsMessage(errs, "note") {
		t.Fatalf("expected note length violation, got %v", errs)
	}
}

func TestValidateRequiresBothConsents(t *testing.T) {
	in := validInput()
	in.PrivacyConsent = false
	in.TermsConsent = false
	errs := Validate(Sanitize(in, pricing.DefaultCatalog()))
	if !containsMessage(errs, "privacy") || !containsMessage(errs, "terms") {
		t.Fatalf("expected both consent violations, got %v", errs)
	}
}

func TestSanitizeNormalizesAndCoerces(t *testing.T) {
	in := Input{
		Email:    "  Jan.DeVries@Example.COM ",
		CampType: "surfing",
		MealPlan: "",
	}
	out := Sanitize(in, pricing.DefaultCatalog())
	if out.Email != "jan.devries@example.com" {
		t.Fatalf("email = %q", out.Email)
	}
	if out.CampType != pricing.CampIaido {
		t.Fatalf("camp type = %q, want fallback %q", out.CampType, pricing.CampIaido)
	}
	if out.MealPlan != pricing.MealNone {
		t.Fatalf("meal plan = %q, want fallback %q", out.MealPlan, pricing.MealNone)
	}
}

func containsMessage(errs []string, fragment string) bool {
	for _, msg := range errs {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
