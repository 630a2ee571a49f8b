package registration

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/seibukan/gasshuku/internal/pricing"
)

// NoteMaxLength bounds the free-text note.
const NoteMaxLength = 1000

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9][0-9 ()./-]{5,24}$`)
	postalCodePattern = regexp.MustCompile(`^[0-9]{4}$`)
)

// Input is the untrusted registration payload before sanitization.
type Input struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
	City        string `json:"city"`

	CampType      string `json:"campType"`
	MealPlan      string `json:"mealPlan"`
	Accommodation string `json:"accommodation"`

	IaidoGrade       string `json:"iaidoGrade"`
	IaidoExam        bool   `json:"iaidoExam"`
	IaidoTargetGrade string `json:"iaidoTargetGrade"`
	JodoGrade        string `json:"jodoGrade"`
	JodoExam         bool   `json:"jodoExam"`
	JodoTargetGrade  string `json:"jodoTargetGrade"`

	BillingName       string `json:"billingName"`
	BillingAddress    string `json:"billingAddress"`
	BillingPostalCode string `json:"billingPostalCode"`
	BillingCity       string `json:"billingCity"`
	BillingCountry    string `json:"billingCountry"`

	Note string `json:"note"`

	PrivacyConsent bool `json:"privacyConsent"`
	TermsConsent   bool `json:"termsConsent"`
}

// Sanitize trims every field, normalizes the email to lowercase, and coerces
// the option codes onto the catalog with its documented fallbacks. The
// returned copy is what validation and pricing operate on.
func Sanitize(in Input, catalog pricing.Catalog) Input {
	out := in
	out.FullName = strings.TrimSpace(in.FullName)
	out.Email = strings.ToLower(strings.TrimSpace(in.Email))
	out.Phone = strings.TrimSpace(in.Phone)
	out.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	out.City = strings.TrimSpace(in.City)

	out.CampType = catalog.ResolveCampType(in.CampType).Code
	out.MealPlan = catalog.ResolveMealPlan(in.MealPlan).Code
	out.Accommodation = catalog.ResolveAccommodation(in.Accommodation).Code

	out.IaidoGrade = strings.TrimSpace(in.IaidoGrade)
	out.IaidoTargetGrade = strings.TrimSpace(in.IaidoTargetGrade)
	out.JodoGrade = strings.TrimSpace(in.JodoGrade)
	out.JodoTargetGrade = strings.TrimSpace(in.JodoTargetGrade)

	out.BillingName = strings.TrimSpace(in.BillingName)
	out.BillingAddress = strings.TrimSpace(in.BillingAddress)
	out.BillingPostalCode = strings.TrimSpace(in.BillingPostalCode)
	out.BillingCity = strings.TrimSpace(in.BillingCity)
	out.BillingCountry = strings.TrimSpace(in.BillingCountry)

	out.Note = strings.TrimSpace(in.Note)

	return out
}

// Validate checks a sanitized input against every business rule and returns
// all violations as human-readable messages. An empty slice means valid.
func Validate(in Input) []string {
	var errs []string

	if in.FullName == "" {
		errs = append(errs, "full name is required")
	}
	if in.Email == "" {
		errs = append(errs, "email is required")
	} else if !emailPattern.MatchString(in.Email) {
		errs = append(errs, "email address is not valid")
	}
	if in.Phone == "" {
		errs = append(errs, "phone number is required")
	} else if !phonePattern.MatchString(in.Phone) {
		errs = append(errs, "phone number is not valid")
	}
	if in.City == "" {
		errs = append(errs, "city is required")
	}

	errs = append(errs, validateDisciplines(in)...)
	errs = append(errs, validateBilling(in)...)

	if utf8.RuneCountInString(in.Note) > NoteMaxLength {
		errs = append(errs, fmt.Sprintf("note must be at most %d characters", NoteMaxLength))
	}

	if !in.PrivacyConsent {
		errs = append(errs, "privacy policy consent is required")
	}
	if !in.TermsConsent {
		errs = append(errs, "terms of participation consent is required")
	}

	return errs
}

func validateDisciplines(in Input) []string {
	var errs []string

	attendsIaido := in.CampType == pricing.CampIaido || in.CampType == pricing.CampBoth
	attendsJodo := in.CampType == pricing.CampJodo || in.CampType == pricing.CampBoth

	if in.IaidoExam && !attendsIaido {
		errs = append(errs, "iaido exam registration requires attending the iaido seminar")
	}
	if in.JodoExam && !attendsJodo {
		errs = append(errs, "jodo exam registration requires attending the jodo seminar")
	}

	if (attendsIaido || in.IaidoExam) && in.IaidoGrade == "" {
		errs = append(errs, "current iaido grade is required")
	}
	if (attendsJodo || in.JodoExam) && in.JodoGrade == "" {
		errs = append(errs, "current jodo grade is required")
	}

	if in.IaidoExam && in.IaidoTargetGrade == "" {
		errs = append(errs, "iaido exam target grade is required")
	}
	if in.JodoExam && in.JodoTargetGrade == "" {
		errs = append(errs, "jodo exam target grade is required")
	}

	return errs
}

func validateBilling(in Input) []string {
	var errs []string

	if in.BillingName == "" {
		errs = append(errs, "billing name is required")
	}
	if in.BillingAddress == "" {
		errs = append(errs, "billing address is required")
	}
	if in.BillingPostalCode == "" {
		errs = append(errs, "billing postal code is required")
	} else if !postalCodePattern.MatchString(in.BillingPostalCode) {
		errs = append(errs, "billing postal code must be 4 digits")
	}
	if in.BillingCity == "" {
		errs = append(errs, "billing city is required")
	}
	if in.BillingCountry == "" {
		errs = append(errs, "billing country is required")
	}

	return errs
}
