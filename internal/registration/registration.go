// Package registration holds the camp registration domain model.
package registration

import (
	"fmt"
	"time"

	"github.com/seibukan/gasshuku/internal/pricing"
)

// Status is the registration lifecycle state. Transitions are one-way:
// PENDING_PAYMENT may become PAID, any non-anonymized record may be deleted,
// and any record may be anonymized. DELETED and ANONYMIZED never resurrect.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusDeleted        Status = "DELETED"
	StatusAnonymized     Status = "ANONYMIZED"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPaid, StatusDeleted, StatusAnonymized:
		return true
	}
	return false
}

// Terminal reports whether the status allows no further transitions besides
// anonymization.
func (s Status) Terminal() bool {
	return s == StatusDeleted || s == StatusAnonymized
}

// CanTransition reports whether moving from one status to another respects
// the monotonic lifecycle.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusPaid:
		return from == StatusPendingPayment
	case StatusDeleted:
		return from == StatusPendingPayment || from == StatusPaid
	case StatusAnonymized:
		return from != StatusAnonymized
	}
	return false
}

// Consent records one affirmative policy acceptance together with the
// version of the policy document in force at the time. The version is never
// reinterpreted against a newer policy.
type Consent struct {
	Accepted   bool      `json:"accepted"`
	Version    string    `json:"version"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Discipline tracks grading and exam intent for one of the two arts.
type Discipline struct {
	CurrentGrade string `json:"currentGrade"`
	WantsExam    bool   `json:"wantsExam"`
	TargetGrade  string `json:"targetGrade"`
}

// Billing is the invoicing block required for every registration.
type Billing struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// Registration is one accepted camp registration. The pricing snapshot is
// captured at creation time and never recomputed afterwards.
type Registration struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`

	CampType      string            `json:"campType"`
	MealPlan      string            `json:"mealPlan"`
	Accommodation string            `json:"accommodation"`
	Pricing       pricing.Breakdown `json:"pricing"`

	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	City        string `json:"city"`

	Iaido Discipline `json:"iaido"`
	Jodo  Discipline `json:"jodo"`

	Billing Billing `json:"billing"`
	Note    string  `json:"note,omitempty"`

	PrivacyConsent Consent `json:"privacyConsent"`
	TermsConsent   Consent `json:"termsConsent"`
}

// LegacyView is the old combined grade/exam shape some consumers still read.
// It is always derived from the per-discipline fields, never stored.
type LegacyView struct {
	CurrentGrade string `json:"currentGrade"`
	WantsExam    bool   `json:"wantsExam"`
	TargetGrade  string `json:"targetGrade"`
}

// Legacy derives the combined backward-compatible view: the iaido value wins
// when present, the jodo value fills in otherwise, and the exam flags are
// OR-ed together.
func (r Registration) Legacy() LegacyView {
	view := LegacyView{
		CurrentGrade: r.Iaido.CurrentGrade,
		TargetGrade:  r.Iaido.TargetGrade,
		WantsExam:    r.Iaido.WantsExam || r.Jodo.WantsExam,
	}
	if view.CurrentGrade == "" {
		view.CurrentGrade = r.Jodo.CurrentGrade
	}
	if view.TargetGrade == "" {
		view.TargetGrade = r.Jodo.TargetGrade
	}
	return view
}

// AnonymizedEmail is the synthetic placeholder written over a cleared email.
func AnonymizedEmail(id string) string {
	return fmt.Sprintf("anonymized-%s@invalid.local", id)
}

// Anonymize clears every direct personal identifier while keeping the id,
// timestamps, status marker, and the aggregate-relevant pricing fields.
func (r *Registration) Anonymize() {
	r.Status = StatusAnonymized
	r.FullName = ""
	r.Email = AnonymizedEmail(r.ID)
	r.Phone = ""
	r.DateOfBirth = ""
	r.City = ""
	r.Billing = Billing{}
	r.Note = ""
}

// New assembles a registration from sanitized input, a priced breakdown, and
// the policy versions in force. The caller supplies the clock and id source.
func New(in Input, breakdown pricing.Breakdown, privacyVersion, termsVersion string, now time.Time, newID func() (string, error)) (Registration, error) {
	id, err := newID()
	if err != nil {
		return Registration{}, fmt.Errorf("generate registration id: %w", err)
	}
	now = now.UTC()

	return Registration{
		ID:            id,
		CreatedAt:     now,
		Status:        StatusPendingPayment,
		CampType:      in.CampType,
		MealPlan:      in.MealPlan,
		Accommodation: in.Accommodation,
		Pricing:       breakdown,
		FullName:      in.FullName,
		Email:         in.Email,
		Phone:         in.Phone,
		DateOfBirth:   in.DateOfBirth,
		City:          in.City,
		Iaido: Discipline{
			CurrentGrade: in.IaidoGrade,
			WantsExam:    in.IaidoExam,
			TargetGrade:  in.IaidoTargetGrade,
		},
		Jodo: Discipline{
			CurrentGrade: in.JodoGrade,
			WantsExam:    in.JodoExam,
			TargetGrade:  in.JodoTargetGrade,
		},
		Billing: Billing{
			Name:       in.BillingName,
			Address:    in.BillingAddress,
			PostalCode: in.BillingPostalCode,
			City:       in.BillingCity,
			Country:    in.BillingCountry,
		},
		Note: in.Note,
		PrivacyConsent: Consent{
			Accepted:   in.PrivacyConsent,
			Version:    privacyVersion,
			AcceptedAt: now,
		},
		TermsConsent: Consent{
			Accepted:   in.TermsConsent,
			Version:    termsVersion,
			AcceptedAt: now,
		},
	}, nil
}
