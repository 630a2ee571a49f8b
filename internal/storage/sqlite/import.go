package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/seibukan/gasshuku/internal/pricing"
	"github.com/seibukan/gasshuku/internal/registration"
)

// legacyRecord is one row of the old flat-file registration export. The
// combined grade/exam fields predate the per-discipline split; newer exports
// may carry both, in which case the discipline-specific field wins.
type legacyRecord struct {
	ID            string `json:"id"`
	CreatedAt     string `json:"createdAt"`
	Status        string `json:"status"`
	CampType      string `json:"campType"`
	MealPlan      string `json:"mealPlan"`
	Accommodation string `json:"accommodation"`
	TotalCents    int64  `json:"totalCents"`

	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
	City        string `json:"city"`

	CurrentGrade string `json:"currentGrade"`
	WantsExam    bool   `json:"wantsExam"`
	TargetGrade  string `json:"targetGrade"`

	IaidoGrade       string `json:"iaidoGrade"`
	IaidoExam        *bool  `json:"iaidoExam"`
	IaidoTargetGrade string `json:"iaidoTargetGrade"`
	JodoGrade        string `json:"jodoGrade"`
	JodoExam         *bool  `json:"jodoExam"`
	JodoTargetGrade  string `json:"jodoTargetGrade"`

	BillingName       string `json:"billingName"`
	BillingAddress    string `json:"billingAddress"`
	BillingPostalCode string `json:"billingPostalCode"`
	BillingCity       string `json:"billingCity"`
	BillingCountry    string `json:"billingCountry"`

	Note string `json:"note"`

	PrivacyConsent   bool   `json:"privacyConsent"`
	PrivacyVersion   string `json:"privacyVersion"`
	TermsConsent     bool   `json:"termsConsent"`
	TermsVersion     string `json:"termsVersion"`
	ConsentTimestamp string `json:"consentTimestamp"`
}

// ImportLegacyFile performs the one-time import of the legacy flat file. It
// runs only when the file exists and the store is empty, and it is
// all-or-nothing: any bad row rolls back the whole import so startup can
// abort instead of serving a half-imported store.
func (s *Store) ImportLegacyFile(ctx context.Context, path string, catalog pricing.Catalog) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read legacy file %s: %w", path, err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("count before legacy import: %w", err)
	}
	if count > 0 {
		log.Printf("legacy import skipped path=%s existing_rows=%d", path, count)
		return nil
	}

	var records []legacyRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("parse legacy file %s: %w", path, err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin legacy import tx: %w", err)
	}
	defer tx.Rollback()

	for idx, record := range records {
		reg, err := record.toRegistration(catalog)
		if err != nil {
			return fmt.Errorf("legacy record %d (%s): %w", idx, record.ID, err)
		}

		pricingJSON, err := json.Marshal(reg.Pricing)
		if err != nil {
			return fmt.Errorf("legacy record %d (%s): marshal pricing: %w", idx, record.ID, err)
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO registrations (`+registrationColumns+`, current_grade, wants_exam, target_grade)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reg.ID,
			timeToText(reg.CreatedAt),
			string(reg.Status),
			reg.CampType,
			reg.MealPlan,
			reg.Accommodation,
			reg.Pricing.TotalCents,
			reg.Pricing.Currency,
			string(pricingJSON),
			reg.FullName,
			reg.Email,
			reg.Phone,
			reg.DateOfBirth,
			reg.City,
			reg.Iaido.CurrentGrade,
			boolToInt(reg.Iaido.WantsExam),
			reg.Iaido.TargetGrade,
			reg.Jodo.CurrentGrade,
			boolToInt(reg.Jodo.WantsExam),
			reg.Jodo.TargetGrade,
			reg.Billing.Name,
			reg.Billing.Address,
			reg.Billing.PostalCode,
			reg.Billing.City,
			reg.Billing.Country,
			reg.Note,
			boolToInt(reg.PrivacyConsent.Accepted),
			reg.PrivacyConsent.Version,
			timeToText(reg.PrivacyConsent.AcceptedAt),
			boolToInt(reg.TermsConsent.Accepted),
			reg.TermsConsent.Version,
			timeToText(reg.TermsConsent.AcceptedAt),
			record.CurrentGrade,
			boolToInt(record.WantsExam),
			record.TargetGrade,
		); err != nil {
			return fmt.Errorf("legacy record %d (%s): insert: %w", idx, record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit legacy import: %w", err)
	}

	log.Printf("legacy import done path=%s rows=%d", path, len(records))
	return nil
}

func (r legacyRecord) toRegistration(catalog pricing.Catalog) (registration.Registration, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return registration.Registration{}, fmt.Errorf("missing id")
	}

	status, err := parseLegacyStatus(r.Status)
	if err != nil {
		return registration.Registration{}, err
	}

	createdAt, err := parseLegacyTime(r.CreatedAt)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("parse createdAt %q: %w", r.CreatedAt, err)
	}
	if createdAt.IsZero() {
		return registration.Registration{}, fmt.Errorf("missing createdAt")
	}

	camp := catalog.ResolveCampType(r.CampType)
	meal := catalog.ResolveMealPlan(r.MealPlan)
	lodging := catalog.ResolveAccommodation(r.Accommodation)
	breakdown := catalog.Quote(camp.Code, meal.Code, lodging.Code)
	if r.TotalCents != 0 && r.TotalCents != breakdown.TotalCents {
		log.Printf("legacy import total mismatch id=%s legacy=%d recomputed=%d", id, r.TotalCents, breakdown.TotalCents)
	}

	consentAt, err := parseLegacyTime(r.ConsentTimestamp)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("parse consentTimestamp %q: %w", r.ConsentTimestamp, err)
	}
	if consentAt.IsZero() {
		consentAt = createdAt
	}

	reg := registration.Registration{
		ID:            id,
		CreatedAt:     createdAt,
		Status:        status,
		CampType:      camp.Code,
		MealPlan:      meal.Code,
		Accommodation: lodging.Code,
		Pricing:       breakdown,
		FullName:      strings.TrimSpace(r.FullName),
		Email:         strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:         strings.TrimSpace(r.Phone),
		DateOfBirth:   strings.TrimSpace(r.DateOfBirth),
		City:          strings.TrimSpace(r.City),
		Iaido: registration.Discipline{
			CurrentGrade: firstNonEmpty(r.IaidoGrade, r.CurrentGrade),
			WantsExam:    boolOrFallback(r.IaidoExam, r.WantsExam),
			TargetGrade:  firstNonEmpty(r.IaidoTargetGrade, r.TargetGrade),
		},
		Jodo: registration.Discipline{
			CurrentGrade: strings.TrimSpace(r.JodoGrade),
			WantsExam:    boolOrFallback(r.JodoExam, false),
			TargetGrade:  strings.TrimSpace(r.JodoTargetGrade),
		},
		Billing: registration.Billing{
			Name:       strings.TrimSpace(r.BillingName),
			Address:    strings.TrimSpace(r.BillingAddress),
			PostalCode: strings.TrimSpace(r.BillingPostalCode),
			City:       strings.TrimSpace(r.BillingCity),
			Country:    strings.TrimSpace(r.BillingCountry),
		},
		Note: strings.TrimSpace(r.Note),
		PrivacyConsent: registration.Consent{
			Accepted:   r.PrivacyConsent,
			Version:    strings.TrimSpace(r.PrivacyVersion),
			AcceptedAt: consentAt,
		},
		TermsConsent: registration.Consent{
			Accepted:   r.TermsConsent,
			Version:    strings.TrimSpace(r.TermsVersion),
			AcceptedAt: consentAt,
		},
	}
	return reg, nil
}

func parseLegacyStatus(value string) (registration.Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	switch normalized {
	case "", "PENDING", "PENDING_PAYMENT":
		return registration.StatusPendingPayment, nil
	case "PAID":
		return registration.StatusPaid, nil
	case "DELETED":
		return registration.StatusDeleted, nil
	case "ANONYMIZED":
		return registration.StatusAnonymized, nil
	}
	return "", fmt.Errorf("unknown status %q", value)
}

func parseLegacyTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func boolOrFallback(value *bool, fallback bool) bool {
	if value != nil {
		return *value
	}
	return fallback
}
