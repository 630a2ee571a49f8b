package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/seibukan/gasshuku/internal/registration"
)

// utf8BOM lets spreadsheet software detect the character set.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvHeader is the fixed export column order.
var csvHeader = []string{
	"id",
	"created_at",
	"status",
	"full_name",
	"email",
	"phone",
	"date_of_birth",
	"city",
	"camp_type",
	"meal_plan",
	"accommodation",
	"total_cents",
	"currency",
	"iaido_grade",
	"iaido_exam",
	"iaido_target_grade",
	"jodo_grade",
	"jodo_exam",
	"jodo_target_grade",
	"billing_name",
	"billing_address",
	"billing_postal_code",
	"billing_city",
	"billing_country",
	"note",
	"privacy_version",
	"privacy_accepted_at",
	"terms_version",
	"terms_accepted_at",
}

// WriteCSV renders the full denormalized export, terminal-status rows
// included, prefixed with a UTF-8 byte-order marker.
func WriteCSV(w io.Writer, regs []registration.Registration) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, reg := range regs {
		record := []string{
			reg.ID,
			formatTime(reg.CreatedAt),
			string(reg.Status),
			reg.FullName,
			reg.Email,
			reg.Phone,
			reg.DateOfBirth,
			reg.City,
			reg.CampType,
			reg.MealPlan,
			reg.Accommodation,
			strconv.FormatInt(reg.Pricing.TotalCents, 10),
			reg.Pricing.Currency,
			reg.Iaido.CurrentGrade,
			formatBool(reg.Iaido.WantsExam),
			reg.Iaido.TargetGrade,
			reg.Jodo.CurrentGrade,
			formatBool(reg.Jodo.WantsExam),
			reg.Jodo.TargetGrade,
			reg.Billing.Name,
			reg.Billing.Address,
			reg.Billing.PostalCode,
			reg.Billing.City,
			reg.Billing.Country,
			reg.Note,
			reg.PrivacyConsent.Version,
			formatTime(reg.PrivacyConsent.AcceptedAt),
			reg.TermsConsent.Version,
			formatTime(reg.TermsConsent.AcceptedAt),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", reg.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ExportFilename builds the dated attachment name for the CSV download.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("registrations-%s.csv", now.UTC().Format("2006-01-02"))
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func formatBool(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
