package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/seibukan/gasshuku/internal/platform/storage/retry"
	"github.com/seibukan/gasshuku/internal/platform/storage/sqlitemigrate"
	"github.com/seibukan/gasshuku/internal/pricing"
	"github.com/seibukan/gasshuku/internal/registration"
	"github.com/seibukan/gasshuku/internal/storage"
	"github.com/seibukan/gasshuku/internal/storage/sqlite/migrations"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// createdAtFormat is a fixed-width RFC 3339 layout so the created_at column
// sorts lexicographically.
const createdAtFormat = "2006-01-02T15:04:05.000Z"

const registrationColumns = `id, created_at, status,
	camp_type, meal_plan, accommodation, total_cents, currency, pricing_json,
	full_name, email, phone, date_of_birth, city,
	iaido_grade, iaido_exam, iaido_target_grade,
	jodo_grade, jodo_exam, jodo_target_grade,
	billing_name, billing_address, billing_postal_code, billing_city, billing_country,
	note,
	privacy_consent, privacy_version, privacy_accepted_at,
	terms_consent, terms_version, terms_accepted_at`

// Store provides SQLite-backed persistence for camp registrations.
type Store struct {
	sqlDB *sql.DB
}

// Open opens and migrates a registration SQLite store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Insert appends one registration record.
func (s *Store) Insert(ctx context.Context, reg registration.Registration) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(reg.ID) == "" {
		return fmt.Errorf("registration id is required")
	}

	pricingJSON, err := json.Marshal(reg.Pricing)
	if err != nil {
		return fmt.Errorf("marshal pricing snapshot: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("insert registration %s: id already exists: %w", reg.ID, err)
		}
		return fmt.Errorf("insert registration %s: %w", reg.ID, err)
	}
	return nil
}

// ListAll returns every registration ordered by creation time ascending,
// ties broken by physical insertion order.
func (s *Store) ListAll(ctx context.Context) ([]registration.Registration, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 ORDER BY created_at ASC, rowid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []registration.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}

// Count returns the number of registration rows, terminal statuses included.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int64
	row := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM registrations")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return count, nil
}

// MarkPaid flips a pending registration to PAID.
func (s *Store) MarkPaid(ctx context.Context, id string) error {
	return s.updateStatus(ctx, id, registration.StatusPaid,
		[]registration.Status{registration.StatusPendingPayment})
}

// MarkDeleted soft-deletes a registration. Re-marking a deleted row is a
// no-op success, as is marking an anonymized row.
func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	return s.updateStatus(ctx, id, registration.StatusDeleted,
		[]registration.Status{registration.StatusPendingPayment, registration.StatusPaid, registration.StatusDeleted})
}

// Anonymize irreversibly clears direct personal identifiers while keeping
// the id, timestamps, status marker and aggregate-relevant pricing fields.
// Repeat calls are no-op successes.
func (s *Store) Anonymize(ctx context.Context, id string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ErrNotFound
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE registrations
		 SET status = ?,
		     full_name = '',
		     email = 'anonymized-' || id || '@invalid.local',
		     phone = '',
		     date_of_birth = '',
		     city = '',
		     billing_name = '',
		     billing_address = '',
		     billing_postal_code = '',
		     billing_city = '',
		     billing_country = '',
		     note = ''
		 WHERE id = ?`,
		string(registration.StatusAnonymized),
		id,
	)
	if err != nil {
		return fmt.Errorf("anonymize registration %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("inspect anonymize result %s: %w", id, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) updateStatus(ctx context.Context, id string, to registration.Status, from []registration.Status) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ErrNotFound
	}

	placeholders := make([]string, len(from))
	args := []any{string(to), id}
	for i, status := range from {
		placeholders[i] = "?"
		args = append(args, string(status))
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE registrations SET status = ? WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update registration status %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("inspect status update result %s: %w", id, err)
	}
	if affected > 0 {
		return nil
	}

	// No row matched the guard: distinguish a missing id from a transition
	// the monotonic lifecycle disallows.
	var current string
	row := s.sqlDB.QueryRowContext(ctx, "SELECT status FROM registrations WHERE id = ?", id)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load registration status %s: %w", id, err)
	}
	if registration.Status(current) == to {
		return nil
	}
	if to == registration.StatusDeleted && registration.Status(current) == registration.StatusAnonymized {
		return nil
	}
	return fmt.Errorf("%w: registration %s is %s", storage.ErrInvalidTransition, id, current)
}

func (s *Store) runMigrations() error {
	if err := sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, ""); err != nil {
		return err
	}
	if err := s.ensureDisciplineColumns(); err != nil {
		return err
	}
	return s.backfillDisciplineColumns()
}

// ensureDisciplineColumns adds the per-discipline grade columns introduced
// after the combined-grade schema shipped. Safe to run on every startup.
func (s *Store) ensureDisciplineColumns() error {
	return sqlitemigrate.EnsureColumns(s.sqlDB, "registrations", []sqlitemigrate.Column{
		{Name: "iaido_grade", Definition: "TEXT NOT NULL DEFAULT ''"},
		{Name: "iaido_exam", Definition: "INTEGER NOT NULL DEFAULT 0"},
		{Name: "iaido_target_grade", Definition: "TEXT NOT NULL DEFAULT ''"},
		{Name: "jodo_grade", Definition: "TEXT NOT NULL DEFAULT ''"},
		{Name: "jodo_exam", Definition: "INTEGER NOT NULL DEFAULT 0"},
		{Name: "jodo_target_grade", Definition: "TEXT NOT NULL DEFAULT ''"},
	})
}

// backfillDisciplineColumns populates the per-discipline columns from the
// pre-split combined columns, but only where the new column is still empty
// so an explicitly set value is never overwritten.
func (s *Store) backfillDisciplineColumns() error {
	backfills := []string{
		`UPDATE registrations SET iaido_grade = current_grade
		 WHERE iaido_grade = '' AND current_grade != ''`,
		`UPDATE registrations SET iaido_target_grade = target_grade
		 WHERE iaido_target_grade = '' AND target_grade != ''`,
		`UPDATE registrations SET iaido_exam = wants_exam
		 WHERE iaido_exam = 0 AND wants_exam != 0`,
	}
	for _, backfill := range backfills {
		if _, err := s.sqlDB.Exec(backfill); err != nil {
			return fmt.Errorf("backfill discipline columns: %w", err)
		}
	}
	return nil
}

// ClassifyError tags engine failures for the retry wrapper: lock contention
// is retryable, everything else (constraints included) is fatal.
func ClassifyError(err error) retry.Class {
	if isSQLiteBusyError(err) {
		return retry.ClassRetryable
	}
	return retry.ClassFatal
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (registration.Registration, error) {
	var (
		reg               registration.Registration
		createdAt         string
		status            string
		pricingJSON       string
		totalCents        int64
		currency          string
		iaidoExam         int64
		jodoExam          int64
		privacyConsent    int64
		privacyAcceptedAt string
		termsConsent      int64
		termsAcceptedAt   string
	)

	err := row.Scan(
		&reg.ID,
		&createdAt,
		&status,
		&reg.CampType,
		&reg.MealPlan,
		&reg.Accommodation,
		&totalCents,
		&currency,
		&pricingJSON,
		&reg.FullName,
		&reg.Email,
		&reg.Phone,
		&reg.DateOfBirth,
		&reg.City,
		&reg.Iaido.CurrentGrade,
		&iaidoExam,
		&reg.Iaido.TargetGrade,
		&reg.Jodo.CurrentGrade,
		&jodoExam,
		&reg.Jodo.TargetGrade,
		&reg.Billing.Name,
		&reg.Billing.Address,
		&reg.Billing.PostalCode,
		&reg.Billing.City,
		&reg.Billing.Country,
		&reg.Note,
		&privacyConsent,
		&reg.PrivacyConsent.Version,
		&privacyAcceptedAt,
		&termsConsent,
		&reg.TermsConsent.Version,
		&termsAcceptedAt,
	)
	if err != nil {
		return registration.Registration{}, err
	}

	reg.CreatedAt, err = textToTime(createdAt)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	reg.Status = registration.Status(status)
	reg.Iaido.WantsExam = iaidoExam != 0
	reg.Jodo.WantsExam = jodoExam != 0
	reg.PrivacyConsent.Accepted = privacyConsent != 0
	reg.TermsConsent.Accepted = termsConsent != 0
	reg.PrivacyConsent.AcceptedAt, err = textToTime(privacyAcceptedAt)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("parse privacy_accepted_at %q: %w", privacyAcceptedAt, err)
	}
	reg.TermsConsent.AcceptedAt, err = textToTime(termsAcceptedAt)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("parse terms_accepted_at %q: %w", termsAcceptedAt, err)
	}

	if pricingJSON != "" {
		if err := json.Unmarshal([]byte(pricingJSON), &reg.Pricing); err != nil {
			return registration.Registration{}, fmt.Errorf("unmarshal pricing snapshot: %w", err)
		}
	} else {
		reg.Pricing = pricing.Breakdown{TotalCents: totalCents, Currency: currency}
	}

	return reg, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

func timeToText(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(createdAtFormat)
}

func textToTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

var _ storage.RegistrationStore = (*Store)(nil)
