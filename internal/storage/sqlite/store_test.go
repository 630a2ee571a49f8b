package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/seibukan/gasshuku/internal/platform/storage/retry"
	"github.com/seibukan/gasshuku/internal/pricing"
	"github.com/seibukan/gasshuku/internal/registration"
	"github.com/seibukan/gasshuku/internal/storage"
	_ "modernc.org/sqlite"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrations.db")
	store := openStore(t, path)
	_ = store

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	for _, column := range []string{"iaido_grade", "jodo_target_grade", "privacy_version"} {
		var count int64
		row := sqlDB.QueryRow("SELECT COUNT(*) FROM pragma_table_info('registrations') WHERE name = ?", column)
		if err := row.Scan(&count); err != nil {
			t.Fatalf("inspect column %s: %v", column, err)
		}
		if count != 1 {
			t.Fatalf("expected column %s after migration", column)
		}
	}
}

func TestInsertAndListRoundTrip(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "registrations.db"))
	ctx := context.Background()

	reg := sampleRegistration("reg-1", time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	if err := store.Insert(ctx, reg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	regs, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(regs))
	}

	got := regs[0]
	if got.ID != reg.ID {
		t.Fatalf("id = %q, want %q", got.ID, reg.ID)
	}
	if !got.CreatedAt.Equal(reg.CreatedAt) {
		t.Fatalf("created_at = %s, want %s", got.CreatedAt, reg.CreatedAt)
	}
	if got.Status != registration.StatusPendingPayment {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Email != reg.Email {
		t.Fatalf("email = %q, want %q", got.Email, reg.Email)
	}
	if got.Pricing.TotalCents != reg.Pricing.TotalCents {
		t.Fatalf("pricing total = %d, want %d", got.Pricing.TotalCents, reg.Pricing.TotalCents)
	}
	if len(got.Pricing.Items) != 3 {
		t.Fatalf("expected pricing snapshot with 3 items, got %d", len(got.Pricing.Items))
	}
	if got.Iaido.CurrentGrade != reg.Iaido.CurrentGrade || got.Jodo.CurrentGrade != reg.Jodo.CurrentGrade {
		t.Fatal("expected per-discipline grades to round-trip")
	}
	if got.PrivacyConsent.Version != reg.PrivacyConsent.Version {
		t.Fatalf("privacy version = %q", got.PrivacyConsent.Version)
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "registrations.db"))
	ctx := context.Background()

	reg := sampleRegistration("reg-dup", time.Now().UTC())
	if err := store.Insert(ctx, reg); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, reg); err == nil {
		t.Fatal("expected duplicate id failure")
	}
}

func TestListAllOrdersByCreationTime(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "registrations.db"))
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	// Insert out of chronological order; the tie pair shares a timestamp.
	for _, row := range []struct {
		id string
		at time.Time
	}{
		{"reg-c", base.Add(2 * time.Hour)},
		{"reg-a", base},
		{"reg-tie-1", base.Add(time.Hour)},
		{"reg-tie-2", base.Add(time.Hour)},
	} {
		if err := store.Insert(ctx, sampleRegistration(row.id, row.at)); err != nil {
			t.Fatalf("insert %s: %v", row.id, err)
		}
	}

	regs, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"reg-a", "reg-tie-1", "reg-tie-2", "reg-c"}
	if len(regs) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(regs))
	}
	for i, id := range want {
		if regs[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, regs[i].ID, id)
		}
	}
}

func TestMarkPaidOnlyFromPending(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "registrations.db"))
	ctx := context.Background()

	if err := store.Insert(ctx, sampleRegistration("reg-1", time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.MarkPaid(ctx, "reg-1"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	// Already PAID: no-op success.
	if err := store.MarkPaid(ctx, "reg-1"); err != nil {
		t.Fatalf("mark paid twice: %v", err)
	}
	if err := store.MarkDeleted(ctx, "reg-1"); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	if err := store.MarkPaid(ctx, "reg-1"); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from DELETED, got %v", err)
	}
}

func TestMarkDeletedNotFound(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "registrations.db"))
	if err := store.MarkDeleted(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnonymizeClearsFieldsAndIsIdempotent(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "registrations.db"))
	ctx := context.Background()

	created := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Insert(ctx, sampleRegistration("reg-1", created)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.Anonymize(ctx, "reg-1"); err != nil {
		t.Fatalf("anonymize: %v", err)
	}

	first := mustGet(t, store, "reg-1")
	if first.Status != registration.StatusAnonymized {
		t.Fatalf("status = %s", first.Status)
	}
	if first.FullName != "" || first.Phone != "" || first.City != "" || first.Note != "" {
		t.Fatal("expected personal fields cleared")
	}
	if first.Billing != (registration.Billing{}) {
		t.Fatal("expected billing block cleared")
	}
	if first.Email != registration.AnonymizedEmail("reg-1") {
		t.Fatalf("email = %q", first.Email)
	}
	if !first.CreatedAt.Equal(created) {
		t.Fatal("expected created_at untouched")
	}
	if first.CampType != pricing.CampBoth {
		t.Fatal("expected camp type preserved for statistics")
	}
	if first.Pricing.TotalCents == 0 {
		t.Fatal("expected pricing totals preserved")
	}

	// Second call is a no-op success and changes nothing.
	if err := store.Anonymize(ctx, "reg-1"); err != nil {
		t.Fatalf("anonymize twice: %v", err)
	}
	second := mustGet(t, store, "reg-1")
	if !reflect.DeepEqual(second, first) {
		t.Fatal("expected repeat anonymize to change nothing")
	}
}

func TestMarkDeletedOnAnonymizedIsNoOp(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "registrations.db"))
	ctx := context.Background()

	if err := store.Insert(ctx, sampleRegistration("reg-1", time.Now().UTC())); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Anonymize(ctx, "reg-1"); err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	if err := store.MarkDeleted(ctx, "reg-1"); err != nil {
		t.Fatalf("mark deleted on anonymized should be a no-op, got %v", err)
	}
	got := mustGet(t, store, "reg-1")
	if got.Status != registration.StatusAnonymized {
		t.Fatalf("status = %s, want ANONYMIZED to stick", got.Status)
	}
}

func TestBackfillPopulatesDisciplineColumnsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrations.db")
	store := openStore(t, path)

	// Simulate a row written before the per-discipline split.
	if _, err := store.sqlDB.Exec(
		`INSERT INTO registrations (id, created_at, current_grade, wants_exam, target_grade)
		 VALUES ('old-1', '2025-01-10T08:00:00.000Z', '2nd kyu', 1, '1st kyu')`,
	); err != nil {
		t.Fatalf("insert legacy-shaped row: %v", err)
	}

	if err := store.runMigrations(); err != nil {
		t.Fatalf("re-run migrations: %v", err)
	}

	got := mustGet(t, store, "old-1")
	if got.Iaido.CurrentGrade != "2nd kyu" {
		t.Fatalf("iaido grade = %q, want backfill from combined column", got.Iaido.CurrentGrade)
	}
	if !got.Iaido.WantsExam {
		t.Fatal("expected exam flag backfilled")
	}
	if got.Iaido.TargetGrade != "1st kyu" {
		t.Fatalf("iaido target = %q", got.Iaido.TargetGrade)
	}
	if got.Jodo.CurrentGrade != "" {
		t.Fatalf("jodo grade = %q, want empty", got.Jodo.CurrentGrade)
	}

	// A later explicit value survives replays.
	if _, err := store.sqlDB.Exec("UPDATE registrations SET iaido_grade = 'shodan' WHERE id = 'old-1'"); err != nil {
		t.Fatalf("set explicit value: %v", err)
	}
	if err := store.runMigrations(); err != nil {
		t.Fatalf("replay migrations: %v", err)
	}
	got = mustGet(t, store, "old-1")
	if got.Iaido.CurrentGrade != "shodan" {
		t.Fatalf("iaido grade = %q, expected explicit value to survive backfill replay", got.Iaido.CurrentGrade)
	}
}

func TestClassifyErrorTreatsPlainErrorsAsFatal(t *testing.T) {
	if got := ClassifyError(errors.New("constraint failed")); got != retry.ClassFatal {
		t.Fatalf("expected fatal class, got %v", got)
	}
	if got := ClassifyError(nil); got != retry.ClassFatal {
		t.Fatalf("expected fatal class for nil, got %v", got)
	}
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func mustGet(t *testing.T, store *Store, id string) registration.Registration {
	t.Helper()
	regs, err := store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, reg := range regs {
		if reg.ID == id {
			return reg
		}
	}
	t.Fatalf("registration %s not found", id)
	return registration.Registration{}
}

func sampleRegistration(id string, createdAt time.Time) registration.Registration {
	catalog := pricing.DefaultCatalog()
	return registration.Registration{
		ID:            id,
		CreatedAt:     createdAt,
		Status:        registration.StatusPendingPayment,
		CampType:      pricing.CampBoth,
		MealPlan:      pricing.MealLunch,
		Accommodation: pricing.AccommodationShared,
		Pricing:       catalog.Quote(pricing.CampBoth, pricing.MealLunch, pricing.AccommodationShared),
		FullName:      "Sakura Tanaka",
		Email:         "sakura@example.com",
		Phone:         "+32 478 55 66 77",
		City:          "Brugge",
		Iaido:         registration.Discipline{CurrentGrade: "1st dan", WantsExam: true, TargetGrade: "2nd dan"},
		Jodo:          registration.Discipline{CurrentGrade: "1st kyu"},
		Billing: registration.Billing{
			Name:       "Sakura Tanaka",
			Address:    "Langestraat 5",
			PostalCode: "8000",
			City:       "Brugge",
			Country:    "BE",
		},
		Note: "arrives late on friday",
		PrivacyConsent: registration.Consent{
			Accepted:   true,
			Version:    "privacy-2026-01",
			AcceptedAt: createdAt,
		},
		TermsConsent: registration.Consent{
			Accepted:   true,
			Version:    "terms-2026-01",
			AcceptedAt: createdAt,
		},
	}
}
