// Package stats derives aggregate statistics and the CSV export from the
// current registration set.
package stats

import (
	"time"

	"github.com/seibukan/gasshuku/internal/pricing"
	"github.com/seibukan/gasshuku/internal/registration"
)

// Summary is the aggregate view over all registrations. Counts and
// histograms cover active records only; terminal statuses are tallied in
// StatusCounts and otherwise excluded so deletions and anonymization do not
// distort applicant statistics.
type Summary struct {
	ActiveCount           int              `json:"activeCount"`
	StatusCounts          map[string]int   `json:"statusCounts"`
	IaidoCount            int              `json:"iaidoCount"`
	JodoCount             int              `json:"jodoCount"`
	IaidoGrades           map[string]int   `json:"iaidoGrades"`
	IaidoTargetGrades     map[string]int   `json:"iaidoTargetGrades"`
	JodoGrades            map[string]int   `json:"jodoGrades"`
	JodoTargetGrades      map[string]int   `json:"jodoTargetGrades"`
	ProjectedRevenueCents int64            `json:"projectedRevenueCents"`
	Currency              string           `json:"currency"`
	LatestRegistrationAt  *time.Time       `json:"latestRegistrationAt,omitempty"`
}

// Compute derives the aggregate summary. The currency is the deployment's
// single configured currency.
func Compute(regs []registration.Registration, currency string) Summary {
	summary := Summary{
		StatusCounts: map[string]int{
			string(registration.StatusPendingPayment): 0,
			string(registration.StatusPaid):           0,
			string(registration.StatusDeleted):        0,
			string(registration.StatusAnonymized):     0,
		},
		IaidoGrades:       make(map[string]int),
		IaidoTargetGrades: make(map[string]int),
		JodoGrades:        make(map[string]int),
		JodoTargetGrades:  make(map[string]int),
		Currency:          currency,
	}

	var latest time.Time
	for _, reg := range regs {
		summary.StatusCounts[string(reg.Status)]++
		if reg.Status.Terminal() {
			continue
		}

		summary.ActiveCount++
		summary.ProjectedRevenueCents += reg.Pricing.TotalCents
		if reg.CreatedAt.After(latest) {
			latest = reg.CreatedAt
		}

		attendsIaido := reg.CampType == pricing.CampIaido || reg.CampType == pricing.CampBoth
		attendsJodo := reg.CampType == pricing.CampJodo || reg.CampType == pricing.CampBoth
		if attendsIaido {
			summary.IaidoCount++
		}
		if attendsJodo {
			summary.JodoCount++
		}

		if reg.Iaido.CurrentGrade != "" {
			summary.IaidoGrades[reg.Iaido.CurrentGrade]++
		}
		if reg.Iaido.WantsExam && reg.Iaido.TargetGrade != "" {
			summary.IaidoTargetGrades[reg.Iaido.TargetGrade]++
		}
		if reg.Jodo.CurrentGrade != "" {
			summary.JodoGrades[reg.Jodo.CurrentGrade]++
		}
		if reg.Jodo.WantsExam && reg.Jodo.TargetGrade != "" {
			summary.JodoTargetGrades[reg.Jodo.TargetGrade]++
		}
	}

	if !latest.IsZero() {
		summary.LatestRegistrationAt = &latest
	}
	return summary
}
