package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seibukan/gasshuku/internal/notify"
	"github.com/seibukan/gasshuku/internal/platform/storage/retry"
	"github.com/seibukan/gasshuku/internal/pricing"
	"github.com/seibukan/gasshuku/internal/registration"
	"github.com/seibukan/gasshuku/internal/server/platform/apperrors"
	"github.com/seibukan/gasshuku/internal/server/platform/httpx"
)

// registerResponse is the success payload for an accepted registration.
type registerResponse struct {
	RegistrationID string            `json:"registrationId"`
	Status         string            `json:"status"`
	Pricing        pricing.Breakdown `json:"pricing"`
	PrivacyVersion string            `json:"privacyVersion"`
	TermsVersion   string            `json:"termsVersion"`
}

// validationResponse carries the accumulated validation failures.
type validationResponse struct {
	Errors []string `json:"errors"`
}

func (s *Server) handlePricing(w http.ResponseWriter, _ *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(httpx.RequestContext(r), "server.Register")
	defer span.End()

	var input registration.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = httpx.WriteJSON(w, http.StatusBadRequest, validationResponse{
			Errors: []string{"request body must be valid JSON"},
		})
		return
	}

	input = registration.Sanitize(input, s.catalog)
	if violations := registration.Validate(input); len(violations) > 0 {
		span.SetAttributes(attribute.Int("registration.violations", len(violations)))
		_ = httpx.WriteJSON(w, http.StatusBadRequest, validationResponse{Errors: violations})
		return
	}

	breakdown := s.catalog.Quote(input.CampType, input.MealPlan, input.Accommodation)
	reg, err := registration.New(input, breakdown, s.privacyVersion, s.termsVersion, s.now(), s.newID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		httpx.WriteError(w, apperrors.Wrap(apperrors.KindUnknown, "prepare registration", err))
		return
	}

	err = s.retry.Do(ctx, func() error {
		return s.store.Insert(ctx, reg)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.writeStoreError(w, "save registration", err)
		return
	}

	span.SetAttributes(attribute.String("registration.id", reg.ID))
	log.Printf("registration accepted id=%s camp=%s total=%d", reg.ID, reg.CampType, reg.Pricing.TotalCents)
	notify.Dispatch(s.notifier, reg)

	_ = httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		RegistrationID: reg.ID,
		Status:         string(reg.Status),
		Pricing:        reg.Pricing,
		PrivacyVersion: reg.PrivacyConsent.Version,
		TermsVersion:   reg.TermsConsent.Version,
	})
}

// writeStoreError maps storage failures onto the HTTP taxonomy. Exhausted
// contention retries surface as 503; everything else is an internal failure.
func (s *Server) writeStoreError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, retry.ErrExhausted):
		httpx.WriteError(w, apperrors.Wrap(apperrors.KindUnavailable, "storage is contended, retry shortly", err))
	default:
		log.Printf("%s failed: %v", action, err)
		httpx.WriteError(w, apperrors.Wrap(apperrors.KindUnknown, action+" failed", err))
	}
}
