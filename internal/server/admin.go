package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seibukan/gasshuku/internal/adminsession"
	"github.com/seibukan/gasshuku/internal/server/platform/apperrors"
	"github.com/seibukan/gasshuku/internal/server/platform/httpx"
	"github.com/seibukan/gasshuku/internal/server/platform/sessioncookie"
	"github.com/seibukan/gasshuku/internal/stats"
	"github.com/seibukan/gasshuku/internal/storage"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool `json:"authenticated"`
}

type statusUpdateRequest struct {
	RegistrationID string `json:"registrationId"`
}

// requireAdmin gates a handler behind a valid admin session cookie.
func (s *Server) requireAdmin() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.authenticated(r) {
				httpx.WriteError(w, apperrors.E(apperrors.KindUnauthorized, "admin session required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticated reports whether the request carries a valid session cookie.
func (s *Server) authenticated(r *http.Request) bool {
	token, ok := sessioncookie.Read(r)
	if !ok {
		return false
	}
	return s.session.VerifyToken(token) == nil
}

func (s *Server) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: s.authenticated(r)})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperrors.E(apperrors.KindUnauthorized, "invalid credentials"))
		return
	}
	if !s.session.Authenticate(req.Username, req.Password) {
		log.Printf("admin login rejected username=%q", req.Username)
		httpx.WriteError(w, apperrors.E(apperrors.KindUnauthorized, "invalid credentials"))
		return
	}

	token, _, err := s.session.IssueToken()
	if err != nil {
		log.Printf("issue admin token: %v", err)
		httpx.WriteError(w, apperrors.Wrap(apperrors.KindUnknown, "issue session token", err))
		return
	}
	sessioncookie.Write(w, r, token, adminsession.TokenTTL)
	_ = httpx.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: true})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	sessioncookie.Clear(w, r)
	_ = httpx.WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(httpx.RequestContext(r), "server.Stats")
	defer span.End()

	regs, err := s.store.ListAll(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.writeStoreError(w, "load registrations", err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, stats.Compute(regs, s.catalog.Currency))
}

func (s *Server) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(httpx.RequestContext(r), "server.ListRegistrations")
	defer span.End()

	regs, err := s.store.ListAll(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.writeStoreError(w, "load registrations", err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"registrations": regs,
		"count":         len(regs),
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(httpx.RequestContext(r), "server.ExportCSV")
	defer span.End()

	regs, err := s.store.ListAll(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.writeStoreError(w, "load registrations", err)
		return
	}

	filename := stats.ExportFilename(s.now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := stats.WriteCSV(w, regs); err != nil {
		// Headers are already on the wire; all we can do is log.
		log.Printf("write csv export: %v", err)
	}
}

// statusUpdateHandler builds the admin handler for one status mutation. The
// mutation runs under the contention retry policy.
func (s *Server) statusUpdateHandler(action string, mutate func(ctx context.Context, id string) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(httpx.RequestContext(r), "server.StatusUpdate")
		defer span.End()
		span.SetAttributes(attribute.String("registration.action", action))

		var req statusUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "request body must be valid JSON"))
			return
		}
		regID := strings.TrimSpace(req.RegistrationID)
		if regID == "" {
			httpx.WriteError(w, apperrors.E(apperrors.KindInvalidInput, "registrationId is required"))
			return
		}
		span.SetAttributes(attribute.String("registration.id", regID))

		err := s.retry.Do(ctx, func() error {
			return mutate(ctx, regID)
		})
		switch {
		case err == nil:
			log.Printf("registration %s id=%s", action, regID)
			_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"registrationId": regID})
		case errors.Is(err, storage.ErrNotFound):
			httpx.WriteError(w, apperrors.E(apperrors.KindNotFound, "registration not found"))
		case errors.Is(err, storage.ErrInvalidTransition):
			httpx.WriteError(w, apperrors.Wrap(apperrors.KindConflict, "registration status does not allow "+action, err))
		default:
			span.SetStatus(codes.Error, err.Error())
			s.writeStoreError(w, action, err)
		}
	})
}
