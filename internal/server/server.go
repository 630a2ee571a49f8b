// Package server hosts the registration API HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/seibukan/gasshuku/internal/adminsession"
	"github.com/seibukan/gasshuku/internal/notify"
	"github.com/seibukan/gasshuku/internal/platform/id"
	"github.com/seibukan/gasshuku/internal/platform/storage/retry"
	"github.com/seibukan/gasshuku/internal/pricing"
	"github.com/seibukan/gasshuku/internal/server/platform/httpx"
	"github.com/seibukan/gasshuku/internal/storage"
)

// shutdownTimeout caps how long in-flight requests may run after the serve
// context ends.
const shutdownTimeout = 5 * time.Second

// Config defines the inputs for the API server.
type Config struct {
	HTTPAddr string

	Store   storage.RegistrationStore
	Catalog pricing.Catalog
	Session adminsession.Config
	Retry   retry.Policy

	Notifier notify.Notifier

	PrivacyVersion string
	TermsVersion   string

	// Now and NewID are injectable for tests; nil means the real clock and
	// random id generator.
	Now   func() time.Time
	NewID func() (string, error)
}

// Server hosts the registration API.
type Server struct {
	httpAddr   string
	httpServer *http.Server

	store    storage.RegistrationStore
	catalog  pricing.Catalog
	session  adminsession.Config
	retry    retry.Policy
	notifier notify.Notifier

	privacyVersion string
	termsVersion   string

	now    func() time.Time
	newID  func() (string, error)
	tracer trace.Tracer
}

// New builds a configured API server.
func New(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.Store == nil {
		return nil, errors.New("registration store is required")
	}
	if err := config.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	if err := config.Session.Validate(); err != nil {
		return nil, fmt.Errorf("validate admin session config: %w", err)
	}
	if strings.TrimSpace(config.PrivacyVersion) == "" || strings.TrimSpace(config.TermsVersion) == "" {
		return nil, errors.New("privacy and terms versions are required")
	}
	if config.Retry.Classify == nil {
		return nil, errors.New("retry classifier is required")
	}

	server := &Server{
		httpAddr:       httpAddr,
		store:          config.Store,
		catalog:        config.Catalog,
		session:        config.Session,
		retry:          config.Retry,
		notifier:       config.Notifier,
		privacyVersion: strings.TrimSpace(config.PrivacyVersion),
		termsVersion:   strings.TrimSpace(config.TermsVersion),
		now:            config.Now,
		newID:          config.NewID,
		tracer:         otel.Tracer("gasshuku/server"),
	}
	if server.now == nil {
		server.now = time.Now
	}
	if server.newID == nil {
		server.newID = id.NewID
	}

	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server, nil
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.Chain(
		http.HandlerFunc(s.handleHealthz),
		httpx.RequireMethod(http.MethodGet),
	))

	mux.Handle("/api/pricing", httpx.Chain(
		http.HandlerFunc(s.handlePricing),
		httpx.RequireMethod(http.MethodGet),
	))
	mux.Handle("/api/register", httpx.Chain(
		http.HandlerFunc(s.handleRegister),
		httpx.RequireMethod(http.MethodPost),
	))

	mux.Handle("/api/admin/session", httpx.Chain(
		http.HandlerFunc(s.handleAdminSession),
		httpx.RequireMethod(http.MethodGet),
	))
	mux.Handle("/api/admin/login", httpx.Chain(
		http.HandlerFunc(s.handleAdminLogin),
		httpx.RequireMethod(http.MethodPost),
	))
	mux.Handle("/api/admin/logout", httpx.Chain(
		http.HandlerFunc(s.handleAdminLogout),
		httpx.RequireMethod(http.MethodPost),
	))

	mux.Handle("/api/stats", httpx.Chain(
		http.HandlerFunc(s.handleStats),
		httpx.RequireMethod(http.MethodGet),
		s.requireAdmin(),
	))
	mux.Handle("/api/registrations", httpx.Chain(
		http.HandlerFunc(s.handleRegistrations),
		httpx.RequireMethod(http.MethodGet),
		s.requireAdmin(),
	))
	mux.Handle("/api/admin/export.csv", httpx.Chain(
		http.HandlerFunc(s.handleExportCSV),
		httpx.RequireMethod(http.MethodGet),
		s.requireAdmin(),
	))

	mux.Handle("/api/admin/registrations/mark-paid", httpx.Chain(
		s.statusUpdateHandler("mark paid", s.store.MarkPaid),
		httpx.RequireMethod(http.MethodPost),
		s.requireAdmin(),
	))
	mux.Handle("/api/admin/registrations/mark-deleted", httpx.Chain(
		s.statusUpdateHandler("mark deleted", s.store.MarkDeleted),
		httpx.RequireMethod(http.MethodPost),
		s.requireAdmin(),
	))
	mux.Handle("/api/admin/registrations/anonymize", httpx.Chain(
		s.statusUpdateHandler("anonymize", s.store.Anonymize),
		httpx.RequireMethod(http.MethodPost),
		s.requireAdmin(),
	))

	// Future payment and invoicing integration points.
	mux.HandleFunc("/api/payments/create-checkout-session", s.handleNotImplemented)
	mux.HandleFunc("/api/invoices/create", s.handleNotImplemented)
	mux.HandleFunc("/api/stripe/webhook", s.handleNotImplemented)

	return httpx.Chain(mux, httpx.RecoverPanic(), httpx.RequestID())
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("api server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	log.Printf("registration api listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	_ = httpx.WriteJSONError(w, http.StatusNotImplemented, "not implemented")
}
