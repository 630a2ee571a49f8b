// Package server wires configuration, storage, and the HTTP server for the
// registration service process.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/seibukan/gasshuku/internal/adminsession"
	"github.com/seibukan/gasshuku/internal/notify"
	"github.com/seibukan/gasshuku/internal/platform/config"
	"github.com/seibukan/gasshuku/internal/platform/otel"
	"github.com/seibukan/gasshuku/internal/platform/storage/retry"
	"github.com/seibukan/gasshuku/internal/pricing"
	apiserver "github.com/seibukan/gasshuku/internal/server"
	"github.com/seibukan/gasshuku/internal/storage/sqlite"
)

// Config holds the registration service configuration.
type Config struct {
	HTTPAddr string `env:"GASSHUKU_HTTP_ADDR" envDefault:"localhost:8080"`
	DBPath   string `env:"GASSHUKU_DB_PATH" envDefault:"gasshuku.db"`

	// LegacyImportPath points at the flat-file export of the previous
	// system; empty disables the one-time import.
	LegacyImportPath string `env:"GASSHUKU_LEGACY_IMPORT_PATH"`

	AdminUsername string `env:"GASSHUKU_ADMIN_USERNAME"`
	AdminPassword string `env:"GASSHUKU_ADMIN_PASSWORD"`
	SessionSecret string `env:"GASSHUKU_SESSION_SECRET"`

	BaseURL   string `env:"GASSHUKU_BASE_URL"`
	NotifyURL string `env:"GASSHUKU_NOTIFY_URL"`

	PrivacyVersion string `env:"GASSHUKU_PRIVACY_VERSION" envDefault:"2026-01"`
	TermsVersion   string `env:"GASSHUKU_TERMS_VERSION" envDefault:"2026-01"`
	Currency       string `env:"GASSHUKU_CURRENCY"`
}

// ParseConfig reads the configuration from the environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Run starts the registration service and blocks until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := otel.Setup(ctx, "gasshuku")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	catalog := pricing.DefaultCatalog()
	if currency := strings.TrimSpace(cfg.Currency); currency != "" {
		catalog.Currency = currency
	}
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open registration store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close registration store: %v", err)
		}
	}()

	// A half-imported store must never serve traffic; import failures
	// abort startup.
	if path := strings.TrimSpace(cfg.LegacyImportPath); path != "" {
		if err := store.ImportLegacyFile(ctx, path, catalog); err != nil {
			return fmt.Errorf("import legacy registrations: %w", err)
		}
	}

	server, err := apiserver.New(apiserver.Config{
		HTTPAddr: cfg.HTTPAddr,
		Store:    store,
		Catalog:  catalog,
		Session: adminsession.Config{
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
			Secret:   []byte(cfg.SessionSecret),
		},
		Retry:          retry.DefaultPolicy(sqlite.ClassifyError),
		Notifier:       notify.NewWebhook(cfg.NotifyURL, cfg.BaseURL),
		PrivacyVersion: cfg.PrivacyVersion,
		TermsVersion:   cfg.TermsVersion,
	})
	if err != nil {
		return fmt.Errorf("init api server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}
