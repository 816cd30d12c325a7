package main

import (
	"context"

	"github.com/aspirtakis/alekostrader-auth/internal/config"
	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/auth"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/notify"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/payment"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/aspirtakis/alekostrader-auth/internal/keygen"
	"github.com/aspirtakis/alekostrader-auth/internal/logger"
	"github.com/aspirtakis/alekostrader-auth/internal/metrics"
	"github.com/aspirtakis/alekostrader-auth/internal/repo"
	"github.com/aspirtakis/alekostrader-auth/internal/service"
	"github.com/rs/zerolog"
)

const tokenIssuer = "alekostrader-licensed"

// app holds the components shared by serve and reconcile.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	catalog  *domain.TierCatalog
	db       database.Service
	metrics  *metrics.Manager
	tokens   *token.Issuer
	admin    *auth.Admin
	orders   repo.OrderRepo
	gateway  payment.PaymentGateway
	licenses service.LicenseService
	issuance service.IssuanceService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.New(logger.Options{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxMB,
		MaxFiles:  cfg.LogFiles,
	})

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	db, err := database.New(ctx, database.Options{
		Engine:     cfg.DBEngine,
		SQLitePath: cfg.SQLitePath,
		DSN:        cfg.DatabaseURL,
		Host:       cfg.Postgres.Host,
		Port:       cfg.Postgres.Port,
		Username:   cfg.Postgres.Username,
		Password:   cfg.Postgres.Password,
		Database:   cfg.Postgres.Database,
		Schema:     cfg.Postgres.Schema,
		Tiers:      catalog.Tiers(),
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewIssuer(cfg.JWTSecret, tokenIssuer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		catalog: catalog,
		db:      db,
		metrics: metrics.NewManager(),
		tokens:  tokens,
		admin:   auth.NewAdmin(cfg.AdminUsername, cfg.AdminPasswordHash, tokens, cfg.JWTExpiry),
		orders:  repo.NewOrderRepo(db.DB()),
	}

	if cfg.PayPal.Enabled() {
		a.gateway = payment.NewPayPal(payment.PayPalOptions{
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			BaseURL:      cfg.PayPal.APIBase(),
			ReturnURL:    cfg.PayPal.ReturnURL,
			CancelURL:    cfg.PayPal.CancelURL,
			BrandName:    cfg.ProductName,
		})
		log.Info().Str("mode", cfg.PayPal.Mode).Msg("paypal checkout enabled")
	} else {
		log.Warn().Msg("paypal not configured, checkout runs in offline test mode")
	}

	var notifier notify.Notifier = notify.NewNoop(log)
	if cfg.Email.Enabled() {
		notifier = notify.NewEmail(notify.EmailOptions{
			Host:        cfg.Email.Host,
			Port:        cfg.Email.Port,
			User:        cfg.Email.User,
			Pass:        cfg.Email.Pass,
			From:        cfg.Email.From,
			ProductName: cfg.ProductName,
			Timeout:     cfg.UpstreamTimeout,
		}, log)
	}

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(a.metrics)}
	a.licenses = service.NewLicenseService(repo.NewLicenseRepo(db.DB()), catalog, keygen.New(nil), tokens, cfg.JWTExpiry, opts...)
	a.issuance = service.NewIssuanceService(a.orders, a.licenses, a.gateway, notifier, service.IssuanceConfig{
		Catalog:         catalog,
		LicenseValidity: cfg.LicenseValidity,
		UpstreamTimeout: cfg.UpstreamTimeout,
		ProductName:     cfg.ProductName,
	}, opts...)

	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close database")
	}
}
