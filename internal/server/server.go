package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/auth"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/aspirtakis/alekostrader-auth/internal/metrics"
	"github.com/aspirtakis/alekostrader-auth/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Options struct {
	Port          int
	ServiceName   string
	CORSOrigins   []string
	ValidateRate  float64
	ValidateBurst int
	// CredentialTTL is reported to clients as expiresIn.
	CredentialTTL time.Duration
}

type Server struct {
	opts     Options
	db       database.Service
	licenses service.LicenseService
	issuance service.IssuanceService
	admin    *auth.Admin
	tokens   *token.Issuer
	metrics  *metrics.Manager
	log      zerolog.Logger
	limiter  *ipLimiter
	nowFn    func() time.Time
}

func New(
	opts Options,
	db database.Service,
	licenses service.LicenseService,
	issuance service.IssuanceService,
	admin *auth.Admin,
	tokens *token.Issuer,
	m *metrics.Manager,
	log zerolog.Logger,
) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "AlekosTrader License Server"
	}
	if opts.ValidateRate <= 0 {
		opts.ValidateRate = 2
	}
	if opts.ValidateBurst <= 0 {
		opts.ValidateBurst = 10
	}
	registerValidators()

	return &Server{
		opts:     opts,
		db:       db,
		licenses: licenses,
		issuance: issuance,
		admin:    admin,
		tokens:   tokens,
		metrics:  m,
		log:      log.With().Str("component", "http").Logger(),
		limiter:  newIPLimiter(opts.ValidateRate, opts.ValidateBurst),
		nowFn:    time.Now,
	}
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("license server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}
	s.log.Info().Msg("server exiting")
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": s.nowFn().UTC().Format(time.RFC3339),
		"service":   s.opts.ServiceName,
		"testMode":  s.issuance.TestMode(),
	}
	if s.db != nil {
		stats := s.db.Health()
		body["database"] = stats
		if stats["status"] != "up" {
			body["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}
