package main

import (
	"github.com/aspirtakis/alekostrader-auth/internal/config"
	"github.com/aspirtakis/alekostrader-auth/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func RunServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the license HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Env != "local" {
				gin.SetMode(gin.ReleaseMode)
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.AdminPasswordHash == "" {
				a.log.Warn().Msg("ADMIN_PASSWORD_HASH not set, admin endpoints are unreachable")
			}

			srv := server.New(server.Options{
				Port:          cfg.Port,
				ServiceName:   cfg.ProductName + " License Server",
				CORSOrigins:   cfg.CORSOrigins,
				ValidateRate:  cfg.ValidateRate,
				ValidateBurst: cfg.ValidateBurst,
				CredentialTTL: cfg.JWTExpiry,
			}, a.db, a.licenses, a.issuance, a.admin, a.tokens, a.metrics, a.log)

			return srv.ListenAndServe(cmd.Context())
		},
	}
}
