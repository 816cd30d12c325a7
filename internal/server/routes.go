package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(s.recovery(), s.requestLogger())
	r.Use(cors.New(corsConfig(s.opts.CORSOrigins)))

	api := r.Group("/api")
	api.GET("/health", s.healthHandler)

	authGroup := api.Group("/auth")
	authGroup.POST("/login", s.loginHandler)

	license := api.Group("/license")
	license.POST("/validate", s.rateLimit(), s.validateHandler)
	license.POST("/verify", s.verifyHandler)

	admin := license.Group("", s.requireAdmin())
	admin.POST("/create", s.createLicenseHandler)
	admin.GET("/list", s.listLicensesHandler)
	admin.POST("/activate", s.activateHandler)
	admin.POST("/deactivate", s.deactivateHandler)
	admin.POST("/reset-hardware", s.resetHardwareHandler)
	admin.POST("/set-expiry", s.setExpiryHandler)
	admin.POST("/delete", s.deleteHandler)

	checkout := api.Group("/checkout")
	checkout.GET("/prices", s.pricesHandler)
	checkout.POST("/create-order", s.createOrderHandler)
	checkout.POST("/capture-order", s.captureOrderHandler)
	checkout.POST("/test-purchase", s.testPurchaseHandler)

	api.GET("/orders", s.requireAdmin(), s.listOrdersHandler)

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cfg
}
