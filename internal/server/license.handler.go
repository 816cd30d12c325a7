package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/aspirtakis/alekostrader-auth/internal/service"
	"github.com/gin-gonic/gin"
)

type validateRequest struct {
	LicenseKey string `json:"licenseKey"`
	HardwareID string `json:"hardwareId"`
}

type verifyRequest struct {
	Token string `json:"token" binding:"required"`
}

type createLicenseRequest struct {
	Tier       string     `json:"tier" binding:"required"`
	Price      *float64   `json:"price" binding:"omitempty,gte=0"`
	OwnerEmail string     `json:"ownerEmail" binding:"omitempty,email"`
	OwnerName  string     `json:"ownerName"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	CustomKey  string     `json:"customKey" binding:"omitempty,licensekey"`
}

type licenseKeyRequest struct {
	LicenseKey string `json:"licenseKey" binding:"required,licensekey"`
}

type setExpiryRequest struct {
	LicenseKey string `json:"licenseKey" binding:"required,licensekey"`
	// ExpiresAt null or absent removes the expiry.
	ExpiresAt *time.Time `json:"expiresAt"`
}

// validateHandler leaves key checks to the service so that malformed keys
// are rejected before any lookup, in the documented order.
func (s *Server) validateHandler(c *gin.Context) {
	var req validateRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, gin.H{"valid": false})
		return
	}

	res, err := s.licenses.Validate(c.Request.Context(), req.LicenseKey, req.HardwareID)
	if err != nil {
		abortWithError(c, err, gin.H{"valid": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"token":     res.Token,
		"tier":      res.Tier,
		"expiresIn": formatTTL(res.ExpiresIn),
	})
}

func (s *Server) verifyHandler(c *gin.Context) {
	var req verifyRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, gin.H{"valid": false})
		return
	}

	claims, err := s.tokens.Verify(req.Token)
	if err != nil {
		abortWithError(c, err, gin.H{"valid": false})
		return
	}
	if claims.LicenseKey == "" {
		abortWithError(c, domain.ErrUnauthorized.With("not a license credential"), gin.H{"valid": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"licenseKey": claims.LicenseKey,
		"hardwareId": claims.HardwareID,
		"tier":       claims.Tier,
		"ownerEmail": claims.OwnerEmail,
		"expiresAt":  claims.ExpiresAt,
	})
}

func (s *Server) createLicenseHandler(c *gin.Context) {
	var req createLicenseRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, nil)
		return
	}

	in := service.CreateLicenseInput{
		Tier:       req.Tier,
		OwnerEmail: req.OwnerEmail,
		OwnerName:  req.OwnerName,
		CustomKey:  req.CustomKey,
		ExpiresAt:  req.ExpiresAt,
	}
	if req.Price != nil {
		in.Price = *req.Price
	} else {
		in.Price = s.issuance.Prices().Tiers[req.Tier]
	}

	license, err := s.licenses.Create(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"license": license,
	})
}

func (s *Server) listLicensesHandler(c *gin.Context) {
	licenses, err := s.licenses.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(licenses),
		"licenses": licenses,
	})
}

func (s *Server) activateHandler(c *gin.Context) {
	s.adminAction(c, "License activated", s.licenses.Activate)
}

func (s *Server) deactivateHandler(c *gin.Context) {
	s.adminAction(c, "License deactivated", s.licenses.Deactivate)
}

func (s *Server) resetHardwareHandler(c *gin.Context) {
	s.adminAction(c, "Hardware binding reset", s.licenses.ResetHardware)
}

func (s *Server) deleteHandler(c *gin.Context) {
	s.adminAction(c, "License deleted", s.licenses.Delete)
}

func (s *Server) setExpiryHandler(c *gin.Context) {
	var req setExpiryRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, nil)
		return
	}
	if err := s.licenses.SetExpiry(c.Request.Context(), req.LicenseKey, req.ExpiresAt); err != nil {
		abortWithError(c, err, nil)
		return
	}

	msg := "License expiry removed"
	if req.ExpiresAt != nil {
		msg = "License expiry set to " + req.ExpiresAt.UTC().Format(time.RFC3339)
	}
	s.log.Info().Str("admin", adminName(c)).Msg(msg)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (s *Server) adminAction(c *gin.Context, msg string, op func(ctx context.Context, key string) error) {
	var req licenseKeyRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, nil)
		return
	}
	if err := op(c.Request.Context(), req.LicenseKey); err != nil {
		abortWithError(c, err, nil)
		return
	}
	s.log.Info().Str("admin", adminName(c)).Msg(msg)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func adminName(c *gin.Context) string {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(token.Claims); ok {
			return claims.Username
		}
	}
	return ""
}

// formatTTL renders durations the way they are configured, e.g. "30m" or "1h".
func formatTTL(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}
