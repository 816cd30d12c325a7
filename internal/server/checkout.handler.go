package server

import (
	"net/http"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/service"
	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	Tier          string `json:"tier"`
	IncludeAddOns bool   `json:"includeAddOns"`
	// IncludeHardware is accepted from older storefront builds.
	IncludeHardware bool   `json:"includeHardware"`
	CustomerEmail   string `json:"customerEmail" binding:"omitempty,email"`
	CustomerName    string `json:"customerName"`
}

func (r checkoutRequest) input() service.CheckoutInput {
	return service.CheckoutInput{
		Tier:          r.Tier,
		IncludeAddOns: r.IncludeAddOns || r.IncludeHardware,
		CustomerEmail: r.CustomerEmail,
		CustomerName:  r.CustomerName,
	}
}

type captureRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	checkoutRequest
}

func (s *Server) pricesHandler(c *gin.Context) {
	prices := s.issuance.Prices()
	c.JSON(http.StatusOK, gin.H{
		"tiers":         prices.Tiers,
		"addOnPrice":    prices.AddOn,
		"hardwareAddon": prices.AddOn,
		"currency":      prices.Currency,
	})
}

func (s *Server) createOrderHandler(c *gin.Context) {
	var req checkoutRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, nil)
		return
	}

	res, err := s.issuance.CreateCheckout(c.Request.Context(), req.input())
	if err != nil {
		abortWithError(c, err, nil)
		return
	}

	body := gin.H{
		"orderId":       res.OrderID,
		"status":        res.Status,
		"tier":          res.Tier,
		"includeAddOns": res.IncludeAddOns,
		"customerEmail": res.CustomerEmail,
		"customerName":  res.CustomerName,
		"totalPrice":    res.TotalPrice,
		"currency":      res.Currency,
		"testMode":      res.TestMode,
	}
	if res.ApprovalURL != "" {
		body["approveUrl"] = res.ApprovalURL
	}
	if res.TestMode {
		body["message"] = "Payment gateway not configured - test mode enabled"
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) captureOrderHandler(c *gin.Context) {
	var req captureRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, nil)
		return
	}

	in := req.input()
	res, err := s.issuance.Capture(c.Request.Context(), service.CaptureInput{
		OrderID:       req.OrderID,
		Tier:          in.Tier,
		IncludeAddOns: in.IncludeAddOns,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
	})
	if err != nil {
		abortWithError(c, err, gin.H{"orderId": req.OrderID})
		return
	}
	c.JSON(http.StatusOK, issuanceBody(res))
}

func (s *Server) testPurchaseHandler(c *gin.Context) {
	var req checkoutRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, nil)
		return
	}

	res, err := s.issuance.TestPurchase(c.Request.Context(), req.input())
	if err != nil {
		abortWithError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, issuanceBody(res))
}

func (s *Server) listOrdersHandler(c *gin.Context) {
	orders, err := s.issuance.ListOrders(c.Request.Context(), c.Query("email"))
	if err != nil {
		abortWithError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(orders),
		"orders": orders,
	})
}

func issuanceBody(res *service.IssuanceResult) gin.H {
	body := gin.H{
		"success":       true,
		"orderId":       res.OrderID,
		"licenseKey":    res.LicenseKey,
		"tier":          res.Tier,
		"customerEmail": res.CustomerEmail,
		"totalPrice":    res.TotalPrice,
		"currency":      res.Currency,
		"emailSent":     res.EmailSent,
		"testMode":      res.TestMode,
	}
	if res.ExpiresAt != nil {
		body["expiresAt"] = res.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if res.TransactionID != "" {
		body["transactionId"] = res.TransactionID
	}
	if res.AlreadyCompleted {
		body["alreadyCompleted"] = true
	}
	return body
}
