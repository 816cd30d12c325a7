package service

import (
	"context"
	"strings"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/notify"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/payment"
	"github.com/aspirtakis/alekostrader-auth/internal/logger"
	"github.com/aspirtakis/alekostrader-auth/internal/repo"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type CheckoutInput struct {
	Tier          string
	IncludeAddOns bool
	CustomerEmail string
	CustomerName  string
}

type CheckoutResult struct {
	OrderID       string
	Status        domain.OrderStatus
	Tier          string
	IncludeAddOns bool
	CustomerEmail string
	CustomerName  string
	TotalPrice    float64
	Currency      string
	ApprovalURL   string
	TestMode      bool
}

// CaptureInput carries the order id. Tier and customer fields are only read
// for offline TEST- orders that were never stored.
type CaptureInput struct {
	OrderID       string
	Tier          string
	IncludeAddOns bool
	CustomerEmail string
	CustomerName  string
}

type IssuanceResult struct {
	OrderID          string
	LicenseKey       string
	Tier             string
	CustomerEmail    string
	TotalPrice       float64
	Currency         string
	ExpiresAt        *time.Time
	TransactionID    string
	EmailSent        bool
	TestMode         bool
	AlreadyCompleted bool
}

type PriceList struct {
	Tiers    map[string]float64
	AddOn    float64
	Currency string
}

type IssuanceService interface {
	Prices() PriceList
	TestMode() bool
	CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	Capture(ctx context.Context, in CaptureInput) (*IssuanceResult, error)
	TestPurchase(ctx context.Context, in CheckoutInput) (*IssuanceResult, error)
	// FulfillCaptured runs the post-capture half of the pipeline for an order
	// whose payment is already confirmed. It never contacts the gateway.
	FulfillCaptured(ctx context.Context, order *domain.Order, transactionID string) (*IssuanceResult, error)
	// ListOrders returns every order, or only the customer's when email is set.
	ListOrders(ctx context.Context, email string) ([]domain.Order, error)
}

type IssuanceConfig struct {
	Catalog         *domain.TierCatalog
	LicenseValidity time.Duration
	UpstreamTimeout time.Duration
	ProductName     string
}

type issuanceService struct {
	orders   repo.OrderRepo
	licenses LicenseService
	gateway  payment.PaymentGateway
	notifier notify.Notifier
	cfg      IssuanceConfig
	options
}

// NewIssuanceService wires the pipeline. A nil gateway selects offline test
// mode, where every result is flagged TestMode.
func NewIssuanceService(
	orders repo.OrderRepo,
	licenses LicenseService,
	gateway payment.PaymentGateway,
	notifier notify.Notifier,
	cfg IssuanceConfig,
	opts ...Option,
) IssuanceService {
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "AlekosTrader"
	}
	return &issuanceService{
		orders:   orders,
		licenses: licenses,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		options:  buildOptions("issuance", opts),
	}
}

func (s *issuanceService) TestMode() bool {
	return s.gateway == nil
}

func (s *issuanceService) mode() string {
	if s.TestMode() {
		return "offline"
	}
	return "live"
}

func (s *issuanceService) Prices() PriceList {
	return PriceList{
		Tiers:    s.cfg.Catalog.Prices(),
		AddOn:    s.cfg.Catalog.AddOnPrice(),
		Currency: s.cfg.Catalog.Currency(),
	}
}

func (s *issuanceService) validateCheckout(in CheckoutInput) error {
	if !s.cfg.Catalog.Has(in.Tier) {
		return domain.ErrInvalidTier.With("invalid tier, must be one of: " + strings.Join(s.cfg.Catalog.Tiers(), ", "))
	}
	if strings.TrimSpace(in.CustomerEmail) == "" {
		return domain.ErrMissingParameter.With("customer email required")
	}
	return nil
}

func newTestOrderID() string {
	return domain.TestOrderPrefix + strings.ToUpper(uuid.NewString()[:8])
}

func (s *issuanceService) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if err := s.validateCheckout(in); err != nil {
		return nil, err
	}

	total := s.cfg.Catalog.Total(in.Tier, in.IncludeAddOns)
	order := &domain.Order{
		Tier:          in.Tier,
		IncludeAddOns: in.IncludeAddOns,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  domain.StringPtr(in.CustomerName),
		TotalAmount:   total,
		Currency:      s.cfg.Catalog.Currency(),
		Status:        domain.OrderPending,
		CreatedAt:     s.now(),
	}

	var approvalURL string
	if s.TestMode() {
		order.OrderID = newTestOrderID()
	} else {
		gwCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
		defer cancel()

		created, err := s.gateway.CreateOrder(gwCtx, payment.CreateOrderRequest{
			Tier:          in.Tier,
			IncludeAddOns: in.IncludeAddOns,
			Amount:        total,
			Currency:      order.Currency,
			Description:   s.describe(in.Tier, in.IncludeAddOns),
		})
		if err != nil {
			s.log.Error().Err(err).Str("tier", in.Tier).Msg("gateway create order failed")
			return nil, upstream(err, "failed to create payment order")
		}
		order.OrderID = created.ID
		approvalURL = created.ApprovalURL
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	s.log.Info().Str("order_id", order.OrderID).Str("tier", order.Tier).Float64("total", total).Bool("test_mode", s.TestMode()).Msg("checkout created")

	return &CheckoutResult{
		OrderID:       order.OrderID,
		Status:        order.Status,
		Tier:          order.Tier,
		IncludeAddOns: order.IncludeAddOns,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  in.CustomerName,
		TotalPrice:    total,
		Currency:      order.Currency,
		ApprovalURL:   approvalURL,
		TestMode:      s.TestMode(),
	}, nil
}

func (s *issuanceService) describe(tier string, addOns bool) string {
	d := s.cfg.ProductName + " " + tier + " license"
	if addOns {
		d += " + hardware kit"
	}
	return d
}

func (s *issuanceService) Capture(ctx context.Context, in CaptureInput) (result *IssuanceResult, err error) {
	defer s.observe(&result, &err)

	if in.OrderID == "" {
		return nil, domain.ErrMissingParameter.With("order ID required")
	}

	if domain.IsTestOrderID(in.OrderID) {
		if !s.TestMode() {
			return nil, domain.ErrTestModeDisabled
		}
		return s.captureOffline(ctx, in)
	}

	if s.TestMode() {
		return nil, domain.ErrGatewayNotConfigured
	}

	order, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.IsCompleted() {
		return s.existing(ctx, order), nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	capture, err := s.gateway.CaptureOrder(gwCtx, order.OrderID)
	if err != nil {
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("gateway capture failed, order left pending")
		return nil, upstream(err, "failed to capture payment")
	}
	if !capture.Success {
		s.log.Warn().Str("order_id", order.OrderID).Str("status", capture.Status).Msg("payment not completed")
		return nil, domain.ErrPaymentNotCompleted.With("payment not completed: " + capture.Status)
	}

	return s.fulfill(ctx, order, capture.TransactionID)
}

func (s *issuanceService) captureOffline(ctx context.Context, in CaptureInput) (*IssuanceResult, error) {
	order, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	if order == nil {
		checkout := CheckoutInput{Tier: in.Tier, IncludeAddOns: in.IncludeAddOns, CustomerEmail: in.CustomerEmail, CustomerName: in.CustomerName}
		if err := s.validateCheckout(checkout); err != nil {
			return nil, err
		}
		order = &domain.Order{
			OrderID:       in.OrderID,
			Tier:          in.Tier,
			IncludeAddOns: in.IncludeAddOns,
			CustomerEmail: in.CustomerEmail,
			CustomerName:  domain.StringPtr(in.CustomerName),
			TotalAmount:   s.cfg.Catalog.Total(in.Tier, in.IncludeAddOns),
			Currency:      s.cfg.Catalog.Currency(),
			Status:        domain.OrderPending,
			CreatedAt:     s.now(),
		}
		if err := s.orders.Create(ctx, order); err != nil {
			if !errors.Is(err, domain.ErrDuplicateOrder) {
				return nil, err
			}
			if order, err = s.orders.FindByID(ctx, in.OrderID); err != nil {
				return nil, err
			}
			if order == nil {
				return nil, domain.ErrOrderNotFound
			}
		}
	}

	if order.IsCompleted() {
		return s.existing(ctx, order), nil
	}
	return s.fulfill(ctx, order, "")
}

func (s *issuanceService) FulfillCaptured(ctx context.Context, order *domain.Order, transactionID string) (*IssuanceResult, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.IsCompleted() {
		return s.existing(ctx, order), nil
	}
	return s.fulfill(ctx, order, transactionID)
}

func (s *issuanceService) ListOrders(ctx context.Context, email string) ([]domain.Order, error) {
	if email = strings.TrimSpace(email); email != "" {
		return s.orders.ListByEmail(ctx, email)
	}
	return s.orders.List(ctx)
}

func (s *issuanceService) TestPurchase(ctx context.Context, in CheckoutInput) (result *IssuanceResult, err error) {
	defer s.observe(&result, &err)

	if !s.TestMode() {
		return nil, domain.ErrTestModeDisabled
	}
	if err := s.validateCheckout(in); err != nil {
		return nil, err
	}

	orderID := newTestOrderID()
	total := s.cfg.Catalog.Total(in.Tier, in.IncludeAddOns)

	license, err := s.licenses.Create(ctx, CreateLicenseInput{
		Tier:       in.Tier,
		Price:      total,
		OwnerEmail: in.CustomerEmail,
		OwnerName:  in.CustomerName,
		ExpiresAt:  s.expiry(),
	})
	if err != nil {
		return nil, err
	}

	sent := s.notify(ctx, license, orderID, in.CustomerName)
	return &IssuanceResult{
		OrderID:       orderID,
		LicenseKey:    license.Key,
		Tier:          license.Tier,
		CustomerEmail: in.CustomerEmail,
		TotalPrice:    total,
		Currency:      s.cfg.Catalog.Currency(),
		ExpiresAt:     license.ExpiresAt,
		EmailSent:     sent,
		TestMode:      true,
	}, nil
}

// fulfill creates the license, completes the order, then notifies. A failure
// before completion leaves the order pending with no license behind it.
func (s *issuanceService) fulfill(ctx context.Context, order *domain.Order, transactionID string) (*IssuanceResult, error) {
	license, err := s.licenses.Create(ctx, CreateLicenseInput{
		Tier:       order.Tier,
		Price:      order.TotalAmount,
		OwnerEmail: order.CustomerEmail,
		OwnerName:  domain.StringValue(order.CustomerName),
		ExpiresAt:  s.expiry(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("license creation failed, order left pending")
		return nil, err
	}

	completed, err := s.orders.Complete(ctx, order.OrderID, license.Key, transactionID, s.now())
	if err != nil {
		if delErr := s.licenses.Delete(context.WithoutCancel(ctx), license.Key); delErr != nil {
			s.log.Error().Err(delErr).Str("license_key", logger.MaskKey(license.Key)).Msg("failed to remove orphaned license")
		}
		if errors.Is(err, domain.ErrOrderNotPending) {
			current, findErr := s.orders.FindByID(ctx, order.OrderID)
			if findErr == nil && current != nil && current.IsCompleted() {
				s.log.Info().Str("order_id", order.OrderID).Msg("order completed concurrently, returning stored license")
				return s.existing(ctx, current), nil
			}
		}
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("order completion failed")
		return nil, err
	}

	sent := s.notify(ctx, license, completed.OrderID, domain.StringValue(completed.CustomerName))

	s.log.Info().
		Str("order_id", completed.OrderID).
		Str("license_key", logger.MaskKey(license.Key)).
		Bool("email_sent", sent).
		Msg("order fulfilled")

	return &IssuanceResult{
		OrderID:       completed.OrderID,
		LicenseKey:    license.Key,
		Tier:          license.Tier,
		CustomerEmail: completed.CustomerEmail,
		TotalPrice:    completed.TotalAmount,
		Currency:      completed.Currency,
		ExpiresAt:     license.ExpiresAt,
		TransactionID: domain.StringValue(completed.PaymentTransactionID),
		EmailSent:     sent,
		TestMode:      s.TestMode() || domain.IsTestOrderID(completed.OrderID),
	}, nil
}

func (s *issuanceService) existing(ctx context.Context, order *domain.Order) *IssuanceResult {
	result := &IssuanceResult{
		OrderID:          order.OrderID,
		LicenseKey:       domain.StringValue(order.LicenseKey),
		Tier:             order.Tier,
		CustomerEmail:    order.CustomerEmail,
		TotalPrice:       order.TotalAmount,
		Currency:         order.Currency,
		TransactionID:    domain.StringValue(order.PaymentTransactionID),
		TestMode:         s.TestMode() || domain.IsTestOrderID(order.OrderID),
		AlreadyCompleted: true,
	}
	if license, err := s.licenses.Get(ctx, result.LicenseKey); err == nil {
		result.ExpiresAt = license.ExpiresAt
	}
	return result
}

func (s *issuanceService) notify(ctx context.Context, license *domain.License, orderID, name string) bool {
	// the license exists now; delivery should not depend on the caller staying connected
	res := s.notifier.Send(context.WithoutCancel(ctx), notify.Notification{
		Email:      license.OwnerEmailValue(),
		Name:       name,
		LicenseKey: license.Key,
		Tier:       license.Tier,
		ExpiresAt:  license.ExpiresAt,
		OrderID:    orderID,
	})
	s.metrics.ObserveNotification(res.Delivered)
	return res.Delivered
}

func (s *issuanceService) expiry() *time.Time {
	if s.cfg.LicenseValidity <= 0 {
		return nil
	}
	e := s.now().Add(s.cfg.LicenseValidity)
	return &e
}

func (s *issuanceService) observe(result **IssuanceResult, err *error) {
	outcome := "completed"
	switch {
	case *err != nil:
		if outcome = domain.CodeOf(*err); outcome == "" {
			outcome = "error"
		}
	case *result != nil && (*result).AlreadyCompleted:
		outcome = "replayed"
	}
	s.metrics.ObserveIssuance(s.mode(), outcome)
}

func upstream(err error, msg string) error {
	if domain.KindOf(err) == domain.KindUpstreamFailure {
		return err
	}
	return domain.ErrUpstream.With(msg).Wrap(err)
}
