package payment

import (
	"context"
)

// PaymentGateway is the boundary to the external payment processor. A
// capture that does not report Success is treated by callers like an error.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*Capture, error)
	// LookupOrder is a read-only status query; it never moves money.
	LookupOrder(ctx context.Context, orderID string) (*Capture, error)
}

type CreateOrderRequest struct {
	Tier          string
	IncludeAddOns bool
	Amount        float64
	Currency      string
	Description   string
}

type CreatedOrder struct {
	ID          string
	ApprovalURL string
}

type Capture struct {
	OrderID        string
	Success        bool
	Status         string
	TransactionID  string
	AmountCaptured float64
	Currency       string
}
