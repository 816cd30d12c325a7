package domain

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

// TestOrderPrefix marks orders created while no payment gateway is configured.
const TestOrderPrefix = "TEST-"

type Order struct {
	OrderID              string      `json:"orderId"`
	Tier                 string      `json:"tier"`
	IncludeAddOns        bool        `json:"includeAddOns"`
	CustomerEmail        string      `json:"customerEmail"`
	CustomerName         *string     `json:"customerName,omitempty"`
	TotalAmount          float64     `json:"totalAmount"`
	Currency             string      `json:"currency"`
	Status               OrderStatus `json:"status"`
	LicenseKey           *string     `json:"licenseKey,omitempty"`
	PaymentTransactionID *string     `json:"paymentTransactionId,omitempty"`
	CreatedAt            time.Time   `json:"createdAt"`
	CompletedAt          *time.Time  `json:"completedAt,omitempty"`
}

func (o *Order) IsCompleted() bool {
	return o.Status == OrderCompleted && o.LicenseKey != nil && o.CompletedAt != nil
}

func IsTestOrderID(orderID string) bool {
	return strings.HasPrefix(orderID, TestOrderPrefix)
}
