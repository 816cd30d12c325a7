package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Notification is the license delivery message sent after issuance.
type Notification struct {
	Email      string
	Name       string
	LicenseKey string
	Tier       string
	ExpiresAt  *time.Time
	OrderID    string
}

type Result struct {
	Delivered bool
	Reference string
}

// Notifier never returns an error; callers report Delivered to the buyer.
type Notifier interface {
	Send(ctx context.Context, n Notification) Result
}

// Noop is used when no mail transport is configured.
type Noop struct {
	log zerolog.Logger
}

func NewNoop(log zerolog.Logger) *Noop {
	return &Noop{log: log.With().Str("component", "notify").Logger()}
}

func (n *Noop) Send(_ context.Context, msg Notification) Result {
	n.log.Warn().Str("order_id", msg.OrderID).Msg("email not configured, license not delivered")
	return Result{Delivered: false, Reference: "not_configured"}
}
