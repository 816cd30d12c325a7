package payment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Outcome int

const (
	// OutcomeRandom succeeds 70% of the time, declines 20% and produces a
	// phantom capture 10% of the time.
	OutcomeRandom Outcome = iota
	OutcomeSuccess
	OutcomeDeclined
	// OutcomePhantom captures the money but reports a timeout to the caller.
	OutcomePhantom
)

type mockOrder struct {
	amount   float64
	currency string
	capture  *Capture
}

type MockGateway struct {
	mu      sync.RWMutex
	orders  map[string]*mockOrder
	outcome Outcome
	latency time.Duration
	roll    func() int
}

type MockOption func(*MockGateway)

func WithOutcome(o Outcome) MockOption {
	return func(g *MockGateway) { g.outcome = o }
}

func WithLatency(d time.Duration) MockOption {
	return func(g *MockGateway) { g.latency = d }
}

// WithRoll replaces the 0-99 dice used by OutcomeRandom.
func WithRoll(roll func() int) MockOption {
	return func(g *MockGateway) { g.roll = roll }
}

func NewMockGateway(opts ...MockOption) *MockGateway {
	g := &MockGateway{
		orders: make(map[string]*mockOrder),
		roll:   func() int { return rand.IntN(100) },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MockGateway) SetOutcome(o Outcome) {
	g.mu.Lock()
	g.outcome = o
	g.mu.Unlock()
}

func (g *MockGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	if err := g.wait(ctx, g.latency); err != nil {
		return nil, err
	}

	id := "MOCK-" + uuid.NewString()
	g.mu.Lock()
	g.orders[id] = &mockOrder{amount: req.Amount, currency: req.Currency}
	g.mu.Unlock()

	return &CreatedOrder{ID: id, ApprovalURL: "https://mock.gateway.local/approve/" + id}, nil
}

func (g *MockGateway) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	// an order already captured returns the same capture
	g.mu.RLock()
	order, exists := g.orders[orderID]
	var previous *Capture
	if exists && order.capture != nil {
		c := *order.capture
		previous = &c
	}
	outcome := g.outcome
	g.mu.RUnlock()

	if !exists {
		return nil, domain.ErrUpstream.With("mock gateway: unknown order " + orderID)
	}
	if previous != nil {
		return previous, nil
	}

	if outcome == OutcomeRandom {
		switch chance := g.roll(); {
		case chance < 70:
			outcome = OutcomeSuccess
		case chance < 90:
			outcome = OutcomeDeclined
		default:
			outcome = OutcomePhantom
		}
	}

	switch outcome {
	case OutcomeDeclined:
		if err := g.wait(ctx, g.latency); err != nil {
			return nil, err
		}
		return &Capture{OrderID: orderID, Success: false, Status: "DECLINED"}, nil

	case OutcomePhantom:
		g.record(orderID, order)
		if err := g.wait(ctx, 20*g.latency); err != nil {
			return nil, err
		}
		return nil, domain.ErrUpstream.With("mock gateway: connection timeout")

	default:
		if err := g.wait(ctx, g.latency); err != nil {
			return nil, err
		}
		c := g.record(orderID, order)
		return &c, nil
	}
}

func (g *MockGateway) record(orderID string, order *mockOrder) Capture {
	g.mu.Lock()
	defer g.mu.Unlock()

	if order.capture == nil {
		order.capture = &Capture{
			OrderID:        orderID,
			Success:        true,
			Status:         "COMPLETED",
			TransactionID:  "CAP-" + uuid.NewString()[:8],
			AmountCaptured: order.amount,
			Currency:       order.currency,
		}
	}
	return *order.capture
}

func (g *MockGateway) LookupOrder(ctx context.Context, orderID string) (*Capture, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order, exists := g.orders[orderID]
	if !exists {
		return nil, domain.ErrUpstream.With("mock gateway: unknown order " + orderID)
	}
	if order.capture == nil {
		return &Capture{OrderID: orderID, Success: false, Status: "APPROVED"}, nil
	}
	c := *order.capture
	return &c, nil
}

func (g *MockGateway) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return domain.ErrUpstream.Wrap(errors.Wrap(err, "mock gateway"))
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.ErrUpstream.Wrap(errors.Wrap(ctx.Err(), "mock gateway"))
	case <-timer.C:
		return nil
	}
}
