package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/notify"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/payment"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/aspirtakis/alekostrader-auth/internal/keygen"
	"github.com/aspirtakis/alekostrader-auth/internal/repo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source shared by the services under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// scriptedKeys returns keys in order and repeats the last one forever.
type scriptedKeys struct {
	mu    sync.Mutex
	keys  []string
	calls int
}

func (s *scriptedKeys) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.keys) {
		i = len(s.keys) - 1
	}
	s.calls++
	return s.keys[i], nil
}

func (s *scriptedKeys) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingNotifier struct {
	mu        sync.Mutex
	sent      []notify.Notification
	delivered bool
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) notify.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return notify.Result{Delivered: r.delivered, Reference: "ref"}
}

func (r *recordingNotifier) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

// stubGateway returns canned answers and counts calls.
type stubGateway struct {
	mu         sync.Mutex
	created    payment.CreatedOrder
	createErr  error
	capture    payment.Capture
	captureErr error
	block      bool
	captures   int
}

func (g *stubGateway) CreateOrder(_ context.Context, _ payment.CreateOrderRequest) (*payment.CreatedOrder, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	c := g.created
	return &c, nil
}

func (g *stubGateway) CaptureOrder(ctx context.Context, orderID string) (*payment.Capture, error) {
	g.mu.Lock()
	g.captures++
	block := g.block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	c := g.capture
	c.OrderID = orderID
	return &c, nil
}

func (g *stubGateway) LookupOrder(_ context.Context, orderID string) (*payment.Capture, error) {
	c := g.capture
	c.OrderID = orderID
	return &c, nil
}

func (g *stubGateway) Captures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captures
}

type fixture struct {
	clock    *clock
	issuer   *token.Issuer
	licenses repo.LicenseRepo
	orders   repo.OrderRepo
	catalog  *domain.TierCatalog
	notifier *recordingNotifier
	license  LicenseService
}

func newFixture(t *testing.T, keys KeyGenerator) *fixture {
	t.Helper()

	svc, err := database.New(context.Background(), database.Options{
		Engine:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "licenses.db"),
		Tiers:      []string{"trader", "pro", "enterprise"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	catalog, err := domain.NewTierCatalog(
		[]string{"trader", "pro", "enterprise"},
		map[string]float64{"trader": 180, "pro": 250, "enterprise": 800},
		150, "EUR",
	)
	require.NoError(t, err)

	clk := newClock()
	issuer, err := token.NewIssuer("test-secret", "licensed")
	require.NoError(t, err)
	issuer = issuer.WithClock(clk.Now)

	if keys == nil {
		keys = keygen.New(nil)
	}

	f := &fixture{
		clock:    clk,
		issuer:   issuer,
		licenses: repo.NewLicenseRepo(svc.DB()),
		orders:   repo.NewOrderRepo(svc.DB()),
		catalog:  catalog,
		notifier: &recordingNotifier{delivered: true},
	}
	f.license = NewLicenseService(f.licenses, catalog, keys, issuer, 30*time.Minute,
		WithClock(clk.Now), WithLogger(zerolog.Nop()))
	return f
}

func (f *fixture) issuance(gateway payment.PaymentGateway) IssuanceService {
	return NewIssuanceService(f.orders, f.license, gateway, f.notifier, IssuanceConfig{
		Catalog:         f.catalog,
		LicenseValidity: 365 * 24 * time.Hour,
		UpstreamTimeout: time.Second,
	}, WithClock(f.clock.Now), WithLogger(zerolog.Nop()))
}
