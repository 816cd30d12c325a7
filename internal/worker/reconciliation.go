package worker

import (
	"context"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/payment"
	"github.com/aspirtakis/alekostrader-auth/internal/metrics"
	"github.com/aspirtakis/alekostrader-auth/internal/repo"
	"github.com/aspirtakis/alekostrader-auth/internal/service"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Report summarises one reconciliation pass.
type Report struct {
	Scanned   int
	Fulfilled int
	Unpaid    int
	Failed    int
	// Skipped counts TEST- orders, which never reached a gateway.
	Skipped int
}

type ReconciliationWorker struct {
	orders   repo.OrderRepo
	gateway  payment.PaymentGateway
	issuance service.IssuanceService
	interval time.Duration
	after    time.Duration
	batch    int
	timeout  time.Duration

	nowFn   func() time.Time
	log     zerolog.Logger
	metrics *metrics.Manager
}

type Config struct {
	// Interval between passes when running in watch mode.
	Interval time.Duration
	// After is how old a pending order must be before it is looked up.
	After           time.Duration
	Batch           int
	UpstreamTimeout time.Duration
}

func NewReconciliationWorker(
	orders repo.OrderRepo,
	gateway payment.PaymentGateway,
	issuance service.IssuanceService,
	cfg Config,
	log zerolog.Logger,
	m *metrics.Manager,
) *ReconciliationWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.After <= 0 {
		cfg.After = 15 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	return &ReconciliationWorker{
		orders:   orders,
		gateway:  gateway,
		issuance: issuance,
		interval: cfg.Interval,
		after:    cfg.After,
		batch:    cfg.Batch,
		timeout:  cfg.UpstreamTimeout,
		nowFn:    time.Now,
		log:      log.With().Str("component", "reconciler").Logger(),
		metrics:  m,
	}
}

// WithClock replaces the time source used to pick stale orders.
func (rw *ReconciliationWorker) WithClock(nowFn func() time.Time) *ReconciliationWorker {
	rw.nowFn = nowFn
	return rw
}

// Run executes a pass immediately and then on every tick until ctx is done.
func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.log.Info().Dur("interval", rw.interval).Dur("after", rw.after).Msg("reconciliation worker started")

	for {
		if _, err := rw.RunOnce(ctx); err != nil && ctx.Err() == nil {
			rw.log.Error().Err(err).Msg("reconciliation failed")
		}

		select {
		case <-ctx.Done():
			rw.log.Info().Msg("reconciliation worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce looks up every stale pending order at the gateway and fulfils the
// ones that were paid. Orders the gateway reports as unpaid stay pending, and
// test orders are left to the offline flow.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	if rw.gateway == nil {
		return report, errors.New("reconciliation requires a payment gateway")
	}

	stale, err := rw.orders.FindStalePending(ctx, rw.nowFn().UTC().Add(-rw.after), rw.batch)
	if err != nil {
		return report, err
	}
	report.Scanned = len(stale)
	if len(stale) == 0 {
		return report, nil
	}

	rw.log.Info().Int("orders", len(stale)).Msg("found stale pending orders")

	for i := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		order := &stale[i]
		if domain.IsTestOrderID(order.OrderID) {
			report.Skipped++
			continue
		}
		rw.reconcile(ctx, order, &report)
	}

	rw.log.Info().
		Int("scanned", report.Scanned).
		Int("fulfilled", report.Fulfilled).
		Int("unpaid", report.Unpaid).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("reconciliation pass finished")
	return report, nil
}

func (rw *ReconciliationWorker) reconcile(ctx context.Context, order *domain.Order, report *Report) {
	logger := rw.log.With().Str("order_id", order.OrderID).Logger()

	lookupCtx, cancel := context.WithTimeout(ctx, rw.timeout)
	status, err := rw.gateway.LookupOrder(lookupCtx, order.OrderID)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("gateway lookup failed, retry next pass")
		report.Failed++
		rw.metrics.ObserveReconcile("lookup_failed")
		return
	}

	if !status.Success {
		logger.Debug().Str("status", status.Status).Msg("order not paid")
		report.Unpaid++
		rw.metrics.ObserveReconcile("unpaid")
		return
	}

	result, err := rw.issuance.FulfillCaptured(ctx, order, status.TransactionID)
	if err != nil {
		logger.Error().Err(err).Msg("captured order could not be fulfilled")
		report.Failed++
		rw.metrics.ObserveReconcile("fulfil_failed")
		return
	}

	logger.Warn().Str("transaction_id", result.TransactionID).Msg("captured payment without license, fulfilled")
	report.Fulfilled++
	rw.metrics.ObserveReconcile("fulfilled")
}
