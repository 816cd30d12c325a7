package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/notify"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/payment"
	"github.com/aspirtakis/alekostrader-auth/internal/infrastructure/token"
	"github.com/aspirtakis/alekostrader-auth/internal/keygen"
	"github.com/aspirtakis/alekostrader-auth/internal/logger"
	"github.com/aspirtakis/alekostrader-auth/internal/repo"
	"github.com/aspirtakis/alekostrader-auth/internal/service"
	"github.com/aspirtakis/alekostrader-auth/internal/worker"
	"github.com/google/uuid"
	"github.com/keygen-sh/machineid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type simulateOptions struct {
	orders  int
	devices int
	latency time.Duration
	seed    uint64
	dbPath  string
	verbose bool
}

func RunSimulateCommand() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive checkouts against a flaky mock gateway and race devices for a license",
		Long: `Runs purchases against a mock gateway that succeeds, declines or captures
the money and then times out. Captures that time out leave paid orders pending,
which a reconciliation pass then fulfils. Finally several devices validate the
same key at once and exactly one of them must win the binding.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulation(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.orders, "orders", 20, "Number of purchases to simulate")
	cmd.Flags().IntVar(&opts.devices, "devices", 8, "Devices racing to bind the first license")
	cmd.Flags().DurationVar(&opts.latency, "latency", 50*time.Millisecond, "Mock gateway latency")
	cmd.Flags().Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "Seed for gateway outcomes")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite file to use (default: temporary)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Log service activity")
	return cmd
}

func runSimulation(cmd *cobra.Command, opts simulateOptions) error {
	ctx := cmd.Context()

	level := "error"
	if opts.verbose {
		level = "debug"
	}
	log := logger.New(logger.Options{Level: level, Format: "console", Writer: cmd.ErrOrStderr()})

	if opts.dbPath == "" {
		dir, err := os.MkdirTemp("", "licensed-sim-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		opts.dbPath = filepath.Join(dir, "simulation.db")
	}

	catalog, err := domain.NewTierCatalog(
		[]string{"trader", "pro", "enterprise"},
		map[string]float64{"trader": 180, "pro": 250, "enterprise": 800},
		150, "EUR",
	)
	if err != nil {
		return err
	}

	db, err := database.New(ctx, database.Options{Engine: "sqlite", SQLitePath: opts.dbPath, Tiers: catalog.Tiers()})
	if err != nil {
		return err
	}
	defer db.Close()

	tokens, err := token.NewIssuer(uuid.NewString(), tokenIssuer)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	var rngMu sync.Mutex
	gateway := payment.NewMockGateway(
		payment.WithLatency(opts.latency),
		payment.WithRoll(func() int {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.IntN(100)
		}),
	)

	orders := repo.NewOrderRepo(db.DB())
	svcOpts := []service.Option{service.WithLogger(log)}
	licenses := service.NewLicenseService(repo.NewLicenseRepo(db.DB()), catalog, keygen.New(nil), tokens, 30*time.Minute, svcOpts...)
	issuance := service.NewIssuanceService(orders, licenses, gateway, notify.NewNoop(log), service.IssuanceConfig{
		Catalog:         catalog,
		LicenseValidity: 365 * 24 * time.Hour,
		UpstreamTimeout: 10 * opts.latency,
	}, svcOpts...)

	cmd.Printf("--- STARTING SIMULATION (%d ORDERS, seed %d) ---\n", opts.orders, opts.seed)

	tiers := catalog.Tiers()
	for i := 0; i < opts.orders; i++ {
		tier := tiers[i%len(tiers)]
		checkout, err := issuance.CreateCheckout(ctx, service.CheckoutInput{
			Tier:          tier,
			IncludeAddOns: i%4 == 0,
			CustomerEmail: fmt.Sprintf("customer%02d@example.com", i+1),
		})
		if err != nil {
			cmd.Printf("[%d] create failed: %v\n", i+1, err)
			continue
		}

		cmd.Printf("[%d] %s %s %.2f ... ", i+1, checkout.OrderID, tier, checkout.TotalPrice)
		result, err := issuance.Capture(ctx, service.CaptureInput{OrderID: checkout.OrderID})
		if err != nil {
			cmd.Printf("FAILED: %s\n", domain.CodeOf(err))
		} else {
			cmd.Printf("LICENSED %s\n", logger.MaskKey(result.LicenseKey))
		}

		fresh, err := orders.FindByID(ctx, checkout.OrderID)
		if err != nil {
			return err
		}
		cmd.Printf("    -> ledger: %s\n", fresh.Status)
	}

	printLedger(ctx, cmd, orders, licenses)

	cmd.Println("--- RECONCILING PENDING ORDERS ---")
	rw := worker.NewReconciliationWorker(orders, gateway, issuance, worker.Config{
		After:           time.Minute,
		UpstreamTimeout: 10 * opts.latency,
	}, log, nil).WithClock(func() time.Time { return time.Now().Add(time.Hour) })
	report, err := rw.RunOnce(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("scanned=%d fulfilled=%d unpaid=%d failed=%d skipped=%d\n", report.Scanned, report.Fulfilled, report.Unpaid, report.Failed, report.Skipped)

	printLedger(ctx, cmd, orders, licenses)

	return raceDevices(ctx, cmd, licenses, opts.devices)
}

func printLedger(ctx context.Context, cmd *cobra.Command, orders repo.OrderRepo, licenses service.LicenseService) {
	all, err := orders.List(ctx)
	if err != nil {
		cmd.Printf("ledger unavailable: %v\n", err)
		return
	}
	var pending, completed int
	for _, o := range all {
		if o.IsCompleted() {
			completed++
		} else {
			pending++
		}
	}
	issued, err := licenses.List(ctx)
	if err != nil {
		cmd.Printf("licenses unavailable: %v\n", err)
		return
	}
	cmd.Printf("ledger: %d orders, %d completed, %d pending, %d licenses\n", len(all), completed, pending, len(issued))
}

func raceDevices(ctx context.Context, cmd *cobra.Command, licenses service.LicenseService, devices int) error {
	issued, err := licenses.List(ctx)
	if err != nil {
		return err
	}
	if len(issued) == 0 || devices <= 0 {
		cmd.Println("no license to race for")
		return nil
	}
	key := issued[len(issued)-1].Key

	hardware := make([]string, devices)
	hardware[0] = localHardwareID()
	for i := 1; i < devices; i++ {
		hardware[i] = fmt.Sprintf("HW-SIM-%02d", i)
	}

	cmd.Printf("--- %d DEVICES RACING FOR %s ---\n", devices, logger.MaskKey(key))

	var (
		mu       sync.Mutex
		winners  []string
		rejected int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, hw := range hardware {
		g.Go(func() error {
			_, err := licenses.Validate(gctx, key, hw)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, hw)
			case domain.CodeOf(err) == domain.ErrHardwareMismatch.Code:
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cmd.Printf("winners=%v rejected=%d\n", winners, rejected)
	if len(winners) != 1 {
		return fmt.Errorf("expected exactly one device to bind, got %d", len(winners))
	}
	return nil
}

// localHardwareID uses this machine's protected id so the simulation races a
// real fingerprint against synthetic ones.
func localHardwareID() string {
	id, err := machineid.ProtectedID(tokenIssuer)
	if err != nil || id == "" {
		return "HW-SIM-LOCAL"
	}
	return id
}
