package main

import (
	"errors"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/config"
	"github.com/aspirtakis/alekostrader-auth/internal/worker"
	"github.com/spf13/cobra"
)

func RunReconcileCommand() *cobra.Command {
	var (
		watch time.Duration
		after time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Issue licenses for paid orders that were left pending",
		Long: `Looks up stale pending orders at the payment gateway and runs license
issuance for the ones that were captured. Orders are never captured again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.gateway == nil {
				return errors.New("reconcile needs PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET")
			}
			if after <= 0 {
				after = cfg.ReconcileAfter
			}

			w := worker.NewReconciliationWorker(a.orders, a.gateway, a.issuance, worker.Config{
				Interval:        watch,
				After:           after,
				Batch:           cfg.ReconcileBatch,
				UpstreamTimeout: cfg.UpstreamTimeout,
			}, a.log, a.metrics)

			if watch > 0 {
				w.Run(cmd.Context())
				return nil
			}

			report, err := w.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Scanned: %d\nFulfilled: %d\nUnpaid: %d\nFailed: %d\nSkipped: %d\n", report.Scanned, report.Fulfilled, report.Unpaid, report.Failed, report.Skipped)
			return nil
		},
	}

	cmd.Flags().DurationVar(&watch, "watch", 0, "Repeat the pass at this interval until interrupted")
	cmd.Flags().DurationVar(&after, "after", 0, "Minimum pending age before an order is looked up (default RECONCILE_AFTER)")
	return cmd
}
