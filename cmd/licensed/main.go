package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "licensed",
		Short:         "Hardware-bound license server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		RunServeCommand(),
		RunReconcileCommand(),
		RunSimulateCommand(),
		RunHashPasswordCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
