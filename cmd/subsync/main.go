package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/subsync/internal/interfaces/cli/events"
	"github.com/orris-inc/subsync/internal/interfaces/cli/migrate"
	"github.com/orris-inc/subsync/internal/interfaces/cli/reconcile"
	"github.com/orris-inc/subsync/internal/interfaces/cli/server"
	"github.com/orris-inc/subsync/internal/shared/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "subsync",
		Short:   "Subsync - subscription entitlement reconciliation",
		Long:    `Subsync keeps user entitlements in step with billing provider subscriptions, from webhooks in real time and by batch reconciliation.`,
		Version: version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		reconcile.NewReconcileCommand(),
		reconcile.NewSyncCustomerCommand(),
		reconcile.NewHealthCommand(),
		events.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
