package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cryoetdb/cryoetdb/pkg/bootstrap"
)

// bootstrapCmd represents the bootstrap command
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Store the database credentials in the secret store",
	Long: `Store the database credentials in the secret store.

The bundle is read from POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB and
written to the configured secret path unless one is stored already. Running
it again with the same values is a no-op; different values are rejected as
credential drift.

Example:
  POSTGRES_USER=cryo POSTGRES_PASSWORD=secret POSTGRES_DB=cryoet cryoetctl bootstrap`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		a.exit(runBootstrap(cmd.Context(), a))
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(ctx context.Context, a *app) error {
	defer a.pushMetrics(ctx, "cryoet_bootstrap")

	b, err := a.bootstrapper(ctx)
	if err != nil {
		return err
	}

	outcome, err := b.Provision(ctx)
	if err != nil {
		return err
	}
	if outcome == bootstrap.OutcomeProvisioned {
		printOK("Credentials provisioned at %s", b.Path())
	} else {
		printOK("Credentials at %s already provisioned", b.Path())
	}
	return nil
}
