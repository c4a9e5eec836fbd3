package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cryoetctl",
	Short: "CryoET annotation pipeline",
	Long: `Provision database credentials, ingest tomogram annotations into
PostgreSQL and query the ingested data.

Database credentials are read from a secret store (Vault or Conjur). The
first "bootstrap" stores them from POSTGRES_USER, POSTGRES_PASSWORD and
POSTGRES_DB; every later command retrieves them.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitFailure)
	}
}

func main() {
	Execute()
}
