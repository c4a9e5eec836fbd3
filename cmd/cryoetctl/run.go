package main

import (
	"context"

	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bootstrap on first invocation, ingest on every later one",
	Long: `Bootstrap on first invocation, ingest on every later one.

When the secret store holds no credentials, they are provisioned from the
POSTGRES_* environment and the command stops without ingesting. Otherwise
the stored credentials are used to ingest the label table.

Example:
  cryoetctl run
  cryoetctl run --replace`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		opts, err := ingestOptionsFrom(cmd, a)
		if err != nil {
			a.exit(err)
		}
		a.exit(runPipeline(cmd.Context(), a, opts))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addIngestFlags(runCmd, false)
}

func runPipeline(ctx context.Context, a *app, opts ingestOptions) error {
	b, err := a.bootstrapper(ctx)
	if err != nil {
		return err
	}

	res, err := b.Run(ctx)
	if err != nil {
		a.pushMetrics(ctx, "cryoet_bootstrap")
		return err
	}
	if res.Provisioned {
		a.pushMetrics(ctx, "cryoet_bootstrap")
		printOK("Credentials provisioned at %s; run again to ingest", b.Path())
		return nil
	}

	return ingestWith(ctx, a, res.Bundle, opts)
}
