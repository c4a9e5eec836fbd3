package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cryoetdb/cryoetdb/pkg/dataset"
	"github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/ingest"
	"github.com/cryoetdb/cryoetdb/pkg/logging"
	"github.com/cryoetdb/cryoetdb/pkg/secrets"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the label table into the database",
	Long: `Load the label table into the database.

Each tomogram named in the table is created once; its annotations are
appended (default) or replace the stored ones with --replace. Rows with
malformed values or without a volume file are skipped with a warning.

With --watch the table is ingested again every time it is rewritten, until
the process is interrupted.

Example:
  cryoetctl ingest
  cryoetctl ingest --replace --dataset-id 10301
  cryoetctl ingest --watch`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		opts, err := ingestOptionsFrom(cmd, a)
		if err != nil {
			a.exit(err)
		}

		ctx := cmd.Context()
		bundle, err := a.credentials(ctx)
		if err != nil {
			a.exit(err)
		}
		a.exit(ingestWith(ctx, a, bundle, opts))
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	addIngestFlags(ingestCmd, true)
}

type ingestOptions struct {
	policy    ingest.Policy
	datasetID string
	migrate   bool
	watch     bool
}

func addIngestFlags(cmd *cobra.Command, watch bool) {
	cmd.Flags().Bool("replace", false, "replace the stored annotations of each ingested tomogram")
	cmd.Flags().String("dataset-id", "", "dataset id stamped on newly created tomograms")
	cmd.Flags().Bool("no-migrate", false, "skip applying database migrations before ingesting")
	if watch {
		cmd.Flags().Bool("watch", false, "re-ingest whenever the label table changes")
	}
}

// ingestOptionsFrom merges flags over configuration.
func ingestOptionsFrom(cmd *cobra.Command, a *app) (ingestOptions, error) {
	policy, err := ingest.ParsePolicy(a.cfg.IngestPolicy)
	if err != nil {
		return ingestOptions{}, err
	}
	if replace, _ := cmd.Flags().GetBool("replace"); replace {
		policy = ingest.PolicyReplace
	}

	opts := ingestOptions{
		policy:    policy,
		datasetID: a.cfg.DatasetID,
		migrate:   a.cfg.AutoMigrate,
	}
	if id, _ := cmd.Flags().GetString("dataset-id"); id != "" {
		opts.datasetID = id
	}
	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); noMigrate {
		opts.migrate = false
	}
	if cmd.Flags().Lookup("watch") != nil {
		opts.watch, _ = cmd.Flags().GetBool("watch")
	}
	return opts, nil
}

func ingestWith(ctx context.Context, a *app, bundle secrets.Bundle, opts ingestOptions) error {
	if opts.migrate {
		if _, err := migrateUp(a.dbConfig(bundle).MigrationURL(), a.logger); err != nil {
			if db.Kind(err) == "" {
				err = fmt.Errorf("%w: %w", db.ErrConnection, err)
			}
			return err
		}
	}

	database, err := a.connect(ctx, bundle)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	loader := dataset.NewLoader(a.cfg.LabelsPath(), a.cfg.DataDir, logging.ForComponent(a.logger, "dataset"))
	engine := ingest.NewEngine(database,
		ingest.WithPolicy(opts.policy),
		ingest.WithBatchSize(a.cfg.BatchSize),
		ingest.WithDatasetID(opts.datasetID),
		ingest.WithSource(loader.TablePath),
		ingest.WithVolumePath(loader.VolumePath),
		ingest.WithLogger(logging.ForComponent(a.logger, "ingest")),
		ingest.WithAudit(a.audit),
		ingest.WithMetrics(a.metrics),
	)

	once := func(ctx context.Context) error {
		return ingestOnce(ctx, a, loader, engine)
	}
	if !opts.watch {
		return once(ctx)
	}

	fmt.Printf("Watching %s for changes\n", loader.TablePath)
	return watchFile(ctx, loader.TablePath, logging.ForComponent(a.logger, "watch"), rerunAfterFirst(once))
}

// rerunAfterFirst returns the error of the first run so that a broken
// starting state fails the command. Later failures are printed and the
// watch continues.
func rerunAfterFirst(fn func(ctx context.Context) error) func(ctx context.Context) error {
	first := true
	return func(ctx context.Context) error {
		err := fn(ctx)
		if first {
			first = false
			return err
		}
		if err != nil {
			printError("%v", err)
		}
		return nil
	}
}

func ingestOnce(ctx context.Context, a *app, loader *dataset.Loader, engine *ingest.Engine) error {
	defer a.pushMetrics(ctx, "cryoet_ingest")

	var stats dataset.Stats
	report, err := engine.Ingest(ctx, loader.Scan(ctx, &stats))

	a.metrics.RecordSkippedRows("malformed", stats.Malformed)
	a.metrics.RecordSkippedRows("missing_volume", stats.MissingVolume)
	a.metrics.RecordSkippedRows("invalid_volume", stats.InvalidVolume)
	if n := stats.Skipped(); n > 0 {
		printWarn("%d of %d rows skipped (%d malformed, %d without volume, %d with invalid volume)",
			n, stats.Rows, stats.Malformed, stats.MissingVolume, stats.InvalidVolume)
	}

	if err != nil {
		if report.Tomograms > 0 {
			printWarn("Partial ingestion committed: %s", report)
		}
		return err
	}
	printOK("Ingested %s", report)
	return nil
}
