package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/ingest"
	"github.com/cryoetdb/cryoetdb/pkg/logging"
)

// tomogramDeleteCmd represents the tomogram delete command
var tomogramDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tomogram and all of its annotations",
	Long: `Delete a tomogram and all of its annotations.

Example:
  cryoetctl tomogram delete TS_01`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		a.exit(deleteTomogram(cmd.Context(), a, args[0]))
	},
}

func init() {
	tomogramCmd.AddCommand(tomogramDeleteCmd)
}

func deleteTomogram(ctx context.Context, a *app, name string) error {
	return withDatabase(ctx, a, func(database *gorm.DB) error {
		engine := ingest.NewEngine(database,
			ingest.WithLogger(logging.ForComponent(a.logger, "ingest")),
			ingest.WithAudit(a.audit),
		)
		removed, err := engine.DeleteTomogram(ctx, name)
		if errors.Is(err, ingest.ErrTomogramNotFound) {
			fmt.Printf("Tomogram '%s' not found.\n", name)
			return err
		}
		if err != nil {
			return err
		}
		printOK("Deleted tomogram %s and %d annotations", name, removed)
		return nil
	})
}
