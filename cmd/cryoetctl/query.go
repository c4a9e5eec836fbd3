package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/db"
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the ingested annotations",
	Long:  `Run analytical queries against the ingested tomograms and annotations.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'query' requires a subcommand (count-annotations, find-rich-tomograms, locate-annotation)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(exitFailure)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

// withDatabase retrieves the credentials, connects and runs fn. The
// connection is closed on every path.
func withDatabase(ctx context.Context, a *app, fn func(*gorm.DB) error) error {
	bundle, err := a.credentials(ctx)
	if err != nil {
		return err
	}
	database, err := a.connect(ctx, bundle)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()
	return fn(database)
}
