package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/query"
)

// queryCountAnnotationsCmd represents the query count-annotations command
var queryCountAnnotationsCmd = &cobra.Command{
	Use:   "count-annotations",
	Short: "Count the annotations of one tomogram",
	Long: `Count the annotations of one tomogram.

Example:
  cryoetctl query count-annotations --tomo-name TS_01`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("tomo-name")
		a := mustApp(cmd)
		a.exit(countAnnotations(cmd.Context(), a, name))
	},
}

func init() {
	queryCmd.AddCommand(queryCountAnnotationsCmd)
	queryCountAnnotationsCmd.Flags().String("tomo-name", "", "tomogram name")
	_ = queryCountAnnotationsCmd.MarkFlagRequired("tomo-name")
}

func countAnnotations(ctx context.Context, a *app, name string) error {
	return withDatabase(ctx, a, func(database *gorm.DB) error {
		n, err := query.New(database, a.metrics).CountAnnotations(ctx, name)
		if errors.Is(err, query.ErrTomogramNotFound) {
			fmt.Printf("Tomogram '%s' not found.\n", name)
			return err
		}
		if err != nil {
			return err
		}
		fmt.Printf("Tomogram '%s' has %d annotations.\n", name, n)
		return nil
	})
}
