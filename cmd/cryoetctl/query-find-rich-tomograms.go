package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/query"
)

// queryFindRichTomogramsCmd represents the query find-rich-tomograms command
var queryFindRichTomogramsCmd = &cobra.Command{
	Use:   "find-rich-tomograms",
	Short: "List tomograms with at least N annotations",
	Long: `List tomograms with at least N annotations, most annotated first.

Example:
  cryoetctl query find-rich-tomograms
  cryoetctl query find-rich-tomograms --min-annotations 50`,
	Run: func(cmd *cobra.Command, args []string) {
		minCount, _ := cmd.Flags().GetInt64("min-annotations")
		a := mustApp(cmd)
		a.exit(findRichTomograms(cmd.Context(), a, minCount))
	},
}

func init() {
	queryCmd.AddCommand(queryFindRichTomogramsCmd)
	queryFindRichTomogramsCmd.Flags().Int64("min-annotations", query.DefaultMinAnnotations, "minimum number of annotations")
}

func findRichTomograms(ctx context.Context, a *app, minCount int64) error {
	return withDatabase(ctx, a, func(database *gorm.DB) error {
		rich, err := query.New(database, a.metrics).FindRichTomograms(ctx, minCount)
		if err != nil {
			return err
		}
		if len(rich) == 0 {
			fmt.Printf("No tomograms found with at least %d annotations.\n", minCount)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "tomo_name\tannotation_count")
		for _, t := range rich {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", t.TomoName, t.AnnotationCount)
		}
		return w.Flush()
	})
}
