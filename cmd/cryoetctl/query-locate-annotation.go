package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/dataset"
	"github.com/cryoetdb/cryoetdb/pkg/query"
)

// queryLocateAnnotationCmd represents the query locate-annotation command
var queryLocateAnnotationCmd = &cobra.Command{
	Use:   "locate-annotation",
	Short: "Show the volume and coordinates of one annotation",
	Long: `Show the volume and coordinates of one annotation.

The z coordinate is rounded to a slice index and checked against the depth
of the tomogram's volume file when it is present under the data directory.

Example:
  cryoetctl query locate-annotation --annotation-id 42`,
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetInt64("annotation-id")
		a := mustApp(cmd)
		a.exit(locateAnnotation(cmd.Context(), a, id))
	},
}

func init() {
	queryCmd.AddCommand(queryLocateAnnotationCmd)
	queryLocateAnnotationCmd.Flags().Int64("annotation-id", 0, "annotation id")
	_ = queryLocateAnnotationCmd.MarkFlagRequired("annotation-id")
}

func locateAnnotation(ctx context.Context, a *app, id int64) error {
	return withDatabase(ctx, a, func(database *gorm.DB) error {
		loc, err := query.New(database, a.metrics).LocateAnnotation(ctx, id)
		if errors.Is(err, query.ErrAnnotationNotFound) {
			fmt.Printf("Annotation with ID %d not found.\n", id)
			return err
		}
		if err != nil {
			return err
		}

		fmt.Printf("Annotation %d\n", loc.AnnotationID)
		fmt.Printf("  tomogram: %s\n", loc.TomoName)
		fmt.Printf("  volume:   %s\n", loc.RawVolumePath)
		fmt.Printf("  x, y, z:  %g, %g, %g\n", loc.X, loc.Y, loc.Z)

		file := dataset.VolumeFileFor(a.cfg.DataDir, loc.RawVolumePath)
		depth, err := volumeDepth(file)
		if err != nil {
			printWarn("Volume not checked: %v", err)
			return nil
		}
		slice, ok := zSlice(loc.Z, depth)
		if !ok {
			printWarn("Z %g is out of bounds for volume depth %d", loc.Z, depth)
			return nil
		}
		fmt.Printf("  slice:    z=%d of %d\n", slice, depth)
		return nil
	})
}

func volumeDepth(file string) (int, error) {
	shape, err := dataset.VolumeShape(file)
	if err != nil {
		return 0, err
	}
	return shape[0], nil
}

// zSlice rounds z to a slice index and reports whether it lies in [0, depth).
// Coordinates far outside the volume are rejected before the int conversion.
func zSlice(z float64, depth int) (int, bool) {
	if math.IsNaN(z) || math.Abs(z) > float64(depth) {
		return -1, false
	}
	slice := int(math.Round(z))
	return slice, slice >= 0 && slice < depth
}
