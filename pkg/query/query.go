package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/metrics"
)

var (
	// ErrTomogramNotFound is returned when no tomogram has the given name
	ErrTomogramNotFound = errors.New("tomogram not found")
	// ErrAnnotationNotFound is returned when no annotation has the given id
	ErrAnnotationNotFound = errors.New("annotation not found")
	// ErrInvalidThreshold is returned for a negative minimum annotation count
	ErrInvalidThreshold = errors.New("invalid annotation threshold")
)

// DefaultMinAnnotations is the threshold used when none is given.
const DefaultMinAnnotations = 20

// RichTomogram is one row of FindRichTomograms.
type RichTomogram struct {
	TomoName        string `json:"tomo_name" gorm:"column:tomo_name"`
	AnnotationCount int64  `json:"annotation_count" gorm:"column:annotation_count"`
}

// AnnotationLocation places one annotation in its tomogram volume.
type AnnotationLocation struct {
	AnnotationID  int64   `json:"annotation_id" gorm:"column:annotation_id"`
	TomoName      string  `json:"tomo_name" gorm:"column:tomo_name"`
	RawVolumePath string  `json:"raw_volume_path" gorm:"column:raw_volume_path"`
	X             float64 `json:"x" gorm:"column:coord_x"`
	Y             float64 `json:"y" gorm:"column:coord_y"`
	Z             float64 `json:"z" gorm:"column:coord_z"`
}

// Querier answers the analytical queries.
type Querier interface {
	// CountAnnotations returns the number of annotations of tomogram name,
	// or ErrTomogramNotFound. An existing tomogram without annotations has 0.
	CountAnnotations(ctx context.Context, name string) (int64, error)
	// FindRichTomograms returns tomograms with at least minCount annotations,
	// by count descending then name ascending.
	FindRichTomograms(ctx context.Context, minCount int64) ([]RichTomogram, error)
	// LocateAnnotation returns the volume and coordinates of annotation id.
	LocateAnnotation(ctx context.Context, id int64) (AnnotationLocation, error)
}

const (
	countSQL = `SELECT t.tomo_id, COUNT(a.annotation_id) AS annotation_count
FROM tomograms t LEFT JOIN annotations a ON a.tomo_id = t.tomo_id
WHERE t.tomo_name = ?
GROUP BY t.tomo_id`

	richSQL = `SELECT t.tomo_name, COUNT(a.annotation_id) AS annotation_count
FROM tomograms t LEFT JOIN annotations a ON a.tomo_id = t.tomo_id
GROUP BY t.tomo_id, t.tomo_name
HAVING COUNT(a.annotation_id) >= ?
ORDER BY annotation_count DESC, t.tomo_name ASC`

	locateSQL = `SELECT a.annotation_id, t.tomo_name, t.raw_volume_path, a.coord_x, a.coord_y, a.coord_z
FROM annotations a JOIN tomograms t ON t.tomo_id = a.tomo_id
WHERE a.annotation_id = ?`
)

type countRow struct {
	TomoID          int64 `gorm:"column:tomo_id"`
	AnnotationCount int64 `gorm:"column:annotation_count"`
}

// Facade runs the queries against the database
type Facade struct {
	db      *gorm.DB
	metrics *metrics.PipelineMetrics
}

// New returns a Facade reading through database. m may be nil.
func New(database *gorm.DB, m *metrics.PipelineMetrics) *Facade {
	return &Facade{db: database, metrics: m}
}

var _ Querier = (*Facade)(nil)

func (f *Facade) CountAnnotations(ctx context.Context, name string) (count int64, err error) {
	defer f.observe("count_annotations", time.Now(), &err)

	var row countRow
	res := f.db.WithContext(ctx).Raw(countSQL, name).Scan(&row)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to count annotations: %w", db.Classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("%w: %s", ErrTomogramNotFound, name)
	}
	return row.AnnotationCount, nil
}

func (f *Facade) FindRichTomograms(ctx context.Context, minCount int64) (result []RichTomogram, err error) {
	defer f.observe("find_rich_tomograms", time.Now(), &err)

	if minCount < 0 {
		return nil, fmt.Errorf("%w: %d is negative", ErrInvalidThreshold, minCount)
	}

	result = []RichTomogram{}
	if err := f.db.WithContext(ctx).Raw(richSQL, minCount).Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to find rich tomograms: %w", db.Classify(err))
	}
	return result, nil
}

func (f *Facade) LocateAnnotation(ctx context.Context, id int64) (loc AnnotationLocation, err error) {
	defer f.observe("locate_annotation", time.Now(), &err)

	res := f.db.WithContext(ctx).Raw(locateSQL, id).Scan(&loc)
	if res.Error != nil {
		return AnnotationLocation{}, fmt.Errorf("failed to locate annotation: %w", db.Classify(res.Error))
	}
	if res.RowsAffected == 0 {
		return AnnotationLocation{}, fmt.Errorf("%w: %d", ErrAnnotationNotFound, id)
	}
	return loc, nil
}

func (f *Facade) observe(name string, start time.Time, err *error) {
	f.metrics.RecordQuery(name, *err, time.Since(start))
}
