package query

import (
	"context"
	"errors"
	"net"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cryoetdb/cryoetdb/pkg/db"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{
			Conn:                 mockDB,
			PreferSimpleProtocol: true,
		}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		},
	)
	require.NoError(t, err)
	return gormDB, mock
}

var (
	countQuery  = regexp.QuoteMeta("SELECT t.tomo_id, COUNT(a.annotation_id) AS annotation_count")
	richQuery   = regexp.QuoteMeta("SELECT t.tomo_name, COUNT(a.annotation_id) AS annotation_count")
	locateQuery = regexp.QuoteMeta("SELECT a.annotation_id, t.tomo_name, t.raw_volume_path")
)

func TestCountAnnotations(t *testing.T) {
	t.Run("existing tomogram", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery(countQuery).WithArgs("tomo_a").
			WillReturnRows(sqlmock.NewRows([]string{"tomo_id", "annotation_count"}).AddRow(1, 25))

		n, err := New(gormDB, nil).CountAnnotations(context.Background(), "tomo_a")
		require.NoError(t, err)
		assert.Equal(t, int64(25), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tomogram without annotations", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery(countQuery).WithArgs("tomo_empty").
			WillReturnRows(sqlmock.NewRows([]string{"tomo_id", "annotation_count"}).AddRow(2, 0))

		n, err := New(gormDB, nil).CountAnnotations(context.Background(), "tomo_empty")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unknown tomogram", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery(countQuery).WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"tomo_id", "annotation_count"}))

		_, err := New(gormDB, nil).CountAnnotations(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrTomogramNotFound)
	})

	t.Run("connection failure", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery(countQuery).
			WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")})

		_, err := New(gormDB, nil).CountAnnotations(context.Background(), "tomo_a")
		assert.ErrorIs(t, err, db.ErrConnection)
	})
}

func TestFindRichTomograms(t *testing.T) {
	t.Run("ordered by count then name", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery("(?s)"+richQuery+".*"+regexp.QuoteMeta("HAVING COUNT(a.annotation_id) >= $1")+".*"+
			regexp.QuoteMeta("ORDER BY annotation_count DESC, t.tomo_name ASC")).
			WithArgs(int64(20)).
			WillReturnRows(sqlmock.NewRows([]string{"tomo_name", "annotation_count"}).
				AddRow("A", 25).
				AddRow("D", 25).
				AddRow("B", 20))

		got, err := New(gormDB, nil).FindRichTomograms(context.Background(), 20)
		require.NoError(t, err)
		assert.Equal(t, []RichTomogram{
			{TomoName: "A", AnnotationCount: 25},
			{TomoName: "D", AnnotationCount: 25},
			{TomoName: "B", AnnotationCount: 20},
		}, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no match is an empty list", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery(richQuery).WillReturnRows(sqlmock.NewRows([]string{"tomo_name", "annotation_count"}))

		got, err := New(gormDB, nil).FindRichTomograms(context.Background(), 1000)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("negative threshold", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)

		_, err := New(gormDB, nil).FindRichTomograms(context.Background(), -1)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLocateAnnotation(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery(locateQuery).WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"annotation_id", "tomo_name", "raw_volume_path", "coord_x", "coord_y", "coord_z"}).
				AddRow(42, "tomo_a", "volumes/tomo_a.mrc", 1.5, 2.5, 3.5))

		loc, err := New(gormDB, nil).LocateAnnotation(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, AnnotationLocation{
			AnnotationID:  42,
			TomoName:      "tomo_a",
			RawVolumePath: "volumes/tomo_a.mrc",
			X:             1.5,
			Y:             2.5,
			Z:             3.5,
		}, loc)
	})

	t.Run("not found", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		mock.ExpectQuery(locateQuery).WillReturnRows(sqlmock.NewRows([]string{"annotation_id"}))

		_, err := New(gormDB, nil).LocateAnnotation(context.Background(), 7)
		assert.ErrorIs(t, err, ErrAnnotationNotFound)
	})
}
