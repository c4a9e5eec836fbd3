package ingest

import (
	"context"
	"errors"
	"iter"
	"net"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cryoetdb/cryoetdb/pkg/audit"
	"github.com/cryoetdb/cryoetdb/pkg/dataset"
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
			Logger:                 logger.Default.LogMode(logger.Silent),
			SkipDefaultTransaction: true,
		},
	)
	require.NoError(t, err)
	return gormDB, mock
}

type recordingSink struct {
	events []audit.Event
}

func (r *recordingSink) Log(e audit.Event) { r.events = append(r.events, e) }

func rowsOf(rows ...dataset.Row) iter.Seq2[dataset.Row, error] {
	ds := &dataset.Dataset{Rows: rows}
	return ds.Seq()
}

var (
	insertTomogram = regexp.QuoteMeta(`INSERT INTO tomograms (tomo_name, raw_volume_path, dataset_id)`)
	selectTomoID   = regexp.QuoteMeta(`SELECT tomo_id FROM tomograms WHERE tomo_name =`)
	insertAnnots   = regexp.QuoteMeta(`INSERT INTO "annotations"`)
	deleteAnnots   = regexp.QuoteMeta(`DELETE FROM annotations WHERE tomo_id =`)
)

func expectTomogram(mock sqlmock.Sqlmock, name string, created bool, id int64) {
	affected := int64(0)
	if created {
		affected = 1
	}
	mock.ExpectExec(insertTomogram).
		WithArgs(name, "volumes/"+name+".mrc", nil).
		WillReturnResult(sqlmock.NewResult(0, affected))
	mock.ExpectQuery(selectTomoID).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"tomo_id"}).AddRow(id))
}

func expectAnnotations(mock sqlmock.Sqlmock, firstID int64, n int) {
	rows := sqlmock.NewRows([]string{"annotation_id"})
	for i := 0; i < n; i++ {
		rows.AddRow(firstID + int64(i))
	}
	mock.ExpectQuery(insertAnnots).WillReturnRows(rows)
}

func fixedRunID() string { return "run-1" }

func TestIngest_Append(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	sink := &recordingSink{}
	engine := NewEngine(gormDB, WithAudit(sink), WithSource("labels.csv"))
	engine.newRunID = fixedRunID

	mock.ExpectBegin()
	expectTomogram(mock, "tomo_a", true, 1)
	expectAnnotations(mock, 1, 2)
	mock.ExpectCommit()

	mock.ExpectBegin()
	expectTomogram(mock, "tomo_b", false, 2)
	expectAnnotations(mock, 3, 1)
	mock.ExpectCommit()

	report, err := engine.Ingest(context.Background(), rowsOf(
		dataset.Row{TomoName: "tomo_a", X: 1, Y: 2, Z: 3},
		dataset.Row{TomoName: "tomo_b", X: 4, Y: 5, Z: 6},
		dataset.Row{TomoName: "tomo_a", X: 7, Y: 8, Z: 9},
	))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Tomograms)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Existing)
	assert.Equal(t, int64(3), report.Annotations)
	assert.Empty(t, report.FailedTomogram)

	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.SeverityInfo, sink.events[0].Severity())
}

func TestIngest_Replace(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	engine := NewEngine(gormDB, WithPolicy(PolicyReplace))

	mock.ExpectBegin()
	expectTomogram(mock, "tomo_a", false, 7)
	mock.ExpectExec(deleteAnnots).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 5))
	expectAnnotations(mock, 100, 1)
	mock.ExpectCommit()

	report, err := engine.Ingest(context.Background(), rowsOf(dataset.Row{TomoName: "tomo_a", X: 1, Y: 1, Z: 1}))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(5), report.Replaced)
	assert.Equal(t, int64(1), report.Annotations)
}

func TestIngest_Batches(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	engine := NewEngine(gormDB, WithBatchSize(2))

	mock.ExpectBegin()
	expectTomogram(mock, "tomo_a", true, 1)
	expectAnnotations(mock, 1, 2)
	expectAnnotations(mock, 3, 1)
	mock.ExpectCommit()

	report, err := engine.Ingest(context.Background(), rowsOf(
		dataset.Row{TomoName: "tomo_a", X: 1},
		dataset.Row{TomoName: "tomo_a", X: 2},
		dataset.Row{TomoName: "tomo_a", X: 3},
	))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(3), report.Annotations)
}

func TestIngest_DatasetID(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	engine := NewEngine(gormDB, WithDatasetID("ds-10"))

	mock.ExpectBegin()
	mock.ExpectExec(insertTomogram).
		WithArgs("tomo_a", "volumes/tomo_a.mrc", "ds-10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectTomoID).WillReturnRows(sqlmock.NewRows([]string{"tomo_id"}).AddRow(1))
	expectAnnotations(mock, 1, 1)
	mock.ExpectCommit()

	_, err := engine.Ingest(context.Background(), rowsOf(dataset.Row{TomoName: "tomo_a"}))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngest_StopsOnConstraintViolation(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	sink := &recordingSink{}
	engine := NewEngine(gormDB, WithAudit(sink))

	mock.ExpectBegin()
	expectTomogram(mock, "tomo_a", true, 1)
	expectAnnotations(mock, 1, 1)
	mock.ExpectCommit()

	mock.ExpectBegin()
	expectTomogram(mock, "tomo_b", true, 2)
	mock.ExpectQuery(insertAnnots).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Message: "violates foreign key"})
	mock.ExpectRollback()

	report, err := engine.Ingest(context.Background(), rowsOf(
		dataset.Row{TomoName: "tomo_a"},
		dataset.Row{TomoName: "tomo_b"},
		dataset.Row{TomoName: "tomo_c"},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrConstraint)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, report.Tomograms)
	assert.Equal(t, "tomo_b", report.FailedTomogram)
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.SeverityError, sink.events[0].Severity())
}

func TestIngest_ConnectionLost(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	engine := NewEngine(gormDB)

	mock.ExpectBegin().WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")})

	report, err := engine.Ingest(context.Background(), rowsOf(dataset.Row{TomoName: "tomo_a"}))
	assert.ErrorIs(t, err, db.ErrConnection)
	assert.Zero(t, report.Tomograms)
	assert.Equal(t, "tomo_a", report.FailedTomogram)
}

func TestIngest_ReadErrorWritesNothing(t *testing.T) {
	gormDB, mock := setupTestDB(t)
	engine := NewEngine(gormDB)

	rows := func(yield func(dataset.Row, error) bool) {
		if !yield(dataset.Row{TomoName: "tomo_a"}, nil) {
			return
		}
		yield(dataset.Row{}, dataset.ErrMalformedTable)
	}

	_, err := engine.Ingest(context.Background(), rows)
	assert.ErrorIs(t, err, dataset.ErrMalformedTable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngest_Empty(t *testing.T) {
	gormDB, mock := setupTestDB(t)

	report, err := NewEngine(gormDB).Ingest(context.Background(), rowsOf())
	require.NoError(t, err)
	assert.Zero(t, report.Tomograms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTomogram(t *testing.T) {
	countSQL := regexp.QuoteMeta(`SELECT COUNT(*) FROM annotations a JOIN tomograms t`)
	deleteSQL := regexp.QuoteMeta(`DELETE FROM tomograms WHERE tomo_name =`)

	t.Run("cascades", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)
		sink := &recordingSink{}

		mock.ExpectBegin()
		mock.ExpectQuery(countSQL).WithArgs("tomo_a").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
		mock.ExpectExec(deleteSQL).WithArgs("tomo_a").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		removed, err := NewEngine(gormDB, WithAudit(sink)).DeleteTomogram(context.Background(), "tomo_a")
		require.NoError(t, err)
		assert.Equal(t, int64(12), removed)
		assert.NoError(t, mock.ExpectationsWereMet())
		require.Len(t, sink.events, 1)
		assert.Equal(t, "tomogram-delete", sink.events[0].MessageID())
	})

	t.Run("not found", func(t *testing.T) {
		gormDB, mock := setupTestDB(t)

		mock.ExpectBegin()
		mock.ExpectQuery(countSQL).WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(deleteSQL).WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := NewEngine(gormDB).DeleteTomogram(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrTomogramNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAppend, p)

	p, err = ParsePolicy("replace")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplace, p)

	_, err = ParsePolicy("merge")
	assert.Error(t, err)
}
