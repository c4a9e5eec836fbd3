package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/audit"
	"github.com/cryoetdb/cryoetdb/pkg/dataset"
	"github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/logging"
	"github.com/cryoetdb/cryoetdb/pkg/metrics"
	"github.com/cryoetdb/cryoetdb/pkg/model"
)

// DefaultBatchSize is the number of annotations per INSERT statement.
const DefaultBatchSize = 1000

// ErrTomogramNotFound is returned by DeleteTomogram for an unknown name.
var ErrTomogramNotFound = errors.New("tomogram not found")

const (
	insertTomogramSQL = `INSERT INTO tomograms (tomo_name, raw_volume_path, dataset_id) VALUES (?, ?, ?) ON CONFLICT (tomo_name) DO NOTHING`
	selectTomoIDSQL   = `SELECT tomo_id FROM tomograms WHERE tomo_name = ?`
	deleteAnnotsSQL   = `DELETE FROM annotations WHERE tomo_id = ?`
	countAnnotsSQL    = `SELECT COUNT(*) FROM annotations a JOIN tomograms t ON t.tomo_id = a.tomo_id WHERE t.tomo_name = ?`
	deleteTomogramSQL = `DELETE FROM tomograms WHERE tomo_name = ?`
)

// Engine ingests label rows into the database
type Engine struct {
	db        *gorm.DB
	policy    Policy
	batchSize int
	datasetID string
	source    string
	volume    func(name string) string
	logger    *slog.Logger
	audit     audit.Sink
	metrics   *metrics.PipelineMetrics
	newRunID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithBatchSize sets the annotations per INSERT. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDatasetID stamps newly created tomograms with id.
func WithDatasetID(id string) Option {
	return func(e *Engine) { e.datasetID = id }
}

// WithSource names the label table in logs and audit records.
func WithSource(source string) Option {
	return func(e *Engine) { e.source = source }
}

// WithVolumePath sets how raw_volume_path is derived from a tomogram name.
func WithVolumePath(fn func(name string) string) Option {
	return func(e *Engine) { e.volume = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithAudit(sink audit.Sink) Option {
	return func(e *Engine) { e.audit = sink }
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine returns an Engine writing through database.
func NewEngine(database *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:        database,
		policy:    PolicyAppend,
		batchSize: DefaultBatchSize,
		volume:    dataset.RawVolumePath,
		logger:    logging.Discard(),
		audit:     audit.Discard,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// group collects rows per tomogram in first-seen order.
type group struct {
	name        string
	annotations []model.Annotation
}

func collect(rows iter.Seq2[dataset.Row, error]) ([]*group, error) {
	var groups []*group
	byName := make(map[string]*group)
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		g, ok := byName[row.TomoName]
		if !ok {
			g = &group{name: row.TomoName}
			byName[row.TomoName] = g
			groups = append(groups, g)
		}
		g.annotations = append(g.annotations, model.Annotation{
			CoordX: row.X,
			CoordY: row.Y,
			CoordZ: row.Z,
		})
	}
	return groups, nil
}

// Ingest writes rows to the database. A read error from rows aborts before
// anything is written. A database error rolls back the current tomogram,
// stops the run and is returned with the report of what was committed.
func (e *Engine) Ingest(ctx context.Context, rows iter.Seq2[dataset.Row, error]) (Report, error) {
	start := time.Now()
	report := Report{RunID: e.newRunID(), Policy: e.policy}
	log := e.logger.With("run_id", report.RunID, "policy", string(e.policy))

	groups, err := collect(rows)
	if err != nil {
		err = fmt.Errorf("failed to read label rows: %w", err)
		e.finish(log, &report, start, err)
		return report, err
	}

	log.Info("ingestion started", "source", e.source, "tomograms", len(groups))

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			e.finish(log, &report, start, err)
			return report, err
		}

		res, err := e.ingestTomogram(ctx, g)
		if err != nil {
			report.FailedTomogram = g.name
			err = fmt.Errorf("failed to ingest tomogram %s: %w", g.name, db.Classify(err))
			e.finish(log, &report, start, err)
			return report, err
		}

		report.Tomograms++
		if res.created {
			report.Created++
		} else {
			report.Existing++
		}
		report.Annotations += res.inserted
		report.Replaced += res.replaced

		log.Debug("tomogram ingested",
			"tomo_name", g.name,
			"tomo_id", res.tomoID,
			"created", res.created,
			"annotations", res.inserted,
			"replaced", res.replaced)
	}

	e.finish(log, &report, start, nil)
	return report, nil
}

type tomogramResult struct {
	tomoID   int64
	created  bool
	inserted int64
	replaced int64
}

func (e *Engine) ingestTomogram(ctx context.Context, g *group) (tomogramResult, error) {
	var res tomogramResult

	var datasetID interface{}
	if e.datasetID != "" {
		datasetID = e.datasetID
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ins := tx.Exec(insertTomogramSQL, g.name, e.volume(g.name), datasetID)
		if ins.Error != nil {
			return fmt.Errorf("insert tomogram: %w", ins.Error)
		}
		res.created = ins.RowsAffected == 1

		if err := tx.Raw(selectTomoIDSQL, g.name).Scan(&res.tomoID).Error; err != nil {
			return fmt.Errorf("resolve tomo_id: %w", err)
		}
		if res.tomoID == 0 {
			return fmt.Errorf("resolve tomo_id: no row for %s", g.name)
		}

		if e.policy == PolicyReplace {
			del := tx.Exec(deleteAnnotsSQL, res.tomoID)
			if del.Error != nil {
				return fmt.Errorf("clear annotations: %w", del.Error)
			}
			res.replaced = del.RowsAffected
		}

		for i := range g.annotations {
			g.annotations[i].TomoID = res.tomoID
		}
		for start := 0; start < len(g.annotations); start += e.batchSize {
			end := min(start+e.batchSize, len(g.annotations))
			batch := g.annotations[start:end]
			ins := tx.Create(&batch)
			if ins.Error != nil {
				return fmt.Errorf("insert annotations: %w", ins.Error)
			}
			res.inserted += ins.RowsAffected
		}
		return nil
	})
	return res, err
}

func (e *Engine) finish(log *slog.Logger, report *Report, start time.Time, err error) {
	report.Duration = time.Since(start)

	event := audit.IngestEvent{
		RunID:       report.RunID,
		Source:      e.source,
		Policy:      string(e.policy),
		Tomograms:   report.Tomograms,
		Created:     report.Created,
		Annotations: report.Annotations,
		Success:     err == nil,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
		log.Error("ingestion failed",
			"error", err,
			"error_kind", db.Kind(err),
			"failed_tomogram", report.FailedTomogram,
			"tomograms", report.Tomograms,
			"annotations", report.Annotations)
	} else {
		log.Info("ingestion finished",
			"tomograms", report.Tomograms,
			"created", report.Created,
			"annotations", report.Annotations,
			"replaced", report.Replaced,
			"duration", report.Duration)
	}

	e.audit.Log(event)
	e.metrics.RecordIngestRun(err == nil, report.Created, report.Annotations, report.Duration)
}

// DeleteTomogram removes a tomogram; its annotations go with it through
// the foreign key cascade. It returns the number of annotations removed.
func (e *Engine) DeleteTomogram(ctx context.Context, name string) (int64, error) {
	var removed int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(countAnnotsSQL, name).Scan(&removed).Error; err != nil {
			return err
		}
		del := tx.Exec(deleteTomogramSQL, name)
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrTomogramNotFound, name)
		}
		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrTomogramNotFound) {
			err = fmt.Errorf("failed to delete tomogram %s: %w", name, db.Classify(err))
		}
		e.audit.Log(audit.TomogramDeleteEvent{TomoName: name, Success: false, ErrorMessage: err.Error()})
		return 0, err
	}

	e.logger.Info("tomogram deleted", "tomo_name", name, "annotations", removed)
	e.audit.Log(audit.TomogramDeleteEvent{TomoName: name, Annotations: removed, Success: true})
	return removed, nil
}
