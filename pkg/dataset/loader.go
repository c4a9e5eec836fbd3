package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cryoetdb/cryoetdb/pkg/logging"
)

// ErrMalformedTable is returned when the label table lacks a required
// column or cannot be read as CSV at all.
var ErrMalformedTable = errors.New("malformed label table")

// ErrTableNotFound is returned when the label table does not exist.
var ErrTableNotFound = errors.New("label table not found")

// Column names. ColumnTomoID is accepted as an alias of ColumnTomoName.
const (
	ColumnTomoName = "tomo_name"
	ColumnTomoID   = "tomo_id"
	ColumnX        = "x"
	ColumnY        = "y"
	ColumnZ        = "z"
)

// Row is one accepted label table row.
type Row struct {
	TomoName string
	X, Y, Z  float64
	// Line is the 1-based line number in the table, header included.
	Line int
}

// Stats counts what one pass over the table did with each row.
type Stats struct {
	Rows          int
	Accepted      int
	Malformed     int
	MissingVolume int
	InvalidVolume int
}

// Skipped returns the number of rows not accepted.
func (s Stats) Skipped() int {
	return s.Malformed + s.MissingVolume + s.InvalidVolume
}

// Dataset is a materialized pass over the table.
type Dataset struct {
	Rows  []Row
	Stats Stats
}

// Seq yields the materialized rows.
func (d *Dataset) Seq() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, r := range d.Rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Tomograms returns the distinct tomogram names in first-seen order.
func (d *Dataset) Tomograms() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, r := range d.Rows {
		if _, ok := seen[r.TomoName]; ok {
			continue
		}
		seen[r.TomoName] = struct{}{}
		names = append(names, r.TomoName)
	}
	return names
}

// Loader reads a label table and validates the volumes it refers to.
type Loader struct {
	TablePath string
	VolumeDir string
	// VolumeExt defaults to DefaultVolumeExt.
	VolumeExt string
	Logger    *slog.Logger
}

// NewLoader returns a Loader for the standard data directory layout:
// tablePath, and volumes under dataDir/volumes.
func NewLoader(tablePath, dataDir string, logger *slog.Logger) *Loader {
	return &Loader{
		TablePath: tablePath,
		VolumeDir: filepath.Join(dataDir, "volumes"),
		VolumeExt: DefaultVolumeExt,
		Logger:    logger,
	}
}

// VolumeFile returns where the volume of tomogram name is expected on disk.
func (l *Loader) VolumeFile(name string) string {
	ext := l.VolumeExt
	if ext == "" {
		ext = DefaultVolumeExt
	}
	return filepath.Join(l.VolumeDir, name+ext)
}

// VolumePath returns the raw_volume_path recorded for tomogram name.
func (l *Loader) VolumePath(name string) string {
	return RawVolumePath(name)
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return logging.Discard()
	}
	return l.Logger
}

// Rows yields the accepted rows of the table. The sequence is lazy and
// restartable: each iteration reopens the table. A fatal error is yielded
// once as the last element.
func (l *Loader) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return l.Scan(ctx, nil)
}

// Scan is Rows with per-pass counters written to stats, which may be nil.
func (l *Loader) Scan(ctx context.Context, stats *Stats) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if stats == nil {
			stats = &Stats{}
		}
		*stats = Stats{}

		f, err := os.Open(l.TablePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				err = fmt.Errorf("%w: %s", ErrTableNotFound, l.TablePath)
			}
			yield(Row{}, err)
			return
		}
		defer func() { _ = f.Close() }()

		p := &pass{loader: l, log: l.logger(), stats: stats, volumes: make(map[string]error)}
		p.run(ctx, f, yield)
	}
}

// Load materializes one pass over the table.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}
	for row, err := range l.Scan(ctx, &ds.Stats) {
		if err != nil {
			return nil, err
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

type columns struct {
	name, x, y, z int
}

func parseHeader(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	cols := columns{name: -1}
	if i, ok := idx[ColumnTomoName]; ok {
		cols.name = i
	} else if i, ok := idx[ColumnTomoID]; ok {
		cols.name = i
	}

	var missing []string
	if cols.name < 0 {
		missing = append(missing, ColumnTomoName)
	}
	for _, c := range []struct {
		name string
		dst  *int
	}{{ColumnX, &cols.x}, {ColumnY, &cols.y}, {ColumnZ, &cols.z}} {
		i, ok := idx[c.name]
		if !ok {
			missing = append(missing, c.name)
			continue
		}
		*c.dst = i
	}
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("%w: missing column(s) %s", ErrMalformedTable, strings.Join(missing, ", "))
	}
	return cols, nil
}

// pass holds the state of one iteration over the table.
type pass struct {
	loader  *Loader
	log     *slog.Logger
	stats   *Stats
	volumes map[string]error
}

func (p *pass) run(ctx context.Context, r io.Reader, yield func(Row, error) bool) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: %s is empty", ErrMalformedTable, p.loader.TablePath)
		} else {
			err = fmt.Errorf("%w: %v", ErrMalformedTable, err)
		}
		yield(Row{}, err)
		return
	}
	cols, err := parseHeader(header)
	if err != nil {
		yield(Row{}, err)
		return
	}

	for {
		if err := ctx.Err(); err != nil {
			yield(Row{}, err)
			return
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			p.stats.Rows++
			p.malformed(parseErr.Line, parseErr.Err.Error())
			continue
		}
		if err != nil {
			yield(Row{}, fmt.Errorf("failed to read %s: %w", p.loader.TablePath, err))
			return
		}

		p.stats.Rows++
		line, _ := cr.FieldPos(0)
		row, reason := parseRecord(record, cols)
		if reason != "" {
			p.malformed(line, reason)
			continue
		}
		row.Line = line

		if !p.volumeUsable(row.TomoName) {
			continue
		}

		p.stats.Accepted++
		if !yield(row, nil) {
			return
		}
	}
}

func parseRecord(record []string, cols columns) (Row, string) {
	field := func(i int) (string, bool) {
		if i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	name, ok := field(cols.name)
	if !ok || name == "" {
		return Row{}, "empty tomogram name"
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Row{}, fmt.Sprintf("invalid tomogram name %q", name)
	}

	var coords [3]float64
	for i, c := range []int{cols.x, cols.y, cols.z} {
		raw, ok := field(c)
		if !ok {
			return Row{}, "missing coordinate"
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Row{}, fmt.Sprintf("invalid coordinate %q", raw)
		}
		coords[i] = v
	}

	return Row{TomoName: name, X: coords[0], Y: coords[1], Z: coords[2]}, ""
}

func (p *pass) malformed(line int, reason string) {
	p.stats.Malformed++
	p.log.Warn("skipping malformed row", "line", line, "reason", reason)
}

// volumeUsable checks the volume of name once per pass and counts the
// skipped row when it is not usable.
func (p *pass) volumeUsable(name string) bool {
	err, checked := p.volumes[name]
	if !checked {
		_, err = VolumeShape(p.loader.VolumeFile(name))
		p.volumes[name] = err
		if err != nil {
			p.log.Warn("skipping rows of tomogram without usable volume", "tomo_name", name, "error", err)
		}
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrVolumeMissing):
		p.stats.MissingVolume++
	default:
		p.stats.InvalidVolume++
	}
	return false
}
