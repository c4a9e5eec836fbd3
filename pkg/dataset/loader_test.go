package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture lays out dataDir/labels.csv and dataDir/volumes/<name>.npy.
func fixture(t *testing.T, csv string, volumes ...string) *Loader {
	t.Helper()
	dataDir := t.TempDir()
	table := filepath.Join(dataDir, "labels.csv")
	require.NoError(t, os.WriteFile(table, []byte(csv), 0o644))
	for _, name := range volumes {
		writeVolume(t, filepath.Join(dataDir, "volumes", name+".npy"), 2, 2, 2)
	}
	return NewLoader(table, dataDir, nil)
}

func TestLoad(t *testing.T) {
	l := fixture(t, "tomo_name,x,y,z\ntomo_a,1,2,3\ntomo_b,4.5,5,6\ntomo_a,7,8,9\n", "tomo_a", "tomo_b")

	ds, err := l.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, ds.Rows, 3)
	assert.Equal(t, Row{TomoName: "tomo_a", X: 1, Y: 2, Z: 3, Line: 2}, ds.Rows[0])
	assert.Equal(t, 4.5, ds.Rows[1].X)
	assert.Equal(t, []string{"tomo_a", "tomo_b"}, ds.Tomograms())
	assert.Equal(t, Stats{Rows: 3, Accepted: 3}, ds.Stats)
}

func TestLoad_TomoIDAlias(t *testing.T) {
	l := fixture(t, "tomo_id,z,y,x,extra\ntomo_a,3,2,1,ignored\n", "tomo_a")

	ds, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, Row{TomoName: "tomo_a", X: 1, Y: 2, Z: 3, Line: 2}, ds.Rows[0])
}

func TestLoad_MalformedTable(t *testing.T) {
	tests := map[string]string{
		"missing z":    "tomo_name,x,y\ntomo_a,1,2\n",
		"missing name": "name,x,y,z\ntomo_a,1,2,3\n",
		"empty file":   "",
	}
	for name, csv := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := fixture(t, csv, "tomo_a").Load(context.Background())
			assert.ErrorIs(t, err, ErrMalformedTable)
		})
	}
}

func TestLoad_SkipsMalformedRows(t *testing.T) {
	csv := "tomo_name,x,y,z\n" +
		",1,2,3\n" + // empty name
		"tomo_a,abc,2,3\n" + // non-numeric
		"tomo_a,NaN,2,3\n" + // non-finite
		"tomo_a,1,2\n" + // missing field
		"../etc,1,2,3\n" + // path in name
		"tomo_a,1,2,3\n"

	ds, err := fixture(t, csv, "tomo_a").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, 7, ds.Rows[0].Line)
	assert.Equal(t, Stats{Rows: 6, Accepted: 1, Malformed: 5}, ds.Stats)
	assert.Equal(t, 5, ds.Stats.Skipped())
}

func TestLoad_SkipsRowsWithoutVolume(t *testing.T) {
	l := fixture(t, "tomo_name,x,y,z\ntomo_a,1,2,3\nghost,1,1,1\nghost,2,2,2\ntomo_bad,0,0,0\n", "tomo_a")
	writeFlatVolume(t, l.VolumeFile("tomo_bad"), []float64{1})

	ds, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tomo_a"}, ds.Tomograms())
	assert.Equal(t, Stats{Rows: 4, Accepted: 1, MissingVolume: 2, InvalidVolume: 1}, ds.Stats)
}

func TestRows_Restartable(t *testing.T) {
	l := fixture(t, "tomo_name,x,y,z\ntomo_a,1,2,3\ntomo_a,4,5,6\n", "tomo_a")

	count := func() int {
		n := 0
		for _, err := range l.Rows(context.Background()) {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())
}

func TestRows_EarlyBreak(t *testing.T) {
	l := fixture(t, "tomo_name,x,y,z\ntomo_a,1,2,3\ntomo_a,4,5,6\n", "tomo_a")

	var stats Stats
	for row, err := range l.Scan(context.Background(), &stats) {
		require.NoError(t, err)
		assert.Equal(t, "tomo_a", row.TomoName)
		break
	}
	assert.Equal(t, 1, stats.Accepted)
}

func TestRows_Errors(t *testing.T) {
	t.Run("table not found", func(t *testing.T) {
		l := NewLoader(filepath.Join(t.TempDir(), "missing.csv"), t.TempDir(), nil)
		_, err := l.Load(context.Background())
		assert.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := fixture(t, "tomo_name,x,y,z\ntomo_a,1,2,3\n", "tomo_a")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := l.Load(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoaderPaths(t *testing.T) {
	l := NewLoader("/app/data/labels.csv", "/app/data", nil)
	assert.Equal(t, filepath.Join("/app/data", "volumes", "tomo_a.npy"), l.VolumeFile("tomo_a"))
	assert.Equal(t, "volumes/tomo_a.mrc", l.VolumePath("tomo_a"))
}
