package db

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	data, err := fs.ReadFile(Migrations, "migrations/"+name)
	require.NoError(t, err)
	return string(data)
}

// columns maps each column of the CREATE TABLE statement in ddl to its
// definition, upper-cased with whitespace collapsed.
func columns(t *testing.T, ddl, table string) map[string]string {
	t.Helper()
	re := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` \((.*?)\n\);`)
	m := re.FindStringSubmatch(ddl)
	require.Len(t, m, 2, "no CREATE TABLE for %s", table)

	cols := make(map[string]string)
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cols[fields[0]] = strings.ToUpper(strings.Join(fields[1:], " "))
	}
	return cols
}

func TestTomogramsSchema(t *testing.T) {
	ddl := readMigration(t, "000001_create_tomograms.up.sql")
	cols := columns(t, ddl, "tomograms")

	assert.Equal(t, map[string]string{
		"tomo_id":         "SERIAL PRIMARY KEY",
		"tomo_name":       "TEXT UNIQUE NOT NULL",
		"raw_volume_path": "TEXT NOT NULL",
		"dataset_id":      "TEXT NULL",
		"created_at":      "TIMESTAMPTZ DEFAULT NOW()",
	}, cols)
	assert.NotContains(t, strings.ToUpper(ddl), "CHECK")
	assert.Contains(t, ddl, "CREATE INDEX IF NOT EXISTS tomograms_tomo_name_idx ON tomograms (tomo_name);")
}

func TestAnnotationsSchema(t *testing.T) {
	ddl := readMigration(t, "000002_create_annotations.up.sql")
	cols := columns(t, ddl, "annotations")

	assert.Equal(t, map[string]string{
		"annotation_id": "SERIAL PRIMARY KEY",
		"tomo_id":       "INTEGER REFERENCES TOMOGRAMS (TOMO_ID) ON DELETE CASCADE",
		"coord_x":       "DOUBLE PRECISION NOT NULL",
		"coord_y":       "DOUBLE PRECISION NOT NULL",
		"coord_z":       "DOUBLE PRECISION NOT NULL",
	}, cols)
	assert.Contains(t, ddl, "CREATE INDEX IF NOT EXISTS annotations_tomo_id_idx ON annotations (tomo_id);")
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Len(t, ups, 3)
	assert.Equal(t, ups, downs)
}
