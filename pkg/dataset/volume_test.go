package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeShape(t *testing.T) {
	dir := t.TempDir()

	t.Run("rank 3", func(t *testing.T) {
		p := filepath.Join(dir, "tomo_a.npy")
		writeVolume(t, p, 4, 5, 6)
		shape, err := VolumeShape(p)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 5, 6}, shape)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := VolumeShape(filepath.Join(dir, "nope.npy"))
		assert.ErrorIs(t, err, ErrVolumeMissing)
	})

	t.Run("wrong rank", func(t *testing.T) {
		p := filepath.Join(dir, "flat.npy")
		writeFlatVolume(t, p, []float64{1, 2, 3})
		_, err := VolumeShape(p)
		assert.ErrorIs(t, err, ErrVolumeInvalid)
	})

	t.Run("empty axis", func(t *testing.T) {
		p := filepath.Join(dir, "empty.npy")
		writeVolume(t, p, 4, 0, 6)
		_, err := VolumeShape(p)
		assert.ErrorIs(t, err, ErrVolumeInvalid)
	})

	t.Run("not npy", func(t *testing.T) {
		p := filepath.Join(dir, "text.npy")
		require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))
		_, err := VolumeShape(p)
		assert.ErrorIs(t, err, ErrVolumeInvalid)
	})
}

func TestRawVolumePath(t *testing.T) {
	assert.Equal(t, "volumes/tomo_a.mrc", RawVolumePath("tomo_a"))
	assert.Equal(t,
		filepath.Join("/app/data", "volumes", "tomo_a.npy"),
		VolumeFileFor("/app/data", RawVolumePath("tomo_a")))
}
