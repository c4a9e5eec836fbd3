package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
)

// DefaultVolumeExt is the extension of volume files on disk.
const DefaultVolumeExt = ".npy"

// ErrVolumeMissing is returned when a tomogram has no volume file.
var ErrVolumeMissing = errors.New("volume file missing")

// ErrVolumeInvalid is returned when a volume file is not a non-empty
// rank-3 array.
var ErrVolumeInvalid = errors.New("volume file invalid")

// VolumeShape reads the header of the .npy file at p and returns the array
// shape. Only rank-3 arrays with no zero-length axis are accepted.
func VolumeShape(p string) ([]int, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrVolumeMissing, p)
		}
		return nil, fmt.Errorf("failed to open volume %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVolumeInvalid, p, err)
	}

	shape := r.Header.Descr.Shape
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: %s has rank %d, want 3", ErrVolumeInvalid, p, len(shape))
	}
	for _, n := range shape {
		if n <= 0 {
			return nil, fmt.Errorf("%w: %s has empty shape %v", ErrVolumeInvalid, p, shape)
		}
	}
	return shape, nil
}

// RawVolumePath is the path recorded in tomograms.raw_volume_path for a
// tomogram. It names the original reconstruction, relative to the data
// directory.
func RawVolumePath(name string) string {
	return path.Join("volumes", name+".mrc")
}

// VolumeFileFor maps a recorded raw_volume_path back to the .npy file
// under dataDir that holds the same volume.
func VolumeFileFor(dataDir, rawVolumePath string) string {
	rel := filepath.FromSlash(rawVolumePath)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + DefaultVolumeExt
	return filepath.Join(dataDir, rel)
}
