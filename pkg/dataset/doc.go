// Package dataset reads the label table and checks the volume files it
// refers to.
//
// The label table is a CSV file with a header naming at least the columns
// tomo_name (or tomo_id), x, y and z. Each accepted row becomes a Row.
// Rows with a bad name or bad coordinates are skipped with a warning, as
// are rows whose tomogram has no usable volume file. Volumes are NumPy
// .npy arrays stored as <VolumeDir>/<tomo_name>.npy; only their header is
// read, to check that they are non-empty rank-3 arrays.
package dataset
