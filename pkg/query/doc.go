// Package query implements the read-only questions asked of the annotation
// store: how many annotations a tomogram has, which tomograms are rich in
// annotations, and where a single annotation lies.
package query
