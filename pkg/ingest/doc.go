// Package ingest writes label rows into the tomograms and annotations tables.
//
// Rows are grouped by tomogram name in first-seen order. Each tomogram is
// handled in its own transaction: the tomogram row is created if absent
// (INSERT ... ON CONFLICT (tomo_name) DO NOTHING), its id is read back, and
// its annotations are inserted in batches. Re-running ingestion never
// creates a second tomogram row for a name.
//
// Under PolicyAppend, the default, every run adds its annotations to those
// already stored. PolicyReplace first deletes the stored annotations of each
// tomogram the run touches.
package ingest
