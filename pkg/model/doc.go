// Package model defines the database models of the annotation store.
//
// # Core Models
//
//   - Tomogram: a named 3D volume, unique by TomoName
//   - Annotation: one picked coordinate inside a tomogram
//
// # Database Schema
//
//   - tomograms: tomo_id serial, tomo_name unique, raw_volume_path,
//     dataset_id, created_at
//   - annotations: annotation_id serial, tomo_id referencing tomograms
//     with ON DELETE CASCADE, coord_x, coord_y, coord_z
//
// The tables are created by the migrations under db/migrations.
package model
