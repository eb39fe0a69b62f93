//go:build !sqlite_vec

package store

// Default build: pure Go SQLite without CGO. Similarity is computed in Go.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver used by SQLite.
	DriverName = "sqlite"
	// VectorExtensionAvailable reports whether vec_distance_cosine exists.
	VectorExtensionAvailable = false
	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
