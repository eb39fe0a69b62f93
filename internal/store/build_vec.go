//go:build sqlite_vec

package store

// Built with -tags sqlite_vec (CGO required): the mattn driver with the
// sqlite-vec extension, so similarity is computed in SQL.

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const (
	// DriverName is the database/sql driver used by SQLite.
	DriverName = "sqlite3"
	// VectorExtensionAvailable reports whether vec_distance_cosine exists.
	VectorExtensionAvailable = true
	// BuildMode describes the current build configuration.
	BuildMode = "cgo+sqlite-vec"
)
