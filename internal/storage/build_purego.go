//go:build purego || !cgo_sqlite

package storage

// The default build links modernc.org/sqlite, so faqgate cross-compiles
// with CGO_ENABLED=0 and ships as a single static binary.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite.
	DriverName = "sqlite"
	// BuildMode is reported by `faqgate version` and get_status.
	BuildMode = "purego"
)
