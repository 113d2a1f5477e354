//go:build cgo_sqlite && !purego

package storage

// Snapshot loads decode every vector blob of the newest build at startup,
// which the C amalgamation does noticeably faster on large FAQs.
//
//   CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/faqgate

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by mattn/go-sqlite3.
	DriverName = "sqlite3"
	// BuildMode is reported by `faqgate version` and get_status.
	BuildMode = "cgo"
)
