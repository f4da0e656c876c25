//go:build sqlite_cgo

package store

import (
	// cgo SQLite driver, opt-in via -tags sqlite_cgo where the cgo
	// toolchain is available and the extra speed matters.
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"
