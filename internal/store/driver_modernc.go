//go:build !sqlite_cgo

package store

import (
	// Pure Go SQLite driver, the default so the binary builds without
	// cgo on every platform.
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"
