// Package all registers every storage backend with the storage factory.
package all

import (
	_ "github.com/NumeralHQ/rate-and-boundary-updates/internal/storage/duckdb"
	_ "github.com/NumeralHQ/rate-and-boundary-updates/internal/storage/sqlite"
)
