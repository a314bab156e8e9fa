package duckdb

// Config describes how to open a DuckDB database file.
type Config struct {
	Path     string
	ReadOnly bool
}

// DSN builds the go-duckdb connection string. A read-only handle cannot take
// the write lock, so dry runs never block or alter the source file.
func (c Config) DSN() string {
	if c.ReadOnly {
		return c.Path + "?access_mode=READ_ONLY"
	}
	return c.Path
}
