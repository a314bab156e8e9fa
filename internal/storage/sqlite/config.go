package sqlite

import (
	"net/url"
	"strings"
)

// Config describes how to open a SQLite database file.
type Config struct {
	Path     string
	ReadOnly bool
}

// DSN builds the modernc.org/sqlite data source name. Read-only handles use
// mode=ro so the file can never be written through them. Writable handles
// set a busy timeout.
func (c Config) DSN() string {
	if c.Path == ":memory:" || strings.HasPrefix(c.Path, "file:") {
		return c.Path
	}
	q := url.Values{}
	if c.ReadOnly {
		q.Set("mode", "ro")
	} else {
		q.Add("_pragma", "busy_timeout(5000)")
	}
	return "file:" + c.Path + "?" + q.Encode()
}
