// Package schema models the live column layout of a database table and
// validates CSV headers against it.
//
// Column types come from the database catalog, never from the CSV contents.
// ParseType folds backend type names (DuckDB and SQLite spellings) into a
// small set of value kinds that drive coercion.
package schema

import (
	"strconv"
	"strings"
)

// Kind is the value class of a column.
type Kind uint8

const (
	KindText Kind = iota
	KindInteger
	KindReal
	KindBoolean
	KindDate
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// Type is a parsed declared column type.
type Type struct {
	Declared string // as reported by the catalog, e.g. "DECIMAL(18,3)"
	Kind     Kind

	// Bits and Unsigned bound integer kinds. Bits is 64 for unbounded types
	// and 128 for HUGEINT/UHUGEINT.
	Bits     int
	Unsigned bool

	// Precision and Scale are set for DECIMAL/NUMERIC with explicit bounds.
	Precision int
	Scale     int
}

var intBits = map[string]struct {
	bits     int
	unsigned bool
}{
	"TINYINT": {8, false}, "INT1": {8, false},
	"SMALLINT": {16, false}, "INT2": {16, false}, "SHORT": {16, false},
	"INTEGER": {32, false}, "INT": {32, false}, "INT4": {32, false}, "SIGNED": {32, false},
	"BIGINT": {64, false}, "INT8": {64, false}, "LONG": {64, false},
	"HUGEINT": {128, false}, "INT128": {128, false},
	"UTINYINT": {8, true}, "USMALLINT": {16, true}, "UINTEGER": {32, true},
	"UBIGINT": {64, true}, "UHUGEINT": {128, true}, "UINT128": {128, true},
}

// ParseType classifies a declared type name.
//
// Exact DuckDB names are matched first. Anything else falls back to SQLite
// affinity rules, and unknown names are treated as text so their values are
// preserved verbatim.
func ParseType(declared string) Type {
	t := Type{Declared: declared, Kind: KindText}
	up := strings.ToUpper(strings.TrimSpace(declared))
	base, args := up, ""
	if i := strings.IndexByte(up, '('); i >= 0 {
		base = strings.TrimSpace(up[:i])
		args = strings.TrimSuffix(strings.TrimSpace(up[i+1:]), ")")
	}

	if ib, ok := intBits[base]; ok {
		t.Kind, t.Bits, t.Unsigned = KindInteger, ib.bits, ib.unsigned
		return t
	}

	switch base {
	case "VARCHAR", "CHAR", "BPCHAR", "TEXT", "STRING", "NVARCHAR", "NCHAR", "CLOB", "UUID", "JSON", "BLOB":
		return t
	case "DOUBLE", "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE PRECISION":
		t.Kind = KindReal
		return t
	case "DECIMAL", "NUMERIC":
		t.Kind = KindReal
		t.Precision, t.Scale = parseDecimalArgs(args)
		return t
	case "BOOLEAN", "BOOL", "LOGICAL":
		t.Kind = KindBoolean
		return t
	case "DATE":
		t.Kind = KindDate
		return t
	case "DATETIME", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		t.Kind = KindTimestamp
		return t
	}

	// SQLite affinity, in the order SQLite applies it.
	switch {
	case strings.Contains(base, "INT") && !strings.Contains(base, "INTERVAL") && !strings.Contains(base, "POINT"):
		t.Kind, t.Bits = KindInteger, 64
	case strings.Contains(base, "CHAR"), strings.Contains(base, "CLOB"), strings.Contains(base, "TEXT"):
	case strings.Contains(base, "REAL"), strings.Contains(base, "FLOA"), strings.Contains(base, "DOUB"):
		t.Kind = KindReal
	case strings.HasPrefix(base, "TIMESTAMP"):
		t.Kind = KindTimestamp
	}
	return t
}

// ParseAffinityType is ParseType for engines that store every integer as a
// signed 64-bit value regardless of the declared name, as SQLite does.
func ParseAffinityType(declared string) Type {
	t := ParseType(declared)
	if t.Kind == KindInteger {
		t.Bits, t.Unsigned = 64, false
	}
	return t
}

func parseDecimalArgs(args string) (precision, scale int) {
	if args == "" {
		return 0, 0
	}
	parts := strings.Split(args, ",")
	p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0
	}
	if len(parts) > 1 {
		if s, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			scale = s
		}
	}
	return p, scale
}
