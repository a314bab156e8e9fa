package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/report"
)

// TableFilter lists the columns that together identify a logical record.
type TableFilter struct {
	FilterFields []string `json:"filter_fields" yaml:"filter_fields"`
}

// FilterSpec maps table names to their filter fields.
//
//	{"detail": {"filter_fields": ["geocode", "tax_type", "effective"]}}
type FilterSpec map[string]TableFilter

// LoadFilterSpec reads a filter document. Files ending in .yaml or .yml are
// decoded as YAML, anything else as JSON.
func LoadFilterSpec(path string) (FilterSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read filter spec: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	spec, err := ParseFilterSpec(b, format)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return spec, nil
}

// ParseFilterSpec decodes a filter document in the given format.
func ParseFilterSpec(b []byte, format string) (FilterSpec, error) {
	var spec FilterSpec
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(b, &spec); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(b))
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown filter spec format %q", format)
	}
	if spec == nil {
		spec = FilterSpec{}
	}
	return spec, nil
}

// Fields returns the filter fields for table. An exact key wins over a
// case-insensitive one. ok is false when the table is absent or has no
// fields.
func (s FilterSpec) Fields(table string) (fields []string, ok bool) {
	if tf, found := s[table]; found {
		return tf.FilterFields, len(tf.FilterFields) > 0
	}
	for name, tf := range s {
		if strings.EqualFold(name, table) {
			return tf.FilterFields, len(tf.FilterFields) > 0
		}
	}
	return nil, false
}

// FilterSpecMissingError reports an update member whose table has no filter
// fields configured.
type FilterSpecMissingError struct {
	Table string
}

func (e *FilterSpecMissingError) Error() string {
	return fmt.Sprintf("no filter fields configured for table %q", e.Table)
}

// Record implements report.Recordable.
func (e *FilterSpecMissingError) Record() report.Record {
	return report.Record{Kind: "FilterSpecMissingError", Error: e.Error(), Table: e.Table}
}
