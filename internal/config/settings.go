// Package config resolves run settings and loads the filter document.
//
// Settings come from, in order of precedence: command-line flags, TABLESYNC_*
// environment variables, an optional settings file, and built-in defaults.
// RegisterFlags and Load are split so tests can drive a private FlagSet and
// viper instance without touching the process environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TABLESYNC_CHUNK_SIZE.
const EnvPrefix = "TABLESYNC"

// FilterSpecFile is the filter document name looked up in the updates
// directory when no path is configured.
const FilterSpecFile = "filtering_criteria.json"

// Settings holds everything a run needs. Values are plain so the struct can
// be copied freely once loaded.
type Settings struct {
	DatabasePath   string // source database file
	StorageKind    string // "duckdb" or "sqlite"
	UpdatesDir     string // parent of the YYMMDD_update folders
	JobFolder      string // explicit batch folder; empty means latest
	FilterSpecPath string
	SnapshotPrefix string
	ErrorLog       string // file name inside the batch folder
	ChunkSize      int
	DryRun         bool

	Metrics Metrics
	Log     Log
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string // none, pushgateway, datadog
	PushgatewayURL string
	DatadogAddr    string
	Namespace      string
	Job            string
}

// Log configures the process logger.
type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// flagKeys maps flag names to settings keys.
var flagKeys = map[string]string{
	"database":        "database_path",
	"storage":         "storage_kind",
	"updates-dir":     "updates_dir",
	"job-folder":      "job_folder",
	"filter-spec":     "filter_spec",
	"snapshot-prefix": "snapshot_prefix",
	"error-log":       "error_log",
	"chunk-size":      "chunk_size",
	"dry-run":         "dry_run",
	"metrics-backend": "metrics.backend",
	"pushgateway-url": "metrics.pushgateway_url",
	"datadog-addr":    "metrics.datadog_addr",
	"log-level":       "log.level",
	"log-file":        "log.file",
}

// RegisterFlags defines every settings flag on fs. Flag defaults are empty;
// defaults live in viper so an unset flag never shadows env or file values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database", "", "source database file (env TABLESYNC_DATABASE_PATH)")
	fs.String("storage", "", "storage backend: duckdb or sqlite")
	fs.String("updates-dir", "", "directory holding YYMMDD_update batch folders")
	fs.String("job-folder", "", "process this batch folder instead of the most recent one")
	fs.String("filter-spec", "", "filter document, JSON or YAML (default <updates-dir>/"+FilterSpecFile+")")
	fs.String("snapshot-prefix", "", "snapshot file name prefix")
	fs.String("error-log", "", "error document file name inside the batch folder")
	fs.Int("chunk-size", 0, "rows per processing chunk")
	fs.Bool("dry-run", false, "validate and report without mutating any database")
	fs.String("metrics-backend", "", "metrics backend: none, pushgateway or datadog")
	fs.String("pushgateway-url", "", "Prometheus Pushgateway base URL")
	fs.String("datadog-addr", "", "DogStatsD address")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-file", "", "also write JSON logs to this rotating file")
}

// NewViper returns a viper instance with defaults and environment bindings.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("storage_kind", "duckdb")
	v.SetDefault("updates_dir", "table_updates")
	v.SetDefault("snapshot_prefix", "tax_db")
	v.SetDefault("error_log", "errors.json")
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "http://localhost:9091")
	v.SetDefault("metrics.datadog_addr", "127.0.0.1:8125")
	v.SetDefault("metrics.namespace", "tablesync.")
	v.SetDefault("metrics.job", "tablesync")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names kept for existing deployments.
	_ = v.BindEnv("metrics.backend", EnvPrefix+"_METRICS_BACKEND", "METRICS_BACKEND")
	_ = v.BindEnv("metrics.pushgateway_url", EnvPrefix+"_METRICS_PUSHGATEWAY_URL", "PUSHGATEWAY_URL")
	return v
}

// BindFlags connects the flags defined by RegisterFlags to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional settings file and resolves Settings from v.
func Load(v *viper.Viper, settingsFile string) (Settings, error) {
	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("config: read %s: %w", settingsFile, err)
		}
	}

	s := Settings{
		DatabasePath:   v.GetString("database_path"),
		StorageKind:    strings.ToLower(v.GetString("storage_kind")),
		UpdatesDir:     v.GetString("updates_dir"),
		JobFolder:      v.GetString("job_folder"),
		FilterSpecPath: v.GetString("filter_spec"),
		SnapshotPrefix: v.GetString("snapshot_prefix"),
		ErrorLog:       v.GetString("error_log"),
		ChunkSize:      v.GetInt("chunk_size"),
		DryRun:         v.GetBool("dry_run"),
		Metrics: Metrics{
			Backend:        strings.ToLower(v.GetString("metrics.backend")),
			PushgatewayURL: v.GetString("metrics.pushgateway_url"),
			DatadogAddr:    v.GetString("metrics.datadog_addr"),
			Namespace:      v.GetString("metrics.namespace"),
			Job:            v.GetString("metrics.job"),
		},
		Log: Log{
			Level:      v.GetString("log.level"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}
	if s.FilterSpecPath == "" {
		s.FilterSpecPath = filepath.Join(s.UpdatesDir, FilterSpecFile)
	}
	return s, nil
}
