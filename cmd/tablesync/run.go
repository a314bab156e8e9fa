package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/batch"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/config"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/logging"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/metrics"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/metrics/datadog"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/metrics/prompush"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/updater"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the most recent batch, or the one named by --job-folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}

			log, closeLog := logging.New(logging.Config{
				Level:      s.Log.Level,
				File:       s.Log.File,
				MaxSizeMB:  s.Log.MaxSizeMB,
				MaxBackups: s.Log.MaxBackups,
				MaxAgeDays: s.Log.MaxAgeDays,
				Console:    a.stderr,
			})
			defer closeLog()

			filters, err := config.LoadFilterSpec(s.FilterSpecPath)
			if err != nil {
				return err
			}
			issues := config.ValidateFilterSpec(filters)
			a.printIssues(issues)
			if config.HasErrors(issues) {
				return fmt.Errorf("invalid filter spec %s", s.FilterSpecPath)
			}

			b, err := selectBatch(s)
			if err != nil {
				return err
			}

			setupMetrics(s.Metrics, b.Name, log)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Warn("metrics flush", zap.Error(err))
				}
			}()

			r := updater.New(updater.Options{
				Source:         s.DatabasePath,
				StorageKind:    s.StorageKind,
				Batch:          b,
				Filters:        filters,
				SnapshotPrefix: s.SnapshotPrefix,
				ErrorLog:       s.ErrorLog,
				ChunkSize:      s.ChunkSize,
				DryRun:         s.DryRun,
			}, log)
			sum, runErr := r.Run(cmd.Context())
			if err := sum.Write(a.stdout); err != nil {
				log.Warn("write summary", zap.Error(err))
			}
			return runErr
		},
	}
}

func selectBatch(s config.Settings) (batch.Batch, error) {
	if s.JobFolder != "" {
		return batch.Resolve(s.JobFolder, s.UpdatesDir)
	}
	return batch.Latest(s.UpdatesDir)
}

// setupMetrics installs the configured backend. Failures fall back to the
// no-op backend.
func setupMetrics(m config.Metrics, batchName string, log *zap.Logger) {
	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: prom push backend unavailable; using nop", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  m.Namespace,
			GlobalTags: []string{"job:" + m.Job, "batch:" + batchName},
		})
		if err != nil {
			log.Warn("metrics: datadog backend unavailable; using nop", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
	case "", "none":
		return
	default:
		log.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", m.Backend))
		return
	}
	log.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("job", m.Job))
}
