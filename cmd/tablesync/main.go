// Command tablesync applies a batch of CSV change-sets to a snapshot of the
// tax database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/config"

	// register all backends with the storage factory.
	_ "github.com/NumeralHQ/rate-and-boundary-updates/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tablesync: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app carries state shared by the subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.NewViper(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "tablesync",
		Short: "Synchronize CSV change-sets into the tax database",
		Long: `tablesync reads a batch folder of <table>_<append|update>_<n>.csv files,
validates each against the live table schema, and applies it to a fresh
snapshot of the source database. Row-level problems are collected in the
batch folder's error document; only batch-level failures exit non-zero.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "settings file (JSON, YAML or TOML)")
	config.RegisterFlags(pf)
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return config.BindFlags(a.v, cmd.Flags())
	}

	root.AddCommand(a.runCmd(), a.validateCmd())
	return root
}

// settings resolves and lints the settings, printing every issue.
func (a *app) settings() (config.Settings, error) {
	s, err := config.Load(a.v, a.configFile)
	if err != nil {
		return s, err
	}
	issues := config.ValidateSettings(s)
	a.printIssues(issues)
	if config.HasErrors(issues) {
		return s, fmt.Errorf("invalid settings")
	}
	return s, nil
}

func (a *app) printIssues(issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}
