package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NumeralHQ/rate-and-boundary-updates/internal/config"
	"github.com/NumeralHQ/rate-and-boundary-updates/internal/storage"
)

func (a *app) validateCmd() *cobra.Command {
	var checkSchema bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Lint settings and the filter spec, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			filters, err := config.LoadFilterSpec(s.FilterSpecPath)
			if err != nil {
				return err
			}
			issues := config.ValidateFilterSpec(filters)

			if checkSchema {
				repo, err := storage.New(cmd.Context(), storage.Config{Kind: s.StorageKind, Path: s.DatabasePath, ReadOnly: true})
				if err != nil {
					return err
				}
				defer repo.Close()
				more, err := config.CheckFilterSpecSchema(cmd.Context(), filters, repo)
				issues = append(issues, more...)
				if err != nil {
					a.printIssues(issues)
					return err
				}
			}

			a.printIssues(issues)
			if config.HasErrors(issues) {
				return fmt.Errorf("filter spec %s is invalid", s.FilterSpecPath)
			}
			fmt.Fprintf(a.stdout, "configuration is valid: %d table(s) in %s\n", len(filters), s.FilterSpecPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkSchema, "check-schema", false, "also check filter fields against the source database schema")
	return cmd
}
