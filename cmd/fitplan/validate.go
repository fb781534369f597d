package main

import (
	"errors"
	"fmt"

	"github.com/2beens/fitplan/internal"
	"github.com/2beens/fitplan/internal/injuries"
	"github.com/2beens/fitplan/internal/templates"

	"github.com/spf13/cobra"
)

var errValidationFailed = errors.New("validation failed")

type validationReport struct {
	Catalog        templates.LoadReport `json:"catalog"`
	Statistics     templates.Statistics `json:"statistics"`
	Injuries       *injuries.Statistics `json:"injuries,omitempty"`
	InjuryConflict []injuries.Issue     `json:"injuryConflicts,omitempty"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		dir          string
		injuryPaths  []string
		allowRejects bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load templates and injury mappings and report rejects",
		Long: `Loads every template document and reports the ones that fail validation.
With --dir the config file is not needed. Exits non-zero when a template is
rejected, unless --allow-rejects is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var loader templates.Loader
			if dir != "" {
				loader = templates.NewDirLoader(dir)
			} else {
				cfg, closeLogs, err := opts.loadConfig(ctx, "fitplan-validate")
				if err != nil {
					return err
				}
				defer closeLogs()
				if loader, err = internal.TemplateLoader(ctx, cfg); err != nil {
					return err
				}
				if len(injuryPaths) == 0 {
					injuryPaths = cfg.InjuryPaths
				}
			}

			catalog := templates.NewCatalog(loader)
			loadReport, err := catalog.Load(ctx)
			if err != nil {
				return err
			}
			report := validationReport{
				Catalog:    loadReport,
				Statistics: catalog.Statistics(),
			}

			if len(injuryPaths) > 0 {
				table, err := injuries.LoadFile(injuryPaths...)
				if err != nil {
					return fmt.Errorf("load injury mappings: %w", err)
				}
				stats := table.Statistics()
				report.Injuries = &stats
				report.InjuryConflict = table.ValidateSubstitutes()
			}

			if err := writeOutput(cmd.OutOrStdout(), opts.format, report); err != nil {
				return err
			}
			if len(loadReport.Rejected) > 0 && !allowRejects {
				return fmt.Errorf("%w: %d templates rejected", errValidationFailed, len(loadReport.Rejected))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "template directory, overrides the config")
	cmd.Flags().StringSliceVar(&injuryPaths, "injuries", nil, "injury mapping files, overrides the config")
	cmd.Flags().BoolVar(&allowRejects, "allow-rejects", false, "exit zero even when templates are rejected")
	return cmd
}
