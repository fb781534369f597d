package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/2beens/fitplan/internal"
	"github.com/2beens/fitplan/internal/generator"
	"github.com/2beens/fitplan/internal/intake"
	"github.com/2beens/fitplan/internal/templates"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// planFlags are shared by preview and generate.
type planFlags struct {
	criteria     intake.Criteria
	templateType string
	templateIDs  []string
	profilePath  string
	fallback     bool
	available    []string
	startDate    string
}

func (f *planFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.criteria.Goal, "goal", "", "goal, e.g. fat_loss or build_muscle")
	flags.StringVar(&f.criteria.Location, "location", "", "gym or home")
	flags.IntVar(&f.criteria.TrainingDaysAvailable, "days", 0, "training days per week")
	flags.StringVar(&f.criteria.ExperienceLevel, "level", "", "beginner, intermediate or advanced")
	flags.StringSliceVar(&f.criteria.Injuries, "injuries", nil, "injury codes, e.g. shoulder,knee")
	flags.StringVar(&f.templateType, "type", string(templates.TypeStarter), "template type [starter | advanced]")
	flags.StringSliceVar(&f.templateIDs, "template", nil, "explicit template ids, skips matching")
	flags.StringVar(&f.profilePath, "profile", "", "intake profile JSON file, picks the template type from the intake stage")
	flags.BoolVar(&f.fallback, "fallback", false, "fall back to a starter template when an advanced one has no program for the criteria")
	flags.StringSliceVar(&f.available, "available", nil, "exercise ids substitutes are limited to")
	flags.StringVar(&f.startDate, "start", "", "plan start date (YYYY-MM-DD), defaults to today")
}

func (f *planFlags) request() (generator.Request, error) {
	req := generator.Request{
		Criteria:           f.criteria,
		TemplateType:       templates.Type(f.templateType),
		FallbackToStarter:  f.fallback,
		AvailableExercises: f.available,
	}
	if !req.TemplateType.Valid() {
		return req, fmt.Errorf("unknown template type: %s", f.templateType)
	}
	if f.startDate != "" {
		start, err := time.Parse(dateLayout, f.startDate)
		if err != nil {
			return req, fmt.Errorf("invalid start date: %w", err)
		}
		req.StartDate = start
	}
	return req, nil
}

// resolveProfile replaces criteria and template type with the profile's and
// pins the recommended template.
func (f *planFlags) resolveProfile(services *internal.Services, req *generator.Request) error {
	if f.profilePath == "" {
		return nil
	}
	raw, err := os.ReadFile(f.profilePath)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	var profile intake.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return fmt.Errorf("decode profile [%s]: %w", f.profilePath, err)
	}

	req.Criteria = profile.Criteria()
	req.TemplateType = profile.TemplateType()
	t := services.Generator.RecommendForProfile(profile)
	if t == nil {
		return fmt.Errorf("profile [%s]: %w", f.profilePath, generator.ErrTemplateNotFound)
	}
	f.templateIDs = []string{t.ID}
	return nil
}

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	flags := &planFlags{}
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Dry-run plan generation for a criteria set",
		Long: `Matches a template, resolves its sessions, applies injury substitutions and
experience adjustments, and prints the result without persisting anything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req, err := flags.request()
			if err != nil {
				return err
			}

			cfg, closeLogs, err := opts.loadConfig(ctx, "fitplan-preview")
			if err != nil {
				return err
			}
			defer closeLogs()

			services, closeServices, err := openServices(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer closeServices()

			if err := flags.resolveProfile(services, &req); err != nil {
				return err
			}

			var draft *generator.Draft
			switch len(flags.templateIDs) {
			case 0:
				draft, err = services.Generator.Preview(ctx, req)
			case 1:
				draft, err = services.Generator.PreviewTemplate(ctx, flags.templateIDs[0], req)
			default:
				return errors.New("preview takes at most one --template")
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.format, draft)
		},
	}
	flags.register(cmd)
	return cmd
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		flags   = &planFlags{}
		userID  string
		coachID string
		custom  = struct {
			name, nameAR, userName, userNameAR string
			includeUserName                    bool
		}{}
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and persist a plan for a user",
		Long: `Generates a plan like preview does and materializes it for the user in one
transaction, deactivating the user's previous active plan. With several
--template ids each one is generated in order and reported separately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if userID == "" {
				return errors.New("--user is required")
			}
			req, err := flags.request()
			if err != nil {
				return err
			}
			req.UserID = userID
			req.CoachID = coachID
			req.Customizations.Name = custom.name
			req.Customizations.NameAR = custom.nameAR
			req.Customizations.IncludeUserName = custom.includeUserName
			req.Customizations.UserName = custom.userName
			req.Customizations.UserNameAR = custom.userNameAR

			cfg, closeLogs, err := opts.loadConfig(ctx, "fitplan-generate")
			if err != nil {
				return err
			}
			defer closeLogs()

			services, closeServices, err := openServices(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer closeServices()

			if err := flags.resolveProfile(services, &req); err != nil {
				return err
			}

			switch len(flags.templateIDs) {
			case 0:
				res, err := services.Generator.Generate(ctx, req)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.format, res)
			case 1:
				res, err := services.Generator.GenerateFromTemplate(ctx, flags.templateIDs[0], req)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), opts.format, res)
			default:
				results := services.Generator.GenerateMultiple(ctx, req, flags.templateIDs)
				if err := writeOutput(cmd.OutOrStdout(), opts.format, results); err != nil {
					return err
				}
				for _, r := range results {
					if !r.Success {
						return fmt.Errorf("template [%s] failed: %s", r.TemplateID, r.Error)
					}
				}
				return nil
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&userID, "user", "", "user id the plan belongs to")
	cmd.Flags().StringVar(&coachID, "coach", "", "coach id, optional")
	cmd.Flags().StringVar(&custom.name, "name", "", "plan name override")
	cmd.Flags().StringVar(&custom.nameAR, "name-ar", "", "arabic plan name override")
	cmd.Flags().BoolVar(&custom.includeUserName, "include-user-name", false, "append the user name to the plan name")
	cmd.Flags().StringVar(&custom.userName, "user-name", "", "user name for --include-user-name")
	cmd.Flags().StringVar(&custom.userNameAR, "user-name-ar", "", "arabic user name for --include-user-name")
	return cmd
}
