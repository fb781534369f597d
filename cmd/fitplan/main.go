package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/2beens/fitplan/internal/config"
	"github.com/2beens/fitplan/internal/logging"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	env        string
	configPath string
	format     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "fitplan",
		Short: "Workout plan templates, matching and materialization",
		Long: `fitplan loads workout plan templates, matches them to intake criteria,
applies injury substitutions and experience adjustments, and persists the
resulting plans.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.env, "env", "development", "environment [prod | production | dev | development]")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "./config.toml", "path for the TOML config file")
	root.PersistentFlags().StringVar(&opts.format, "format", formatJSON, "output format [json | yaml]")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newPreviewCmd(opts),
		newGenerateCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// loadConfig reads the config and sets up logging. The returned closer
// flushes the log file.
func (o *rootOptions) loadConfig(ctx context.Context, serverName string) (*config.Config, func(), error) {
	cfg, err := config.Load(ctx, o.env, o.configPath)
	if err != nil {
		return nil, nil, err
	}

	logOutput := logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    cfg.LogFormatJSON,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        cfg.SentryDSN,
		SentryServerName: serverName,
	})
	log.Debugf("---->> running in [%s] environment", o.env)

	return cfg, func() {
		if err := logOutput.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close log output: %s\n", err)
		}
	}, nil
}

// versionInfo is the VCS revision stamped into the binary, if any.
func versionInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return info.Main.Version
}
