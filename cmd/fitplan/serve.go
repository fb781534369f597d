package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/2beens/fitplan/internal"
	"github.com/2beens/fitplan/internal/catalogwatch"
	"github.com/2beens/fitplan/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server with the template catalog loaded",
		Long: `Loads the catalog and injury mappings and serves /healthz, /catalog/* and
/injuries beside a prometheus /metrics endpoint. With --watch, template
directory changes trigger a catalog reload.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			cfg, closeLogs, err := opts.loadConfig(ctx, "fitplan-service")
			if err != nil {
				return err
			}
			defer closeLogs()

			server, err := internal.NewServer(ctx, internal.NewServerParams{
				Config:      cfg,
				VersionInfo: versionInfo(),
			})
			if err != nil {
				return err
			}

			chOsInterrupt := make(chan os.Signal, 1)
			signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

			server.Serve(cfg.Host, cfg.Port)

			if watch {
				startWatcher(ctx, cfg, server.Services())
			}

			receivedSig := <-chOsInterrupt
			log.Warnf("signal [%s] received, shutting down ...", receivedSig)
			cancel()

			server.GracefulShutdown()
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the catalog when the template directory changes")
	return cmd
}

func startWatcher(ctx context.Context, cfg *config.Config, services *internal.Services) {
	if cfg.TemplatesSource == config.TemplatesSourceS3 {
		log.Warnln("--watch has no effect for s3 templates, use POST /catalog/reload")
		return
	}

	dirs := []string{cfg.TemplatesDir}
	w := catalogwatch.New(func(ctx context.Context) error {
		if _, err := services.ReloadCatalog(ctx); err != nil {
			return err
		}
		if len(services.Injuries.Paths()) > 0 {
			return services.Injuries.Reload()
		}
		return nil
	}, catalogwatch.DefaultDebounce, dirs...)

	go func() {
		if err := w.Run(ctx); err != nil {
			log.Errorf("template watcher stopped: %s", err)
		}
	}()
}
