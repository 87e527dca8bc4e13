package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/denwilliams/gmail-triage-assistant/infra/database"
	"github.com/denwilliams/gmail-triage-assistant/internal/bootstrap"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var (
	serveMode        string
	serveSkipMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the queue worker, or both",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch serveMode {
		case "api", "worker", "all":
		default:
			return fmt.Errorf("unknown mode %q (want api, worker or all)", serveMode)
		}
		return withDeps(serveMode, runServe)(cmd, args)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveMode, "mode", "all", "run mode: api, worker, all")
	serveCmd.Flags().BoolVar(&serveSkipMigrate, "skip-migrate", false, "do not apply pending migrations on start")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if !serveSkipMigrate {
		applied, err := database.Migrate(ctx, deps.SQLDB)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			logger.Info("Applied migrations: %v", applied)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if serveMode == "worker" || serveMode == "all" {
		runtime, err := bootstrap.NewWorker(deps)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("Starting worker...")
			return runtime.Run(ctx)
		})
	}

	if serveMode == "api" || serveMode == "all" {
		app, err := bootstrap.NewAPI(deps)
		if err != nil {
			return err
		}
		g.Go(func() error {
			addr := ":" + cfg.Port
			logger.Info("Starting API server on %s", addr)
			return app.Listen(addr)
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
			return app.ShutdownWithTimeout(shutdownTimeout)
		})
	}

	err := g.Wait()
	if err == context.Canceled {
		err = nil
	}
	return err
}
