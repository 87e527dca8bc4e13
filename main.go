package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/denwilliams/gmail-triage-assistant/config"
	"github.com/denwilliams/gmail-triage-assistant/internal/bootstrap"
	"github.com/denwilliams/gmail-triage-assistant/pkg/display"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	jsonOutput bool

	cfg  *config.Config
	deps *bootstrap.Dependencies
	out  = display.NewPrinter(os.Stdout, 100)
)

var rootCmd = &cobra.Command{
	Use:           "gmail-triage",
	Short:         "Gmail triage assistant",
	Long:          "Classifies incoming Gmail, applies labels, and keeps rolling memories and wrapup reports.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional (local development)
		envErr := godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger.Init(logger.Config{
			Level:   logger.ParseLevel(cfg.LogLevel),
			Service: "gmail-triage",
		})
		if envErr != nil {
			logger.Debug("No .env file found, using environment variables")
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of formatted output")
	rootCmd.AddCommand(serveCmd, migrateCmd, pollCmd, triageCmd, memoryCmd, memoriesCmd, wrapupCmd, wrapupsCmd, tokenCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		out.ErrorMsg("%v", err)
		os.Exit(1)
	}
}

// withDeps connects the stores for one command and closes them afterwards.
func withDeps(mode string, run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(mode); err != nil {
			return err
		}
		d, cleanup, err := bootstrap.NewDependencies(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		deps = d
		return run(cmd, args)
	}
}

func parseAccount(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", s)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
