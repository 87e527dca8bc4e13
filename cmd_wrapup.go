package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

var wrapupsLimit int

var wrapupCmd = &cobra.Command{
	Use:   "wrapup <account-id> <morning|evening>",
	Short: "Generate a wrapup report now",
	Args:  cobra.ExactArgs(2),
	RunE: withDeps("worker", func(cmd *cobra.Command, args []string) error {
		id, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		kind, err := domain.ParseWrapupKind(args[1])
		if err != nil {
			return err
		}

		report, err := deps.Wrapup.Generate(cmd.Context(), id, kind, time.Now())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		if report == nil {
			out.SuccessMsg("no mail in the %s window; nothing to report", kind)
			return nil
		}
		out.Wrapups([]*domain.WrapupReport{report})
		return nil
	}),
}

var wrapupsCmd = &cobra.Command{
	Use:   "wrapups <account-id>",
	Short: "List recent wrapup reports",
	Args:  cobra.ExactArgs(1),
	RunE: withDeps("cli", func(cmd *cobra.Command, args []string) error {
		id, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		reports, err := deps.Wrapup.ListRecent(cmd.Context(), id, wrapupsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(reports)
		}
		out.Wrapups(reports)
		return nil
	}),
}

func init() {
	wrapupsCmd.Flags().IntVar(&wrapupsLimit, "limit", 5, "maximum entries")
}
