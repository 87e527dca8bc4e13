package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

var (
	memoriesTier  string
	memoriesLimit int
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Memory rollup commands",
}

var memoryBuildCmd = &cobra.Command{
	Use:   "build <account-id> <daily|weekly|monthly|yearly>",
	Short: "Build memories up to the given tier now",
	Args:  cobra.ExactArgs(2),
	RunE: withDeps("worker", func(cmd *cobra.Command, args []string) error {
		id, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		tier, err := domain.ParseTier(args[1])
		if err != nil {
			return err
		}

		built, err := deps.Memory.BuildThrough(cmd.Context(), id, tier, time.Now())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(built)
		}
		if len(built) == 0 {
			out.SuccessMsg("nothing to build: every window up to %s is current", tier)
			return nil
		}
		out.Memories(built)
		return nil
	}),
}

var memoriesCmd = &cobra.Command{
	Use:   "memories <account-id>",
	Short: "List recent memories",
	Args:  cobra.ExactArgs(1),
	RunE: withDeps("cli", func(cmd *cobra.Command, args []string) error {
		id, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		tier, err := domain.ParseTier(memoriesTier)
		if err != nil {
			return err
		}
		ms, err := deps.Memory.List(cmd.Context(), id, tier, memoriesLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(ms)
		}
		out.Header(string(tier) + " memories")
		out.Memories(ms)
		return nil
	}),
}

func init() {
	memoryCmd.AddCommand(memoryBuildCmd)
	memoriesCmd.Flags().StringVar(&memoriesTier, "tier", "daily", "tier to list")
	memoriesCmd.Flags().IntVar(&memoriesLimit, "limit", 7, "maximum entries")
}
