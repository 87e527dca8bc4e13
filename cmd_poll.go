package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/in"
)

var pollAll bool

var pollCmd = &cobra.Command{
	Use:   "poll [account-id]",
	Short: "Check mailboxes for new mail now",
	Long: "Polls Gmail history for one account (or every active account with --all) and " +
		"queues the new messages. Without REDIS_URL the messages are triaged in place.",
	Args: cobra.MaximumNArgs(1),
	RunE: withDeps("worker", func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var ids []int64
		if pollAll {
			var after int64
			for {
				page, err := deps.Accounts.ListActive(ctx, after, 100)
				if err != nil {
					return err
				}
				for _, a := range page {
					ids = append(ids, a.ID)
				}
				if len(page) < 100 {
					break
				}
				after = page[len(page)-1].ID
			}
		} else {
			if len(args) != 1 {
				return fmt.Errorf("an account id or --all is required")
			}
			id, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		var results []*in.SyncResult
		for _, id := range ids {
			res, err := deps.Triage.Sync(ctx, id)
			if err != nil {
				out.ErrorMsg("account %d: %v", id, err)
				continue
			}
			results = append(results, res)
			if !jsonOutput {
				switch {
				case res.Baseline:
					out.SuccessMsg("account %d: baseline cursor %d", id, res.Cursor)
				default:
					out.SuccessMsg("account %d: %d new, cursor %d", id, res.Enqueued, res.Cursor)
				}
			}
		}
		if jsonOutput {
			return printJSON(results)
		}
		return nil
	}),
}

var triageCmd = &cobra.Command{
	Use:   "triage <account-id> <message-id>",
	Short: "Triage one message immediately",
	Args:  cobra.ExactArgs(2),
	RunE: withDeps("worker", func(cmd *cobra.Command, args []string) error {
		id, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		if err := deps.Triage.Process(cmd.Context(), id, args[1]); err != nil {
			return err
		}
		msg, err := deps.Messages.Get(cmd.Context(), id, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(msg)
		}
		out.Processed([]*domain.ProcessedMessage{msg})
		return nil
	}),
}

func init() {
	pollCmd.Flags().BoolVar(&pollAll, "all", false, "poll every active account")
}
