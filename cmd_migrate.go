package main

import (
	"github.com/spf13/cobra"

	"github.com/denwilliams/gmail-triage-assistant/infra/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: withDeps("cli", func(cmd *cobra.Command, args []string) error {
		applied, err := database.Migrate(cmd.Context(), deps.SQLDB)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"applied": applied})
		}
		if len(applied) == 0 {
			out.SuccessMsg("schema is up to date")
			return nil
		}
		for _, v := range applied {
			out.SuccessMsg("applied %s", v)
		}
		return nil
	}),
}
