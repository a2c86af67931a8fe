package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dyad",
		Short: "Paired questionnaire server",
		Long: `dyad serves paired questionnaire sessions: two participants answer the
same question bank with their own links, and the session becomes ready once
both have completed.

Configuration is read from DYAD_* environment variables and an optional .env file.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedQuestionsCmd(),
		newAdminTokenCmd(),
		newHashPasswordCmd(),
		newBackfillCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
