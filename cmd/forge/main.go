// Command forge is a terminal coding agent whose entire session state — the
// conversation, the files it edits, task lists, tool approvals — lives as
// git commits on ordinary branches. Every turn is one commit; branching and
// merging a session is the same operation as branching and merging code.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagRepo  string
	flagDebug bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forge",
		Short:         "A git-native terminal coding agent",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       getVersion(),
	}
	cmd.PersistentFlags().StringVar(&flagRepo, "repo", ".", "repository root")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging and the request log file")

	cmd.AddCommand(
		newChatCmd(),
		newResumeCmd(),
		newSessionsCmd(),
		newApproveCmd(),
		newSpawnCmd(),
		newMergeCmd(),
	)
	return cmd
}
