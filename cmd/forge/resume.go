package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <branch> [message]",
		Short: "Append a message to a branch's session and open a chat on it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagRepo, flagDebug)
			if err != nil {
				return err
			}
			branch := args[0]
			if len(args) == 2 {
				if _, err := a.store.BranchHead(branch); err != nil {
					return fmt.Errorf("forge: branch %s does not exist: %w", branch, err)
				}
				r, cleanup, err := a.newRunner(branch)
				if err != nil {
					return err
				}
				defer cleanup()
				if err := r.SendMessage(cmd.Context(), args[1]); err != nil {
					return err
				}
			}
			return runChat(a, branch)
		},
	}
}
