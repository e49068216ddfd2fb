package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/runner"
)

func newMergeCmd() *cobra.Command {
	var into string
	cmd := &cobra.Command{
		Use:   "merge <branch>",
		Short: "Three-way merge a branch into another branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagRepo, flagDebug)
			if err != nil {
				return err
			}
			r, cleanup, err := a.newRunner(into)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := r.MergeChild(args[0]); err != nil {
				var conflict *runner.ErrMergeConflict
				if errors.As(err, &conflict) {
					return fmt.Errorf("forge: %w", conflict)
				}
				return err
			}
			fmt.Printf("Merged %s into %s.\n", args[0], into)
			return nil
		},
	}
	cmd.Flags().StringVar(&into, "into", defaultBranch, "branch to merge into")
	return cmd
}
