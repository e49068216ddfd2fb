package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSpawnCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "spawn [branch]",
		Short: "Create a child branch off another branch's head",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagRepo, flagDebug)
			if err != nil {
				return err
			}
			branch := ""
			if len(args) == 1 {
				branch = args[0]
			} else {
				branch = "explore-" + uuid.New().String()[:8]
			}

			r, cleanup, err := a.newRunner(from)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := r.Spawn(branch); err != nil {
				return err
			}
			fmt.Printf("Spawned %s off %s.\n", branch, from)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", defaultBranch, "parent branch to spawn from")
	return cmd
}
