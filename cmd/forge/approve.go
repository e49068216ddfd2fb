package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/gitstore"
	"github.com/forgehq/forge/internal/tools"
	"github.com/forgehq/forge/internal/vfs"
)

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <branch> <tool>",
		Short: "Approve a user-authored tool's current source on a branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagRepo, flagDebug)
			if err != nil {
				return err
			}
			return runApprove(a, args[0], args[1])
		},
	}
}

func runApprove(a *app, branch, toolName string) error {
	overlay, tok, err := a.openBranch(branch)
	if err != nil {
		return err
	}
	overlay.ClaimThread(tok)
	defer overlay.ReleaseThread(tok)

	discovered, err := tools.DiscoverUserTools(overlay, tok)
	if err != nil {
		return err
	}
	var target *tools.UserTool
	for i, t := range discovered {
		if t.Name == toolName {
			target = &discovered[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("forge: no user tool named %q on branch %s", toolName, branch)
	}

	gate := tools.NewApprovalGate(overlay, tok)
	if gate.IsApproved(*target) {
		fmt.Printf("%s is already approved on %s.\n", toolName, branch)
		return nil
	}
	if err := gate.Approve(*target); err != nil {
		return err
	}

	now := time.Now()
	author := gitstore.Signature{Name: "forge", Email: "forge@localhost", When: now}
	_, err = overlay.Commit(tok, vfs.CommitOptions{
		Type:      gitstore.FollowUp,
		Message:   fmt.Sprintf("approve %s", toolName),
		Author:    author,
		Committer: author,
	})
	if err != nil {
		return fmt.Errorf("forge: commit approval: %w", err)
	}
	fmt.Printf("Approved %s on %s.\n", toolName, branch)
	return nil
}
