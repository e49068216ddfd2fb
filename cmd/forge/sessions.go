package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/session"
	"github.com/forgehq/forge/internal/vfs"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List branches and a preview of each one's session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagRepo, flagDebug)
			if err != nil {
				return err
			}
			branches, err := a.store.Branches()
			if err != nil {
				return err
			}
			if len(branches) == 0 {
				fmt.Println("No branches yet.")
				return nil
			}
			for _, branch := range branches {
				printSessionPreview(a, branch)
			}
			return nil
		},
	}
}

func printSessionPreview(a *app, branch string) {
	head, err := a.store.BranchHead(branch)
	if err != nil {
		fmt.Printf("%s\t(unreadable: %s)\n", branch, err)
		return
	}
	base, err := vfs.NewBaseVFS(a.store, head.Hash)
	if err != nil {
		fmt.Printf("%s\t(unreadable: %s)\n", branch, err)
		return
	}
	overlay := vfs.NewOverlayVFS(base, a.store, branch)
	rec, err := session.Load(overlay)
	if err != nil {
		fmt.Printf("%s\t(unreadable session: %s)\n", branch, err)
		return
	}

	preview := "(no messages)"
	if n := len(rec.Messages); n > 0 {
		preview = truncate(rec.Messages[n-1].Content, 80)
	}
	pending, inProgress, completed := 0, 0, 0
	for _, t := range rec.State.Tasks {
		switch t.Status {
		case "pending":
			pending++
		case "in_progress":
			inProgress++
		case "completed":
			completed++
		}
	}
	fmt.Printf("%s\t%d msg(s)\ttasks p%d/ip%d/c%d\t%s\n", branch, len(rec.Messages), pending, inProgress, completed, preview)
}
