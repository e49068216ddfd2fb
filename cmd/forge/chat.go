package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/blocks"
	"github.com/forgehq/forge/internal/tools"
)

func newChatCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive REPL against a branch's session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagRepo, flagDebug)
			if err != nil {
				return err
			}
			return runChat(a, branch)
		},
	}
	cmd.Flags().StringVar(&branch, "branch", defaultBranch, "branch to converse on")
	return cmd
}

func runChat(a *app, branch string) error {
	r, cleanup, err := a.newRunner(branch)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("forge %s — branch %s — %s\n", getVersion(), branch, a.repoRoot)
	fmt.Println("Type your message and press Enter. Ctrl+C cancels a running turn; Ctrl+C twice exits.")

	rootCtx := context.Background()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var mu sync.Mutex
	var runCancel context.CancelFunc
	var lastInterrupt time.Time

	go func() {
		for range sigCh {
			mu.Lock()
			cancel := runCancel
			now := time.Now()
			doubleTap := now.Sub(lastInterrupt) < 2*time.Second
			lastInterrupt = now
			mu.Unlock()

			switch {
			case cancel != nil:
				r.Cancel()
			case doubleTap:
				fmt.Println("\nExiting.")
				os.Exit(0)
			default:
				fmt.Println("\n(press Ctrl+C again within 2s to exit)")
			}
		}
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break // EOF
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}

		before := len(r.Manager().Blocks())

		runCtx, cancel := context.WithCancel(rootCtx)
		mu.Lock()
		runCancel = cancel
		mu.Unlock()

		err = r.SendMessage(runCtx, input)

		mu.Lock()
		runCancel = nil
		mu.Unlock()
		cancel()

		if err != nil {
			if runCtx.Err() != nil {
				fmt.Println("(cancelled)")
			} else {
				fmt.Fprintf(os.Stderr, "error: %s\n", err)
			}
			continue
		}

		renderNewBlocks(r.Manager().Blocks(), before)
	}
	return nil
}

// renderNewBlocks prints a plain-text rendering of the blocks appended
// since the last turn: assistant text and tool activity, skipping
// tombstoned blocks and the bookkeeping kinds (system, summaries, file
// content) that have no useful terminal rendering.
func renderNewBlocks(all []blocks.Block, from int) {
	for _, b := range all[from:] {
		if b.Deleted {
			continue
		}
		switch b.Kind {
		case blocks.KindAssistantMessage:
			if strings.TrimSpace(b.Content) != "" {
				fmt.Println(b.Content)
			}
		case blocks.KindToolCall:
			for _, tc := range b.ToolCalls {
				fmt.Printf("  -> %s(%s)\n", tc.Name, tc.ArgumentsJSON)
			}
			if strings.TrimSpace(b.Content) != "" {
				fmt.Println(b.Content)
			}
		case blocks.KindToolResult:
			fmt.Printf("  <- %s\n", truncate(b.Content, 400))
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// terminalConfirm is the Runner's ConfirmFunc for interactive sessions:
// show the pending change and ask y/n on stdin.
func terminalConfirm(ctx context.Context, confirm *tools.NeedsConfirmation) bool {
	fmt.Printf("\n%s wants to write %s:\n", confirm.Tool, confirm.Path)
	if confirm.Preview != "" {
		fmt.Println("--- current ---")
		fmt.Println(truncate(confirm.Preview, 2000))
	}
	fmt.Println("--- proposed ---")
	fmt.Println(truncate(confirm.NewContent, 2000))
	fmt.Print("Apply? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
