package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/forgehq/forge/internal/vfs"
)

type bashInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

const (
	defaultTimeout = 30
	maxTimeout     = 120
	maxOutputChars = 10000
)

// bashTool materializes the overlay's current visible state to a scratch
// directory, runs the command there, and diffs the snapshot against the
// post-run tree to recover files_modified/new_files_created side effects —
// the overlay has no real directory of its own for a subprocess to operate
// on, so a snapshot-then-reconcile round trip stands in for "run in the
// working directory" (the teacher ran bash directly against r.workDir).
func (r *Registry) bashTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[bashInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Command == "" {
		return errResult("command is required"), nil
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	return Result{}, &NeedsConfirmation{
		Tool:    "bash",
		Path:    params.Command,
		Preview: params.Command,
		Execute: func() (Result, error) {
			dir, err := fs.MaterializeToTempdir(tok)
			if err != nil {
				return errResult("bash: materialize snapshot: %s", err), nil
			}
			defer os.RemoveAll(dir)

			before := snapshotTree(dir)

			timeoutDur := time.Duration(timeout) * time.Second
			execCtx, cancel := context.WithTimeout(ctx, timeoutDur)
			defer cancel()

			var cmd *exec.Cmd
			if runtime.GOOS == "windows" {
				cmd = exec.CommandContext(execCtx, "cmd", "/C", params.Command)
			} else {
				cmd = exec.CommandContext(execCtx, "bash", "-c", params.Command)
			}
			cmd.Dir = dir

			var buf bytes.Buffer
			cmd.Stdout = &buf
			cmd.Stderr = &buf

			runErr := cmd.Run()

			output := buf.String()
			truncated := false
			if len(output) > maxOutputChars {
				output = output[:maxOutputChars]
				truncated = true
			}

			var message string
			if runErr != nil {
				if execCtx.Err() == context.DeadlineExceeded {
					message = fmt.Sprintf("Command timed out after %ds.\n%s", timeout, output)
				} else {
					message = fmt.Sprintf("Exit code: %s\n%s", runErr, output)
				}
			} else {
				message = output
				if message == "" {
					message = "(no output)"
				}
			}
			if truncated {
				message += "\n[output truncated]"
			}

			after := snapshotTree(dir)
			modified, created := reconcileChanges(fs, tok, dir, before, after)

			res := okResult(message)
			if len(modified) > 0 {
				res = withSideEffect(res, SideEffectFilesModified)
				res.ModifiedFiles = modified
			}
			if len(created) > 0 {
				res = withSideEffect(res, SideEffectNewFilesCreated)
				res.NewFiles = created
			}
			return res, nil
		},
	}
}

// snapshotTree maps every visible-path in dir to its modification time and
// size, cheap enough to diff without hashing file content twice.
func snapshotTree(dir string) map[string]os.FileInfo {
	out := make(map[string]os.FileInfo)
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		out[filepath.ToSlash(rel)] = info
		return nil
	})
	return out
}

func reconcileChanges(fs *vfs.OverlayVFS, tok vfs.OwnerToken, dir string, before, after map[string]os.FileInfo) (modified, created []string) {
	for rel, info := range after {
		prior, existed := before[rel]
		if existed && prior.ModTime().Equal(info.ModTime()) && prior.Size() == info.Size() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		fs.Write(tok, rel, data)
		if existed {
			modified = append(modified, rel)
		} else {
			created = append(created, rel)
		}
	}
	return modified, created
}
