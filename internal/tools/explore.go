package tools

import (
	"context"
	"encoding/json"

	"github.com/forgehq/forge/internal/vfs"
)

// ExploreFunc runs a read-only sub-agent over the repository and returns its
// findings. Injected by the runner to break the tools -> runner import
// cycle, the same pattern the teacher uses for its explore tool.
type ExploreFunc func(ctx context.Context, task string) (string, error)

// SetExploreFunc injects the scout sub-agent callback.
func (r *Registry) SetExploreFunc(fn ExploreFunc) {
	r.exploreFunc = fn
}

type scoutInput struct {
	Task string `json:"task"`
}

func (r *Registry) scoutTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[scoutInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Task == "" {
		return errResult("task is required"), nil
	}
	if r.exploreFunc == nil {
		return errResult("scout sub-agent not configured"), nil
	}
	summary, err := r.exploreFunc(ctx, params.Task)
	if err != nil {
		return errResult("scout: %s", err), nil
	}
	return okResult(summary), nil
}

// NewReadOnlyRegistry creates a registry carrying only the read-only
// built-ins (glob, grep, ls, read), for the scout sub-agent loop so it can
// never mutate the overlay.
func NewReadOnlyRegistry() *Registry {
	r := &Registry{}
	r.registerReadOnlyTools()
	return r
}
