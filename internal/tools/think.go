package tools

import (
	"context"
	"encoding/json"

	"github.com/forgehq/forge/internal/vfs"
)

type thinkInput struct {
	Scratchpad string `json:"scratchpad"`
	Conclusion string `json:"conclusion"`
}

// thinkTool never touches the overlay; its only effect is on the prompt
// stream, where the runner strips the scratchpad argument on compaction
// and at to_messages time (blocks.CompactThinkCall / blocks.stripScratchpad).
func (r *Registry) thinkTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[thinkInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Conclusion == "" {
		return errResult("conclusion is required"), nil
	}
	return okResult(params.Conclusion), nil
}
