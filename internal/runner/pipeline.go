package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgehq/forge/internal/blocks"
	"github.com/forgehq/forge/internal/tools"
)

// pipelineOutcome carries what the turn loop needs after a sequential
// tool-execution pipeline returns: which calls actually ran (for
// filter_tool_calls), and the accumulated side effects to reconcile.
type pipelineOutcome struct {
	executed          map[string]bool
	modifiedFiles     []string
	newFiles          []string
	midTurnCommit     bool
	truncatedAtIndex  int // -1 if the pipeline ran to completion
}

// runToolPipeline executes calls sequentially per spec §4.7.2: parse, run
// under thread ownership, record the ToolResult immediately, and stop at
// the first parse failure or success=false result. Remaining calls are
// never attempted — this is a deliberate divergence from the teacher's
// agent loop, which keeps executing later tool calls after a JSON-parse
// failure in the sequential branch; fail-fast here is a spec requirement.
func (r *Runner) runToolPipeline(ctx context.Context, calls []blocks.ToolCallEntry) pipelineOutcome {
	out := pipelineOutcome{executed: make(map[string]bool), truncatedAtIndex: -1}

	userTools, _ := tools.DiscoverUserTools(r.overlay, r.tok)
	gate := tools.NewApprovalGate(r.overlay, r.tok)
	byName := make(map[string]tools.UserTool, len(userTools))
	for _, t := range userTools {
		byName[t.Name] = t
	}

	for i, call := range calls {
		if r.cancelled() {
			break
		}

		result, err := r.invokeOne(ctx, call, gate, byName)
		out.executed[call.ID] = true

		if err != nil {
			result = errResultFromError(err)
		}

		if result.SideEffects[tools.SideEffectMidTurnCommit] {
			out.midTurnCommit = true
		}
		if result.SideEffects[tools.SideEffectFilesModified] {
			out.modifiedFiles = append(out.modifiedFiles, result.ModifiedFiles...)
		}
		if result.SideEffects[tools.SideEffectNewFilesCreated] {
			out.newFiles = append(out.newFiles, result.NewFiles...)
		}

		ephemeral := result.SideEffects[tools.SideEffectEphemeralResult]
		content := result.Message
		if !result.Success {
			content = fmt.Sprintf("Error: %s", result.Error)
		}
		if _, appendErr := r.manager.AppendToolResult(call.ID, content, ephemeral); appendErr != nil {
			r.log.Error().Err(appendErr).Str("tool_call_id", call.ID).Msg("append tool result")
		}

		if !result.Success {
			out.truncatedAtIndex = i
			break
		}
	}

	return out
}

// invokeOne dispatches a single tool call to a user tool (if one by that
// name exists) or a built-in, handling the NeedsConfirmation callback path
// either way.
func (r *Runner) invokeOne(ctx context.Context, call blocks.ToolCallEntry, gate *tools.ApprovalGate, userTools map[string]tools.UserTool) (tools.Result, error) {
	r.overlay.ClaimThread(r.tok)
	defer r.overlay.ReleaseThread(r.tok)

	if ut, ok := userTools[call.Name]; ok {
		return gate.Invoke(ctx, ut, json.RawMessage(call.ArgumentsJSON))
	}

	result, err := r.registry.Execute(ctx, r.overlay, r.tok, call.Name, json.RawMessage(call.ArgumentsJSON))
	if err == nil {
		return result, nil
	}

	confirm, ok := err.(*tools.NeedsConfirmation)
	if !ok {
		return tools.Result{}, err
	}

	if r.confirm == nil || !r.confirm(ctx, confirm) {
		return tools.Result{Success: false, Error: fmt.Sprintf("%s: requires user approval (none available)", confirm.Tool)}, nil
	}
	return confirm.Execute()
}

func errResultFromError(err error) tools.Result {
	return tools.Result{Success: false, Error: err.Error()}
}
