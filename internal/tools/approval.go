package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path"
	"sort"
	"strings"

	"github.com/forgehq/forge/internal/vfs"
)

const (
	approvedToolsPath = ".forge/approved_tools.json"
	userToolsDir      = "tools"
)

// ErrToolNotApproved is returned when a user-authored tool's current source
// hash has no matching entry in the branch's approved-tools file.
var ErrToolNotApproved = fmt.Errorf("tool not approved")

// UserTool is a tool discovered from a script file under tools/ in the
// overlay. Its frontmatter (a fenced JSON block at the top of the file)
// declares the function-calling schema; the remainder of the file is a
// shell script body, executed the same sandboxed-snapshot way bash is.
type UserTool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Mode        InvocationMode
	Path        string // e.g. "tools/deploy.sh"
	Source      []byte // full file content, hashed for approval
	Body        string // script body, frontmatter stripped
}

// ContentHash returns the tool's identity per spec: sha256(utf8(source)),
// lowercase hex.
func (t UserTool) ContentHash() string {
	sum := sha256.Sum256(t.Source)
	return hex.EncodeToString(sum[:])
}

type userToolFrontmatter struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Mode        string          `json:"mode"`
}

// DiscoverUserTools lists tools/*.sh under the overlay and parses each into
// a UserTool. Files that fail to parse are skipped, not fatal — a malformed
// tool file shouldn't take down the whole registry.
func DiscoverUserTools(fs *vfs.OverlayVFS, tok vfs.OwnerToken) ([]UserTool, error) {
	all, err := fs.List(tok)
	if err != nil {
		return nil, fmt.Errorf("discover user tools: %w", err)
	}
	var out []UserTool
	for _, p := range all {
		if !strings.HasPrefix(p, userToolsDir+"/") || path.Ext(p) != ".sh" {
			continue
		}
		data, err := fs.Read(p)
		if err != nil {
			continue
		}
		tool, err := parseUserTool(p, data)
		if err != nil {
			continue
		}
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// parseUserTool splits a user tool file into a leading "---\n<json>\n---\n"
// frontmatter block and a script body.
func parseUserTool(filePath string, data []byte) (UserTool, error) {
	content := string(data)
	const fence = "---\n"
	if !strings.HasPrefix(content, fence) {
		return UserTool{}, fmt.Errorf("%s: missing frontmatter", filePath)
	}
	rest := content[len(fence):]
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return UserTool{}, fmt.Errorf("%s: unterminated frontmatter", filePath)
	}
	meta := rest[:end]
	body := rest[end+len(fence)+1:]

	var fm userToolFrontmatter
	if err := json.Unmarshal([]byte(meta), &fm); err != nil {
		return UserTool{}, fmt.Errorf("%s: invalid frontmatter: %w", filePath, err)
	}
	if fm.Name == "" {
		return UserTool{}, fmt.Errorf("%s: missing name", filePath)
	}
	mode := ModeAPI
	if fm.Mode == string(ModeInline) {
		mode = ModeInline
	}
	return UserTool{
		Name:        fm.Name,
		Description: fm.Description,
		Parameters:  fm.Parameters,
		Mode:        mode,
		Path:        filePath,
		Source:      data,
		Body:        body,
	}, nil
}

// approvedToolsFile is the shape of .forge/approved_tools.json: basename
// (no extension) -> lowercase hex sha-256 of the approved source.
type approvedToolsFile map[string]string

// ApprovalGate tracks which user-tool content hashes are approved on a
// branch and blocks execution of anything else.
type ApprovalGate struct {
	fs  *vfs.OverlayVFS
	tok vfs.OwnerToken
}

// NewApprovalGate constructs a gate bound to the given overlay and the
// caller's ownership token.
func NewApprovalGate(fs *vfs.OverlayVFS, tok vfs.OwnerToken) *ApprovalGate {
	return &ApprovalGate{fs: fs, tok: tok}
}

func (g *ApprovalGate) readApproved() approvedToolsFile {
	data, err := g.fs.Read(approvedToolsPath)
	if err != nil {
		return approvedToolsFile{}
	}
	var m approvedToolsFile
	if err := json.Unmarshal(data, &m); err != nil {
		return approvedToolsFile{}
	}
	return m
}

func toolBasename(p string) string {
	name := path.Base(p)
	return strings.TrimSuffix(name, path.Ext(name))
}

// IsApproved reports whether tool's current source hash matches the
// approved entry for its basename.
func (g *ApprovalGate) IsApproved(tool UserTool) bool {
	approved := g.readApproved()
	want, ok := approved[toolBasename(tool.Path)]
	return ok && want == tool.ContentHash()
}

// PendingApprovals returns every discovered user tool whose current hash is
// not yet approved — what the runner must prompt the user about before the
// turn's end-of-turn commit classification.
func (g *ApprovalGate) PendingApprovals(tools []UserTool) []UserTool {
	var pending []UserTool
	for _, t := range tools {
		if !g.IsApproved(t) {
			pending = append(pending, t)
		}
	}
	return pending
}

// Approve records tool's current hash as approved by writing the updated
// approved_tools.json into the overlay. Per spec §4.4 the caller commits
// this as a FollowUp so the approval travels with the tool edit as one
// logical unit; Approve itself only stages the write.
func (g *ApprovalGate) Approve(tool UserTool) error {
	approved := g.readApproved()
	if approved == nil {
		approved = approvedToolsFile{}
	}
	approved[toolBasename(tool.Path)] = tool.ContentHash()
	data, err := json.MarshalIndent(approved, "", "  ")
	if err != nil {
		return fmt.Errorf("approve %s: %w", tool.Path, err)
	}
	g.fs.Write(g.tok, approvedToolsPath, data)
	return nil
}

// Invoke runs an approved user tool's script body against a materialized
// snapshot, the same sandboxed-snapshot-then-reconcile flow bashTool uses.
// Invoking an unapproved tool is always rejected, never silently allowed.
func (g *ApprovalGate) Invoke(ctx context.Context, tool UserTool, argsJSON json.RawMessage) (Result, error) {
	if !g.IsApproved(tool) {
		return errResult("%s: %s", tool.Name, ErrToolNotApproved), nil
	}

	dir, err := g.fs.MaterializeToTempdir(g.tok)
	if err != nil {
		return errResult("invoke %s: materialize snapshot: %s", tool.Name, err), nil
	}
	defer os.RemoveAll(dir)

	before := snapshotTree(dir)

	cmd := exec.CommandContext(ctx, "bash", "-c", tool.Body)
	cmd.Dir = dir
	cmd.Env = append(cmd.Env, "FORGE_TOOL_ARGS="+string(argsJSON))
	out, runErr := cmd.CombinedOutput()

	after := snapshotTree(dir)
	modified, created := reconcileChanges(g.fs, g.tok, dir, before, after)

	message := string(out)
	if runErr != nil {
		return errResult("%s: %s\n%s", tool.Name, runErr, message), nil
	}
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
}
