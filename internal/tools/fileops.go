package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forgehq/forge/internal/vfs"
)

func (r *Registry) registerReadOnlyTools() {
	r.register("glob",
		`Fast file pattern matching tool. Supports glob patterns like "**/*.go" or "src/**/*.ts". Returns matching file paths relative to the repository root, sorted alphabetically. Use this tool when you need to find files by name patterns. Prefer this over bash find or ls commands.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "description": "Glob pattern to match files (e.g., '**/*.go', 'src/**/*.ts')"}
			},
			"required": ["pattern"]
		}`),
		ModeAPI, true,
		r.globTool,
	)

	r.register("grep",
		`Search file contents using RE2 regex. Returns matching lines with file paths and line numbers. ALWAYS use this tool for content search — never use bash grep or rg. Supports RE2 regex syntax (e.g., "log.*Error", "func\\s+\\w+"). Note: RE2 does not support lookaheads or lookbehinds. Filter files with the include parameter using glob patterns (e.g., "*.go", "*.{ts,tsx}").`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "description": "RE2 regular expression to search for"},
				"path": {"type": "string", "description": "Directory to search in (default: repository root)"},
				"include": {"type": "string", "description": "Glob pattern to filter filenames (e.g., '*.go', '*.{ts,tsx}')"}
			},
			"required": ["pattern"]
		}`),
		ModeAPI, true,
		r.grepTool,
	)

	r.register("ls", "List directory contents. Can only list directories, not files. Use glob to find files by pattern.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Directory path to list (default: repository root)"}
			}
		}`),
		ModeAPI, true,
		r.lsTool,
	)

	r.register("read",
		`Read file contents with line numbers (cat -n format, 1-indexed). Use start_line/end_line for large files to read specific sections. Always use this tool instead of bash cat, head, or tail.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path to read"},
				"start_line": {"type": "integer", "description": "First line to read (1-indexed, default: 1)"},
				"end_line": {"type": "integer", "description": "Last line to read (1-indexed, inclusive)"}
			},
			"required": ["path"]
		}`),
		ModeAPI, true,
		r.readTool,
	)
}

type readInput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (r *Registry) readTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[readInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	p, err := cleanVirtualPath(params.Path)
	if err != nil {
		return errResult("%s", err), nil
	}
	data, err := fs.Read(p)
	if err != nil {
		return errResult("read %s: %s", p, err), nil
	}
	content := string(data)

	startLine := params.StartLine
	if startLine <= 0 {
		startLine = 1
	}
	endLine := params.EndLine
	const maxLines = 500

	lines := strings.Split(content, "\n")
	if content == "" {
		return okResult("File is empty."), nil
	}
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	totalLines := len(lines)

	var sb strings.Builder
	linesShown := 0
	for i := startLine - 1; i < totalLines; i++ {
		lineNum := i + 1
		if endLine > 0 && lineNum > endLine {
			break
		}
		if endLine <= 0 && linesShown >= maxLines {
			fmt.Fprintf(&sb, "\n... (file has %d total lines, showing lines %d-%d. Use start_line/end_line to read more.)",
				totalLines, startLine, startLine+maxLines-1)
			break
		}
		fmt.Fprintf(&sb, "%4d │ %s\n", lineNum, lines[i])
		linesShown++
	}

	return okResult(sb.String()), nil
}

type lsInput struct {
	Path string `json:"path"`
}

func (r *Registry) lsTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[lsInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	dir := ""
	if params.Path != "" {
		dir, err = cleanVirtualPath(params.Path)
		if err != nil {
			return errResult("%s", err), nil
		}
	}

	all, err := fs.List(tok)
	if err != nil {
		return errResult("ls: %s", err), nil
	}

	seen := make(map[string]bool)
	var sb strings.Builder
	for _, p := range all {
		rel := p
		if dir != "" {
			if !strings.HasPrefix(p, dir+"/") {
				continue
			}
			rel = strings.TrimPrefix(p, dir+"/")
		}
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) == 2 {
			name := parts[0] + "/"
			if !seen[name] {
				seen[name] = true
				fmt.Fprintf(&sb, "  %s\n", name)
			}
			continue
		}
		if !seen[rel] {
			seen[rel] = true
			fmt.Fprintf(&sb, "  %s\n", rel)
		}
	}
	if sb.Len() == 0 {
		return okResult("Directory is empty."), nil
	}
	return okResult(sb.String()), nil
}

type globInput struct {
	Pattern string `json:"pattern"`
}

func (r *Registry) globTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[globInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Pattern == "" {
		return errResult("pattern is required"), nil
	}

	all, err := fs.List(tok)
	if err != nil {
		return errResult("glob: %s", err), nil
	}

	const maxResults = 100
	var matches []string
	for _, p := range all {
		matched, err := matchGlob(params.Pattern, p)
		if err != nil {
			return errResult("invalid glob pattern: %s", err), nil
		}
		if matched {
			matches = append(matches, p)
		}
	}

	if len(matches) == 0 {
		return okResult("No files matched the pattern."), nil
	}

	var sb strings.Builder
	limit := len(matches)
	truncated := false
	if limit > maxResults {
		limit = maxResults
		truncated = true
	}
	for _, m := range matches[:limit] {
		sb.WriteString(m)
		sb.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&sb, "\n... and %d more matches", len(matches)-maxResults)
	}
	return okResult(sb.String()), nil
}

// matchGlob performs glob matching supporting ** for recursive directory matching.
func matchGlob(pattern, name string) (bool, error) {
	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, name)
	}
	return filepath.Match(pattern, name)
}

func matchDoublestar(pattern, name string) (bool, error) {
	parts := strings.Split(pattern, "**")
	if len(parts) != 2 {
		return filepath.Match(pattern, name)
	}
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix == "" && suffix == "" {
		return true, nil
	}
	if prefix == "" {
		segments := strings.Split(name, "/")
		for i := range segments {
			subpath := strings.Join(segments[i:], "/")
			if matched, _ := filepath.Match(suffix, subpath); matched {
				return true, nil
			}
			if matched, _ := filepath.Match(suffix, segments[len(segments)-1]); matched {
				return true, nil
			}
		}
		return false, nil
	}
	if suffix == "" {
		return strings.HasPrefix(name, prefix+"/") || name == prefix, nil
	}
	if !strings.HasPrefix(name, prefix+"/") && name != prefix {
		return false, nil
	}
	rest := strings.TrimPrefix(name, prefix+"/")
	return matchDoublestar("**/"+suffix, rest)
}

type grepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Include string `json:"include"`
}

func (r *Registry) grepTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[grepInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Pattern == "" {
		return errResult("pattern is required"), nil
	}
	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return errResult("invalid regex (RE2 syntax): %s", err), nil
	}

	searchDir := ""
	if params.Path != "" {
		searchDir, err = cleanVirtualPath(params.Path)
		if err != nil {
			return errResult("%s", err), nil
		}
	}

	all, err := fs.List(tok)
	if err != nil {
		return errResult("grep: %s", err), nil
	}

	const maxResults = 50
	var results []string
	totalMatches := 0

	for _, p := range all {
		if ctx.Err() != nil {
			return errResult("grep: %s", ctx.Err()), nil
		}
		if searchDir != "" && !strings.HasPrefix(p, searchDir+"/") {
			continue
		}
		if params.Include != "" {
			if matched, _ := filepath.Match(params.Include, path.Base(p)); !matched {
				continue
			}
		}
		data, err := fs.Read(p)
		if err != nil {
			continue
		}
		if looksBinary(data) {
			continue
		}
		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if re.MatchString(line) {
				totalMatches++
				if len(results) < maxResults {
					results = append(results, fmt.Sprintf("%s:%d: %s", p, lineNum, truncateLine(line, 200)))
				}
			}
		}
	}

	if len(results) == 0 {
		return okResult("No matches found."), nil
	}
	var sb strings.Builder
	for _, line := range results {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if totalMatches > maxResults {
		fmt.Fprintf(&sb, "\n... and %d more matches", totalMatches-maxResults)
	}
	return okResult(sb.String()), nil
}

func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func looksBinary(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	for _, b := range data[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *Registry) writeTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[writeInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Path == "" {
		return errResult("path is required"), nil
	}
	p, err := cleanVirtualPath(params.Path)
	if err != nil {
		return errResult("%s", err), nil
	}

	oldContent := ""
	isNewFile := true
	if data, err := fs.Read(p); err == nil {
		oldContent = string(data)
		isNewFile = false
	}

	return Result{}, &NeedsConfirmation{
		Tool:       "write",
		Path:       p,
		Preview:    unifiedPreview(p, oldContent, params.Content),
		NewContent: params.Content,
		Execute: func() (Result, error) {
			fs.Write(tok, p, []byte(params.Content))
			res := okResult(fmt.Sprintf("Successfully wrote %s (%d bytes)", p, len(params.Content)))
			if isNewFile {
				res = withSideEffect(res, SideEffectNewFilesCreated)
				res.NewFiles = []string{p}
			} else {
				res = withSideEffect(res, SideEffectFilesModified)
				res.ModifiedFiles = []string{p}
			}
			return res, nil
		},
	}
}

type undoEditInput struct {
	Path string `json:"path"`
}

func (r *Registry) undoEditTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[undoEditInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Path == "" {
		return errResult("path is required"), nil
	}
	p, err := cleanVirtualPath(params.Path)
	if err != nil {
		return errResult("%s", err), nil
	}

	baseContent, err := fs.Base().Read(p)
	if err != nil {
		return errResult("no base version of %s to revert to: %s", p, err), nil
	}
	current, _ := fs.Read(p)

	return Result{}, &NeedsConfirmation{
		Tool:       "undo_edit",
		Path:       p,
		Preview:    unifiedPreview(p, string(current), string(baseContent)),
		NewContent: string(baseContent),
		Execute: func() (Result, error) {
			fs.Write(tok, p, baseContent)
			res := okResult(fmt.Sprintf("Reverted %s to its base version", p))
			res = withSideEffect(res, SideEffectFilesModified)
			res.ModifiedFiles = []string{p}
			return res, nil
		},
	}
}

type editInput struct {
	Path   string `json:"path"`
	OldStr string `json:"old_str"`
	NewStr string `json:"new_str"`
}

func (r *Registry) editTool(ctx context.Context, fs *vfs.OverlayVFS, tok vfs.OwnerToken, input json.RawMessage) (Result, error) {
	params, err := parseInput[editInput](input)
	if err != nil {
		return errResult("%s", err), nil
	}
	if params.Path == "" {
		return errResult("path is required"), nil
	}
	if params.OldStr == "" {
		return errResult("old_str is required"), nil
	}
	p, err := cleanVirtualPath(params.Path)
	if err != nil {
		return errResult("%s", err), nil
	}

	data, err := fs.Read(p)
	if err != nil {
		return errResult("read %s: %s", p, err), nil
	}
	content := string(data)

	count := strings.Count(content, params.OldStr)
	if count == 0 {
		return errResult("no match found for old_str in %s. Check for exact whitespace and indentation", p), nil
	}
	if count > 1 {
		lines := strings.Split(content, "\n")
		firstLine := strings.SplitN(params.OldStr, "\n", 2)[0]
		var locations []string
		for i, line := range lines {
			if strings.Contains(line, firstLine) {
				locations = append(locations, fmt.Sprintf("line %d", i+1))
			}
		}
		return errResult("old_str matches %d times in %s (at %s). Include more surrounding context to make the match unique",
			count, p, strings.Join(locations, ", ")), nil
	}

	newContent := strings.Replace(content, params.OldStr, params.NewStr, 1)

	return Result{}, &NeedsConfirmation{
		Tool:       "edit",
		Path:       p,
		Preview:    unifiedPreview(p, content, newContent),
		NewContent: newContent,
		Execute: func() (Result, error) {
			fs.Write(tok, p, []byte(newContent))
			res := okResult(fmt.Sprintf("Successfully edited %s", p))
			res = withSideEffect(res, SideEffectFilesModified)
			res.ModifiedFiles = []string{p}
			return res, nil
		},
	}
}
