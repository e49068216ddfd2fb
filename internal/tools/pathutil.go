package tools

import (
	"fmt"
	"path"
	"strings"
)

// cleanVirtualPath normalizes a tool-supplied path into the overlay's
// slash-separated, root-relative path space and rejects any attempt to
// escape it via "..". Unlike the teacher's ValidatePath, there is no real
// filesystem root to resolve against — the overlay is the sandbox.
func cleanVirtualPath(requested string) (string, error) {
	if requested == "" {
		return "", fmt.Errorf("path is required")
	}
	p := path.Clean(strings.TrimLeft(requested, "/"))
	if p == "." || p == "" {
		return "", fmt.Errorf("path %q resolves to the repository root", requested)
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q escapes the repository", requested)
	}
	return p, nil
}
