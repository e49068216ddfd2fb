// Package ignore implements the gitignore-style exclusion matcher used by
// the SummaryEngine and repo config. It deliberately stops short of real
// gitignore semantics in one respect: negation patterns ("!foo") are
// recognized but never re-include a path, per the spec's literal boundary
// behavior. A general-purpose gitignore library (e.g. go-gitignore) would
// implement real negation and silently violate that requirement, so this
// matcher is hand-rolled against the small rule set the spec actually
// names: trailing "/" for directories, "*.ext" anywhere, a leading "/"
// for root anchoring, and "**/" for an arbitrary-depth prefix.
package ignore

import (
	"path"
	"strings"
)

// Pattern is one parsed exclusion rule.
type Pattern struct {
	raw        string
	negated    bool
	anchored   bool // leading "/": match only at repo root
	dirOnly    bool // trailing "/": match a directory at any depth (unless anchored)
	anyDepth   bool // leading "**/": arbitrary-depth prefix
	body       string
}

// Matcher holds a compiled set of exclusion patterns plus the built-in
// binary-extension blocklist always applied ahead of the repo-config list.
type Matcher struct {
	patterns []Pattern
}

// builtinBinaryExtensions are always excluded regardless of repo config.
var builtinBinaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".ico", ".webp", ".bmp",
	".pdf", ".zip", ".tar", ".gz", ".xz", ".7z", ".rar",
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".class",
	".woff", ".woff2", ".ttf", ".eot", ".mp3", ".mp4", ".mov", ".wav",
	".bin", ".dat", ".db", ".sqlite",
}

// New compiles a Matcher from repo-config patterns in addition to the
// built-in binary-extension blocklist.
func New(patterns []string) *Matcher {
	m := &Matcher{}
	for _, ext := range builtinBinaryExtensions {
		m.patterns = append(m.patterns, Pattern{raw: "*" + ext, anyDepth: true, body: "*" + ext})
	}
	for _, raw := range patterns {
		m.patterns = append(m.patterns, compile(raw))
	}
	return m
}

func compile(raw string) Pattern {
	p := Pattern{raw: raw}
	s := raw
	if strings.HasPrefix(s, "!") {
		p.negated = true
		s = s[1:]
	}
	if strings.HasPrefix(s, "/") {
		p.anchored = true
		s = s[1:]
	}
	if strings.HasPrefix(s, "**/") {
		p.anyDepth = true
		s = s[len("**/"):]
	}
	if strings.HasSuffix(s, "/") {
		p.dirOnly = true
		s = strings.TrimSuffix(s, "/")
	}
	p.body = s
	return p
}

// Match reports whether filePath (repo-root-relative, slash-separated)
// should be excluded. Negated patterns are matched for bookkeeping but
// never flip a prior match back to "included" — per spec, negation is
// acknowledged, not applied.
func (m *Matcher) Match(filePath string) bool {
	excluded := false
	for _, p := range m.patterns {
		if p.matches(filePath) {
			if p.negated {
				// Acknowledged, intentionally not applied.
				continue
			}
			excluded = true
		}
	}
	return excluded
}

func (p Pattern) matches(filePath string) bool {
	segments := strings.Split(filePath, "/")

	if p.dirOnly {
		if p.anchored {
			return len(segments) > 1 && segments[0] == p.body
		}
		for _, seg := range segments[:len(segments)-1] {
			if matchSegment(p.body, seg) {
				return true
			}
		}
		return false
	}

	if p.anchored {
		return matchSegment(p.body, filePath) || matchSegmentPath(p.body, filePath)
	}

	if p.anyDepth || !strings.Contains(p.body, "/") {
		// Arbitrary-depth prefix, or a bare pattern like "*.ext" that
		// gitignore semantics apply at any depth.
		base := path.Base(filePath)
		if matchSegment(p.body, base) {
			return true
		}
		return matchSegment(p.body, filePath)
	}

	return matchSegmentPath(p.body, filePath)
}

func matchSegment(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

func matchSegmentPath(pattern, full string) bool {
	ok, err := path.Match(pattern, full)
	return err == nil && ok
}
