package runner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/forgehq/forge/internal/blocks"
)

// inlineCall is one tool invocation recovered from assistant text written
// in the tagged-XML surface (spec §6), normalized to the same shape an
// API-mode tool call arrives in so the execution pipeline never has to
// special-case where a call came from.
type inlineCall struct {
	Name          string
	ArgumentsJSON string
	raw           string // the exact substring matched, for stripping from the message
}

var (
	// <tool_name attr="value" other="value2"/>
	selfClosingTagRe = regexp.MustCompile(`<(\w+)((?:\s+\w+="[^"]*")*)\s*/>`)
	// opening tag of <tool_name attr="value">body</tool_name>; the body runs
	// to the first matching </tool_name>. edit is handled separately.
	bodyTagRe = regexp.MustCompile(`<(\w+)((?:\s+\w+="[^"]*")*)\s*>`)
	// <edit filepath="..."><search>...</search><replace>...</replace></edit>
	editTagRe = regexp.MustCompile(`(?s)<edit\s+filepath="([^"]*)"\s*>\s*<search>(.*?)</search>\s*<replace>(.*?)</replace>\s*</edit>`)
	attrRe    = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// parseInlineCalls scans text for inline-syntax tool invocations and
// returns them in the order they appear. edit's special two-child-element
// form is matched first so the generic body-tag pattern never mistakes its
// <search>/<replace> children for tags of their own.
func parseInlineCalls(text string) []inlineCall {
	type match = struct {
		start, end int
		call       inlineCall
	}
	var matches []match

	for _, m := range editTagRe.FindAllStringSubmatchIndex(text, -1) {
		filepath := text[m[2]:m[3]]
		search := text[m[4]:m[5]]
		replace := text[m[6]:m[7]]
		args, _ := json.Marshal(map[string]string{
			"path":    filepath,
			"old_str": search,
			"new_str": replace,
		})
		matches = append(matches, match{
			start: m[0], end: m[1],
			call: inlineCall{Name: "edit", ArgumentsJSON: string(args), raw: text[m[0]:m[1]]},
		})
	}

	masked := maskRanges(text, matches)

	bodyEnd := 0
	for _, m := range bodyTagRe.FindAllStringSubmatchIndex(masked, -1) {
		if m[0] < bodyEnd {
			continue // inside the body of an earlier tag
		}
		name := text[m[2]:m[3]]
		closeTag := "</" + name + ">"
		closeAt := strings.Index(masked[m[1]:], closeTag)
		if closeAt < 0 {
			continue
		}
		end := m[1] + closeAt + len(closeTag)
		bodyEnd = end
		attrs := parseAttrs(text[m[4]:m[5]])
		body := text[m[1] : m[1]+closeAt]
		args := attrsAndBodyToJSON(attrs, body)
		matches = append(matches, match{
			start: m[0], end: end,
			call: inlineCall{Name: name, ArgumentsJSON: args, raw: text[m[0]:end]},
		})
	}

	masked = maskRanges(text, matches)

	for _, m := range selfClosingTagRe.FindAllStringSubmatchIndex(masked, -1) {
		name := text[m[2]:m[3]]
		attrs := parseAttrs(text[m[4]:m[5]])
		args := attrsToJSON(attrs)
		matches = append(matches, match{
			start: m[0], end: m[1],
			call: inlineCall{Name: name, ArgumentsJSON: args, raw: text[m[0]:m[1]]},
		})
	}

	sortMatchesByStart(matches)

	calls := make([]inlineCall, len(matches))
	for i, m := range matches {
		calls[i] = m.call
	}
	return calls
}

func sortMatchesByStart(matches []struct {
	start, end int
	call       inlineCall
}) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j-1].start > matches[j].start; j-- {
			matches[j-1], matches[j] = matches[j], matches[j-1]
		}
	}
}

// maskRanges replaces already-claimed spans with spaces (preserving byte
// offsets) so a later, broader pattern never re-matches inside them.
func maskRanges(text string, matches []struct {
	start, end int
	call       inlineCall
}) string {
	out := []byte(text)
	for _, m := range matches {
		for i := m.start; i < m.end && i < len(out); i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}
	return string(out)
}

func parseAttrs(raw string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(raw, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}

func attrsToJSON(attrs map[string]string) string {
	data, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func attrsAndBodyToJSON(attrs map[string]string, body string) string {
	m := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		m[k] = v
	}
	m["content"] = strings.TrimSpace(body)
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// stripInlineCalls removes every matched inline-call substring from text,
// leaving the surrounding prose intact for the AssistantMessage/ToolCall
// block content.
func stripInlineCalls(text string, calls []inlineCall) string {
	for _, c := range calls {
		text = strings.Replace(text, c.raw, "", 1)
	}
	return strings.TrimSpace(text)
}

// toInlineToolCallEntries assigns synthetic tool_call_ids to inline calls so
// they flow through the same ToolCall-block/ToolResult-block bookkeeping as
// API-mode calls.
func toInlineToolCallEntries(calls []inlineCall, seq *int) []blocks.ToolCallEntry {
	out := make([]blocks.ToolCallEntry, len(calls))
	for i, c := range calls {
		*seq++
		out[i] = blocks.ToolCallEntry{
			ID:            fmt.Sprintf("inline_%d", *seq),
			Name:          c.Name,
			ArgumentsJSON: c.ArgumentsJSON,
		}
	}
	return out
}
