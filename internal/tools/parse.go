package tools

import (
	"encoding/json"
	"fmt"
)

// parseInput unmarshals JSON tool input into a typed struct, after first
// repairing the common doubly-encoded-JSON mistake models make.
func parseInput[T any](input json.RawMessage) (T, error) {
	var params T
	repaired := RepairArguments(input)
	if err := json.Unmarshal(repaired, &params); err != nil {
		return params, fmt.Errorf("invalid input: %w", err)
	}
	return params, nil
}

// RepairArguments walks a tool-call argument object one level deep and, for
// any string value that itself begins with '{' or '[' and parses as JSON,
// replaces it with the parsed value. Models frequently double-encode a
// nested object or array as a JSON string; this corrects that before the
// tool ever sees the arguments.
func RepairArguments(input json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(input, &obj); err != nil {
		return input
	}
	changed := false
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		trimmed := s
		if len(trimmed) == 0 {
			continue
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			continue
		}
		var probe json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
			continue
		}
		obj[k] = probe
		changed = true
	}
	if !changed {
		return input
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return input
	}
	return out
}
