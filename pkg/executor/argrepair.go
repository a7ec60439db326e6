package executor

import (
	"encoding/json"
	"strings"

	"github.com/flowforge/agentcore/pkg/llms"
)

// parseArguments implements spec §4.C step 1. A ToolCall's Arguments is
// usually already a parsed map; RawArgs is consulted only when it is
// nil (e.g. a streaming accumulation that never got a clean parse). The
// bool return reports whether parsing (with or without repair)
// succeeded; on failure the caller substitutes {} and warns.
func parseArguments(call llms.ToolCall) (map[string]interface{}, bool) {
	if call.Arguments != nil {
		return call.Arguments, true
	}
	raw := strings.TrimSpace(call.RawArgs)
	if raw == "" {
		return map[string]interface{}{}, true
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, true
	}
	if repaired, ok := repairJSON(raw); ok {
		if err := json.Unmarshal([]byte(repaired), &out); err == nil {
			return out, true
		}
	}
	return map[string]interface{}{}, false
}

// repairJSON performs the two best-effort fixes spec §4.C step 1 names:
// closing an open string value and adding missing closing braces.
// Mid-array truncation and other shapes are not reliably recoverable
// (spec §9 Open Questions) and fall through to the caller's {}
// substitution.
func repairJSON(raw string) (string, bool) {
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return "", false
	}

	s := raw
	inString := false
	escaped := false
	depth := 0
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't affect depth
		case r == '{':
			depth++
		case r == '}':
			depth--
		}
	}

	repaired := s
	if inString {
		repaired += `"`
	}
	for ; depth > 0; depth-- {
		repaired += "}"
	}

	if repaired == raw {
		return "", false
	}
	return repaired, true
}
