package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/autopilot/pkg/types"
)

// ParseDecision extracts a Decision from raw model output. Models frequently
// wrap JSON in markdown fences or prepend commentary, so the parser locates
// the outermost JSON object before decoding.
func ParseDecision(raw string) (Decision, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return Decision{}, fmt.Errorf("llm: no JSON object in model output")
	}

	var d Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return Decision{}, fmt.Errorf("llm: decode decision: %w", err)
	}

	if err := validateDecision(d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

func validateDecision(d Decision) error {
	if d.Done {
		return nil
	}
	switch d.Action {
	case types.ActionNavigate, types.ActionClick, types.ActionFill,
		types.ActionExtract, types.ActionScroll, types.ActionWait:
	case "":
		return fmt.Errorf("llm: decision has neither action nor done")
	default:
		return fmt.Errorf("llm: unknown action %q", d.Action)
	}
	switch d.Action {
	case types.ActionClick, types.ActionFill, types.ActionWait:
		if d.Target == "" {
			return fmt.Errorf("llm: action %s requires a target", d.Action)
		}
	case types.ActionNavigate:
		if d.Target == "" && d.Value == "" {
			return fmt.Errorf("llm: navigate requires a URL")
		}
	}
	return nil
}

// extractJSON returns the first balanced top-level JSON object in s, ignoring
// braces inside string literals.
func extractJSON(s string) string {
	s = stripFences(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
