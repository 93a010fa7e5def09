package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/essayeval/internal/model"
)

var errNoObject = errors.New("no JSON object in response")

// Decode parses an agent's raw response for the given role. It never fails:
// unusable text yields the role's fallback object.
func Decode(raw string, role model.Role) Output {
	fields, err := parseObject(raw)
	if err != nil {
		return Fallback(role)
	}
	out := Output{Role: role, Fields: fields}
	if _, ok := out.Score(); !ok {
		return Fallback(role)
	}
	return out
}

// parseObject finds the first complete JSON object in raw, tolerating Markdown
// code fences and prose around it, including prose with braces of its own.
func parseObject(raw string) (map[string]any, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "\ufeff")
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, errNoObject
	}
	for {
		fields, err := decodeObject(s[start:])
		if err == nil {
			return fields, nil
		}
		// A truncated object runs to the end of the text, so every later
		// brace belongs to it.
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("parse agent response: %w", err)
		}
		// Resume after the point where parsing failed, skipping objects
		// nested in the broken one.
		from := start + 1
		var serr *json.SyntaxError
		if errors.As(err, &serr) {
			from = max(from, min(start+int(serr.Offset), len(s)))
		}
		next := strings.IndexByte(s[from:], '{')
		if next < 0 {
			return nil, fmt.Errorf("parse agent response: %w", err)
		}
		start = from + next
	}
}

// decodeObject reads the JSON object at the start of s and ignores whatever follows it.
func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNoObject
	}
	return fields, nil
}
