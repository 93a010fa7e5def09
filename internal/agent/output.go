package agent

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/essayeval/internal/model"
)

// Output is one agent's loosely typed analysis. Its shape differs per role
// and is only read through the coercing accessors below.
type Output struct {
	Role     model.Role
	Fields   map[string]any
	Fallback bool
	Backend  string
	Model    string
	Latency  time.Duration
}

// Score returns the agent's overall score clamped to [0,100].
func (o Output) Score() (float64, bool) {
	v, ok := o.Number("score")
	if !ok {
		return 0, false
	}
	return clamp(v), true
}

// Number reads a numeric field. It accepts JSON numbers, numeric strings
// ("72", "72%", "72/100", "8/10" read as 80) and objects carrying a
// "score" member.
func (o Output) Number(key string) (float64, bool) {
	return toNumber(o.Fields[key])
}

// String reads a textual field, trimming whitespace.
func (o Output) String(key string) string {
	switch v := o.Fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	}
	return ""
}

// Strings reads a list field. A single string becomes a one-element list;
// non-string and blank elements are dropped.
func (o Output) Strings(key string) []string {
	switch v := o.Fields[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []string:
		return trimAll(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(n), "%")
		num, den, frac := strings.Cut(s, "/")
		f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, false
		}
		// "8/10" is a fraction of its denominator; a zero or unreadable
		// denominator leaves the numerator as is.
		if frac {
			if d, err := strconv.ParseFloat(strings.TrimSpace(den), 64); err == nil && d > 0 && !math.IsInf(d, 0) {
				f = f * 100 / d
			}
		}
		return finite(f)
	case map[string]any:
		return toNumber(n["score"])
	}
	return 0, false
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
