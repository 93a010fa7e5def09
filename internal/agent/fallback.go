package agent

import "github.com/pavelanni/essayeval/internal/model"

// Fallback scores. They sit in the middle of the range so a missing analysis
// neither rewards nor sinks a submission.
const (
	FallbackContentScore   = 70
	FallbackStructureScore = 68
	FallbackLanguageScore  = 72
)

// Fallback returns the deterministic substitute output for a role. A fresh map
// is built on every call so callers may not alias each other's fields.
// Unknown roles get the content shape.
func Fallback(role model.Role) Output {
	var fields map[string]any
	switch role {
	case model.RoleStructure:
		fields = map[string]any{
			"score":        float64(FallbackStructureScore),
			"introduction": 65.0,
			"flow":         68.0,
			"organization": 70.0,
			"transitions":  65.0,
			"conclusion":   65.0,
			"coherence":    70.0,
			"strengths":    []any{"The answer follows a recognisable order of ideas"},
			"weaknesses":   []any{"Structure could not be analysed in detail for this attempt"},
			"suggestions":  []any{"Use a clear introduction, body and conclusion with one idea per paragraph"},
		}
	case model.RoleLanguage:
		fields = map[string]any{
			"score":              float64(FallbackLanguageScore),
			"grammar":            72.0,
			"vocabulary":         70.0,
			"clarity":            72.0,
			"style":              70.0,
			"readabilityScore":   65.0,
			"vocabularyLevel":    "intermediate",
			"sentenceComplexity": "moderate",
			"strengths":          []any{"Language is generally understandable"},
			"weaknesses":         []any{"Language could not be analysed in detail for this attempt"},
			"suggestions":        []any{"Proofread for grammar and prefer precise subject vocabulary"},
		}
	default:
		role = model.RoleContent
		fields = map[string]any{
			"score":                float64(FallbackContentScore),
			"factualAccuracy":      70.0,
			"relevance":            72.0,
			"depth":                65.0,
			"coverage":             68.0,
			"strengths":            []any{"The answer addresses the question"},
			"weaknesses":           []any{"Content could not be analysed in detail for this attempt"},
			"suggestions":          []any{"Support key points with specific facts, examples and data"},
			"missingTopics":        []any{},
			"keywordsDemonstrated": []any{},
		}
	}
	return Output{Role: role, Fields: fields, Fallback: true}
}
