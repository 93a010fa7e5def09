package synthesis

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelanni/essayeval/internal/agent"
	"github.com/pavelanni/essayeval/internal/model"
)

func output(role model.Role, fields map[string]any) agent.Output {
	return agent.Output{Role: role, Fields: fields}
}

func essay(words, paragraphs int) string {
	per := words / paragraphs
	var b strings.Builder
	for p := 0; p < paragraphs; p++ {
		if p > 0 {
			b.WriteString("\n\n")
		}
		n := per
		if p == paragraphs-1 {
			n = words - per*(paragraphs-1)
		}
		b.WriteString(strings.TrimSpace(strings.Repeat("word ", n)))
	}
	return b.String()
}

func minutes(m float64) *float64 { return &m }

func TestSynthesizeScenario(t *testing.T) {
	in := model.EvaluationInput{
		Content:      essay(520, 4),
		QuestionText: "Discuss the causes of the First World War.",
		TimeSpent:    minutes(5),
	}
	content := output(model.RoleContent, map[string]any{"score": 82.0})
	structure := output(model.RoleStructure, map[string]any{"score": 70.0, "organization": 75.0})
	language := output(model.RoleLanguage, map[string]any{"score": 88.0, "clarity": 75.0, "readabilityScore": 75.0})

	got, err := NewEngine(0).Synthesize(in, content, structure, language)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	want := model.Scores{Content: 82, Structure: 70, Language: 88, Presentation: 75, TimeManagement: 60}
	if got.Scores != want {
		t.Errorf("Scores = %+v, want %+v", got.Scores, want)
	}
	if got.OverallScore != 78 {
		t.Errorf("OverallScore = %d, want 78", got.OverallScore)
	}
	if got.Analytics.ReadabilityScore != 75 || got.Analytics.ParagraphStructure != "well-structured" {
		t.Errorf("Analytics = %+v", got.Analytics)
	}
}

func TestOverallMatchesWeightedSum(t *testing.T) {
	values := []int{0, 13, 50, 67, 88, 100}
	for _, c := range values {
		for _, s := range values {
			for _, l := range values {
				for _, p := range values {
					for _, tm := range []int{50, 60, 70, 95} {
						sc := model.Scores{Content: c, Structure: s, Language: l, Presentation: p, TimeManagement: tm}
						exact := 0.40*float64(c) + 0.25*float64(s) + 0.20*float64(l) + 0.10*float64(p) + 0.05*float64(tm)
						got := Overall(sc)
						if math.Abs(float64(got)-exact) > 1 {
							t.Fatalf("Overall(%+v) = %d, weighted sum %.2f", sc, got, exact)
						}
						if got < 0 || got > 100 {
							t.Fatalf("Overall(%+v) = %d out of range", sc, got)
						}
					}
				}
			}
		}
	}
}

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightContent + WeightStructure + WeightLanguage + WeightPresentation + WeightTimeManagement
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum to %v", sum)
	}
}

func TestTimeManagement(t *testing.T) {
	tests := []struct {
		name    string
		words   int
		minutes float64
		want    int
	}{
		{"no timing", 300, 0, 70},
		{"rushed", 300, 4, 60},
		{"quick", 300, 6, 80},
		{"on pace", 300, 10, 95},
		{"upper edge of on pace", 300, 12, 95},
		{"slow", 300, 14, 80},
		{"slower", 300, 18, 65},
		{"very slow", 300, 25, 50},
		{"short text uses one minute floor", 10, 0.4, 60},
		{"short text on pace", 10, 1, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeManagement(tt.words, tt.minutes); got != tt.want {
				t.Errorf("TimeManagement(%d, %v) = %d, want %d", tt.words, tt.minutes, got, tt.want)
			}
		})
	}
}

func TestSynthesizeMetadataTimeWins(t *testing.T) {
	in := model.EvaluationInput{
		Content:   essay(300, 3),
		TimeSpent: minutes(40),
		Metadata:  &model.Metadata{TimeSpent: 10},
	}
	got, err := NewEngine(0).Synthesize(in,
		output(model.RoleContent, map[string]any{"score": 70.0}),
		output(model.RoleStructure, map[string]any{"score": 70.0}),
		output(model.RoleLanguage, map[string]any{"score": 70.0}))
	if err != nil {
		t.Fatal(err)
	}
	if got.Scores.TimeManagement != 95 {
		t.Errorf("TimeManagement = %d, want 95 from metadata timing", got.Scores.TimeManagement)
	}
}

func TestPresentationFallsBackToMean(t *testing.T) {
	in := model.EvaluationInput{Content: essay(200, 2)}
	got, err := NewEngine(0).Synthesize(in,
		output(model.RoleContent, map[string]any{"score": 90.0}),
		output(model.RoleStructure, map[string]any{"score": 61.0}),
		output(model.RoleLanguage, map[string]any{"score": 80.0}))
	if err != nil {
		t.Fatal(err)
	}
	if got.Scores.Presentation != 71 {
		t.Errorf("Presentation = %d, want 71", got.Scores.Presentation)
	}
	if got.Analytics.ReadabilityScore != 80 || got.Analytics.VocabularyLevel != "intermediate" || got.Analytics.SentenceComplexity != "moderate" {
		t.Errorf("Analytics defaults = %+v", got.Analytics)
	}
}

func TestFeedbackMerge(t *testing.T) {
	content := output(model.RoleContent, map[string]any{
		"score":         80.0,
		"strengths":     []any{"A", "B", "C"},
		"weaknesses":    []any{"thin evidence"},
		"missingTopics": []any{"treaty", "alliances", "Treaty"},
	})
	structure := output(model.RoleStructure, map[string]any{
		"score":      75.0,
		"strengths":  []any{"D", "a"},
		"weaknesses": []any{"Thin Evidence", "weak conclusion"},
	})
	language := output(model.RoleLanguage, map[string]any{
		"score":       85.0,
		"strengths":   []any{"E", "F", "G", "H"},
		"suggestions": "Vary sentence length",
	})

	got, err := NewEngine(5).Synthesize(model.EvaluationInput{Content: essay(150, 1)}, content, structure, language)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"strengths", got.Feedback.Strengths, []string{"A", "D", "E", "B", "F"}},
		{"improvements", got.Feedback.Improvements, []string{"thin evidence", "weak conclusion"}},
		{"suggestions", got.Feedback.Suggestions, []string{"Vary sentence length"}},
		{"missing keywords", got.Feedback.MissingKeywords, []string{"treaty", "alliances"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestFeedbackCap(t *testing.T) {
	long := []any{"one", "two", "three", "four", "five", "six"}
	outs := []agent.Output{
		output(model.RoleContent, map[string]any{"score": 70.0, "strengths": long, "weaknesses": long, "suggestions": long, "missingTopics": long}),
		output(model.RoleStructure, map[string]any{"score": 70.0}),
		output(model.RoleLanguage, map[string]any{"score": 70.0}),
	}
	tests := []struct {
		requested int
		want      int
	}{
		{0, 5},
		{1, 3},
		{3, 3},
		{4, 4},
		{12, 5},
	}
	for _, tt := range tests {
		e := NewEngine(tt.requested)
		if e.FeedbackCap() != tt.want {
			t.Errorf("NewEngine(%d).FeedbackCap() = %d, want %d", tt.requested, e.FeedbackCap(), tt.want)
		}
		got, err := e.Synthesize(model.EvaluationInput{Content: essay(150, 1)}, outs[0], outs[1], outs[2])
		if err != nil {
			t.Fatal(err)
		}
		for name, l := range map[string][]string{
			"strengths":       got.Feedback.Strengths,
			"improvements":    got.Feedback.Improvements,
			"suggestions":     got.Feedback.Suggestions,
			"missingKeywords": got.Feedback.MissingKeywords,
		} {
			if len(l) != tt.want {
				t.Errorf("cap %d: len(%s) = %d, want %d", tt.requested, name, len(l), tt.want)
			}
		}
	}
}

func TestDerivedSuggestions(t *testing.T) {
	got, err := NewEngine(0).Synthesize(model.EvaluationInput{Content: essay(150, 1)},
		output(model.RoleContent, map[string]any{"score": 50.0}),
		output(model.RoleStructure, map[string]any{"score": 60.0}),
		output(model.RoleLanguage, map[string]any{"score": 80.0}))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{categoryAdvice["content"], categoryAdvice["structure"]}
	if !reflect.DeepEqual(got.Feedback.Suggestions, want) {
		t.Errorf("Suggestions = %q, want %q", got.Feedback.Suggestions, want)
	}
	if got.Feedback.Strengths == nil || got.Feedback.MissingKeywords == nil {
		t.Error("empty feedback lists should be non-nil")
	}
}

func TestSynthesizeFallbackOutputs(t *testing.T) {
	got, err := NewEngine(0).Synthesize(model.EvaluationInput{Content: essay(150, 1)},
		agent.Fallback(model.RoleContent),
		agent.Fallback(model.RoleStructure),
		agent.Fallback(model.RoleLanguage))
	if err != nil {
		t.Fatalf("fallback outputs must always synthesize: %v", err)
	}
	if got.OverallScore < 60 || got.OverallScore > 75 {
		t.Errorf("OverallScore = %d, want within fallback band", got.OverallScore)
	}
	if len(got.Feedback.Strengths) == 0 || len(got.Feedback.Improvements) == 0 || len(got.Feedback.Suggestions) == 0 {
		t.Errorf("fallback feedback should be non-empty: %+v", got.Feedback)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	ok := func(role model.Role) agent.Output { return output(role, map[string]any{"score": 70.0}) }
	tests := []struct {
		name     string
		outs     [3]agent.Output
		wantRole model.Role
	}{
		{"missing score", [3]agent.Output{ok(model.RoleContent), output(model.RoleStructure, map[string]any{}), ok(model.RoleLanguage)}, model.RoleStructure},
		{"nil fields", [3]agent.Output{ok(model.RoleContent), ok(model.RoleStructure), {Role: model.RoleLanguage}}, model.RoleLanguage},
		{"swapped roles", [3]agent.Output{ok(model.RoleLanguage), ok(model.RoleStructure), ok(model.RoleContent)}, model.RoleContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(0).Synthesize(model.EvaluationInput{Content: essay(150, 1)}, tt.outs[0], tt.outs[1], tt.outs[2])
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if se.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", se.Role, tt.wantRole)
			}
		})
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	in := model.EvaluationInput{Content: essay(400, 3), TimeSpent: minutes(12)}
	c := output(model.RoleContent, map[string]any{"score": 77.4, "strengths": []any{"x", "y"}})
	s := output(model.RoleStructure, map[string]any{"score": "66", "organization": 71.0})
	l := output(model.RoleLanguage, map[string]any{"score": 81.5, "vocabularyLevel": "advanced"})

	e := NewEngine(4)
	first, err := e.Synthesize(in, c, s, l)
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		again, err := e.Synthesize(in, c, s, l)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("non-deterministic synthesis:\n%+v\n%+v", first, again)
		}
	}
}

func TestParagraphStructure(t *testing.T) {
	tests := []struct {
		paragraphs, words int
		want              string
	}{
		{0, 0, "single-paragraph"},
		{1, 300, "single-paragraph"},
		{2, 300, "developing"},
		{4, 300, "well-structured"},
		{8, 400, "well-structured"},
		{10, 120, "fragmented"},
	}
	for _, tt := range tests {
		if got := ParagraphStructure(tt.paragraphs, tt.words); got != tt.want {
			t.Errorf("ParagraphStructure(%d, %d) = %q, want %q", tt.paragraphs, tt.words, got, tt.want)
		}
	}
}
