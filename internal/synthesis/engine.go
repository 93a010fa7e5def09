// Package synthesis merges the three agent analyses into one weighted score,
// structured feedback and readability analytics.
package synthesis

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pavelanni/essayeval/internal/agent"
	"github.com/pavelanni/essayeval/internal/model"
	"github.com/pavelanni/essayeval/internal/textstat"
)

// Category weights of the overall score. They sum to 1.
const (
	WeightContent        = 0.40
	WeightStructure      = 0.25
	WeightLanguage       = 0.20
	WeightPresentation   = 0.10
	WeightTimeManagement = 0.05
)

// Feedback list caps.
const (
	DefaultFeedbackCap = 5
	MinFeedbackCap     = 3
	MaxFeedbackCap     = 5
)

// ExpectedWPM is the writing pace the time-management curve is calibrated on.
const ExpectedWPM = 30

// NoTimingScore is the time-management score when no duration was recorded.
const NoTimingScore = 70

const weakCategoryThreshold = 70

// Error reports an agent output that violates the decoder contract.
type Error struct {
	Role   model.Role
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("synthesis: %s output %s", e.Role, e.Reason)
}

// Synthesis is the scored and merged part of an evaluation result.
type Synthesis struct {
	OverallScore int
	Scores       model.Scores
	Feedback     model.Feedback
	Analytics    model.Analytics
}

// Engine combines agent outputs. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	feedbackCap int
}

// NewEngine returns an engine capping each feedback list at feedbackCap,
// clamped to [MinFeedbackCap, MaxFeedbackCap]. Zero selects the default.
func NewEngine(feedbackCap int) *Engine {
	switch {
	case feedbackCap == 0:
		feedbackCap = DefaultFeedbackCap
	case feedbackCap < MinFeedbackCap:
		feedbackCap = MinFeedbackCap
	case feedbackCap > MaxFeedbackCap:
		feedbackCap = MaxFeedbackCap
	}
	return &Engine{feedbackCap: feedbackCap}
}

// FeedbackCap returns the effective list cap.
func (e *Engine) FeedbackCap() int { return e.feedbackCap }

// Synthesize computes category scores, the overall score, merged feedback and
// analytics. The result depends only on its arguments.
func (e *Engine) Synthesize(in model.EvaluationInput, content, structure, language agent.Output) (Synthesis, error) {
	wantRoles := [...]model.Role{model.RoleContent, model.RoleStructure, model.RoleLanguage}
	outs := [...]agent.Output{content, structure, language}
	var raw [3]float64
	for i, o := range outs {
		if o.Role != wantRoles[i] {
			return Synthesis{}, &Error{Role: wantRoles[i], Reason: fmt.Sprintf("has role %q", o.Role)}
		}
		s, ok := o.Score()
		if !ok {
			return Synthesis{}, &Error{Role: o.Role, Reason: "has no usable score"}
		}
		raw[i] = s
	}

	minutes, _ := in.Minutes()
	scores := model.Scores{
		Content:        roundScore(raw[0]),
		Structure:      roundScore(raw[1]),
		Language:       roundScore(raw[2]),
		Presentation:   presentation(structure, language, raw[1], raw[2]),
		TimeManagement: TimeManagement(textstat.Words(in.Content), minutes),
	}

	fb := model.Feedback{
		Strengths:       e.merge(outs[:], "strengths"),
		Improvements:    e.merge(outs[:], "weaknesses"),
		Suggestions:     e.merge(outs[:], "suggestions"),
		MissingKeywords: e.merge(outs[:1], "missingTopics"),
	}
	if len(fb.Suggestions) == 0 {
		fb.Suggestions = e.derivedSuggestions(scores)
	}

	return Synthesis{
		OverallScore: Overall(scores),
		Scores:       scores,
		Feedback:     fb,
		Analytics:    analytics(in.Content, language, scores.Language),
	}, nil
}

// Overall is the weighted combination of the five category scores, rounded
// and clamped to [0,100].
func Overall(s model.Scores) int {
	sum := WeightContent*float64(s.Content) +
		WeightStructure*float64(s.Structure) +
		WeightLanguage*float64(s.Language) +
		WeightPresentation*float64(s.Presentation) +
		WeightTimeManagement*float64(s.TimeManagement)
	return roundScore(sum)
}

// TimeManagement scores the minutes spent writing against the time expected
// for words at ExpectedWPM. A non-positive duration means no timing was recorded.
func TimeManagement(words int, minutes float64) int {
	if minutes <= 0 {
		return NoTimingScore
	}
	expected := math.Max(1, float64(words)/ExpectedWPM)
	r := minutes / expected
	switch {
	case r < 0.5:
		return 60
	case r < 0.8:
		return 80
	case r <= 1.2:
		return 95
	case r <= 1.5:
		return 80
	case r <= 2.0:
		return 65
	default:
		return 50
	}
}

func presentation(structure, language agent.Output, structureScore, languageScore float64) int {
	var signals []float64
	if v, ok := structure.Number("organization"); ok {
		signals = append(signals, v)
	}
	if v, ok := language.Number("clarity"); ok {
		signals = append(signals, v)
	}
	if v, ok := language.Number("readabilityScore"); ok {
		signals = append(signals, v)
	}
	if len(signals) == 0 {
		return roundScore((structureScore + languageScore) / 2)
	}
	var sum float64
	for _, v := range signals {
		sum += clamp(v)
	}
	return roundScore(sum / float64(len(signals)))
}

// merge interleaves the lists of key across outs rank by rank, keeping the
// first occurrence of each entry regardless of case.
func (e *Engine) merge(outs []agent.Output, key string) []string {
	lists := make([][]string, len(outs))
	longest := 0
	for i, o := range outs {
		lists[i] = o.Strings(key)
		longest = max(longest, len(lists[i]))
	}

	merged := make([]string, 0, e.feedbackCap)
	seen := make(map[string]bool)
	for rank := 0; rank < longest; rank++ {
		for _, l := range lists {
			if rank >= len(l) {
				continue
			}
			k := strings.ToLower(l[rank])
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, l[rank])
			if len(merged) == e.feedbackCap {
				return merged
			}
		}
	}
	return merged
}

var categoryAdvice = map[string]string{
	"content":        "Deepen the answer with accurate facts, examples and the key concepts of the topic",
	"structure":      "Organize the answer into an introduction, focused body paragraphs and a conclusion",
	"language":       "Proofread for grammar and use precise subject vocabulary",
	"presentation":   "Break the text into clear paragraphs and keep sentences readable",
	"timeManagement": "Plan the time so the answer is neither rushed nor padded",
}

func (e *Engine) derivedSuggestions(s model.Scores) []string {
	type category struct {
		name  string
		score int
	}
	weak := []category{}
	for _, c := range []category{
		{"content", s.Content},
		{"structure", s.Structure},
		{"language", s.Language},
		{"presentation", s.Presentation},
		{"timeManagement", s.TimeManagement},
	} {
		if c.score < weakCategoryThreshold {
			weak = append(weak, c)
		}
	}
	slices.SortStableFunc(weak, func(a, b category) int { return a.score - b.score })

	out := make([]string, 0, min(len(weak), e.feedbackCap))
	for _, c := range weak {
		if len(out) == e.feedbackCap {
			break
		}
		out = append(out, categoryAdvice[c.name])
	}
	return out
}

func analytics(content string, language agent.Output, languageScore int) model.Analytics {
	a := model.Analytics{
		ReadabilityScore:   languageScore,
		VocabularyLevel:    language.String("vocabularyLevel"),
		SentenceComplexity: language.String("sentenceComplexity"),
		ParagraphStructure: ParagraphStructure(textstat.Paragraphs(content), textstat.Words(content)),
	}
	if v, ok := language.Number("readabilityScore"); ok {
		a.ReadabilityScore = roundScore(v)
	}
	if a.VocabularyLevel == "" {
		a.VocabularyLevel = "intermediate"
	}
	if a.SentenceComplexity == "" {
		a.SentenceComplexity = "moderate"
	}
	return a
}

// ParagraphStructure labels how the answer is divided into paragraphs.
func ParagraphStructure(paragraphs, words int) string {
	switch {
	case paragraphs <= 1:
		return "single-paragraph"
	case paragraphs == 2:
		return "developing"
	case paragraphs > 6 && words/paragraphs < 30:
		return "fragmented"
	default:
		return "well-structured"
	}
}

func roundScore(v float64) int {
	return int(math.Round(clamp(v)))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
