// Package evaluator is the entry point of the evaluation pipeline. It
// validates a submission, dispatches the analysis agents, synthesizes their
// outputs and assembles the final result.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/essayeval/internal/agent"
	"github.com/pavelanni/essayeval/internal/model"
	"github.com/pavelanni/essayeval/internal/synthesis"
	"github.com/pavelanni/essayeval/internal/textstat"
)

// Dispatcher runs the analysis agents for one input.
type Dispatcher interface {
	Dispatch(ctx context.Context, in model.EvaluationInput) agent.Outputs
}

// Saver persists finished results.
type Saver interface {
	Save(ctx context.Context, questionText string, r *model.EvaluationResult) error
}

// Evaluator runs the full pipeline. It is safe for concurrent use.
type Evaluator struct {
	dispatcher Dispatcher
	engine     *synthesis.Engine
	comparator *synthesis.Comparator
	saver      Saver

	now   func() time.Time
	newID func() string
}

// New creates an evaluator. saver may be nil, in which case results are not persisted.
func New(d Dispatcher, engine *synthesis.Engine, comparator *synthesis.Comparator, saver Saver) *Evaluator {
	return &Evaluator{
		dispatcher: d,
		engine:     engine,
		comparator: comparator,
		saver:      saver,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// EvaluateWriting scores one written answer. It returns a *ValidationError
// before any backend call when the submission is out of bounds, and an error
// wrapping *synthesis.Error when agent outputs cannot be combined. No partial
// result is ever returned.
func (e *Evaluator) EvaluateWriting(ctx context.Context, sub model.Submission) (*model.EvaluationResult, error) {
	in, err := Validate(sub)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	outs := e.dispatcher.Dispatch(ctx, in)

	syn, err := e.engine.Synthesize(in, outs.Content, outs.Structure, outs.Language)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	cmp := e.comparator.EstimateFor(ctx, in.ExamType, syn.OverallScore)

	res := assemble(in, syn, cmp, outs, e.newID(), e.now().UTC(), time.Since(start))

	if e.saver != nil {
		if err := e.saver.Save(ctx, in.QuestionText, res); err != nil {
			slog.Error("failed to save evaluation", "id", res.ID, "error", err)
		}
	}
	slog.Info("evaluation complete",
		"id", res.ID,
		"exam_type", res.ExamType,
		"overall", res.OverallScore,
		"fallbacks", countFallbacks(outs),
		"processing_ms", res.ProcessingTime)
	return res, nil
}

func assemble(in model.EvaluationInput, syn synthesis.Synthesis, cmp model.Comparison,
	outs agent.Outputs, id string, createdAt time.Time, elapsed time.Duration) *model.EvaluationResult {
	res := &model.EvaluationResult{
		ID:           id,
		ExamType:     in.ExamType,
		Subject:      in.Subject,
		OverallScore: syn.OverallScore,
		Scores:       syn.Scores,
		Feedback: model.Feedback{
			Strengths:       cloneList(syn.Feedback.Strengths),
			Improvements:    cloneList(syn.Feedback.Improvements),
			Suggestions:     cloneList(syn.Feedback.Suggestions),
			MissingKeywords: cloneList(syn.Feedback.MissingKeywords),
		},
		Analytics:      syn.Analytics,
		Comparison:     cmp,
		ProcessingTime: elapsed.Milliseconds(),
		CreatedAt:      createdAt,
	}

	if in.Metadata != nil {
		meta := *in.Metadata
		meta.Pauses = slices.Clone(in.Metadata.Pauses)
		if meta.WordCount == 0 {
			meta.WordCount = textstat.Words(in.Content)
		}
		if meta.TimeSpent == 0 {
			meta.TimeSpent, _ = in.Minutes()
		}
		eff := synthesis.ComputeEfficiency(&meta)
		res.WritingEfficiency = &eff
	}

	for _, o := range outs.All() {
		res.Agents = append(res.Agents, model.AgentTrace{
			Role:      string(o.Role),
			Backend:   o.Backend,
			Model:     o.Model,
			Fallback:  o.Fallback,
			LatencyMs: o.Latency.Milliseconds(),
		})
	}
	return res
}

func cloneList(l []string) []string {
	if l == nil {
		return []string{}
	}
	return slices.Clone(l)
}

func countFallbacks(outs agent.Outputs) int {
	n := 0
	for _, o := range outs.All() {
		if o.Fallback {
			n++
		}
	}
	return n
}
