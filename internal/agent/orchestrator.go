package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/essayeval/internal/model"
)

// Outputs holds the three agent outputs in role order.
type Outputs struct {
	Content   Output
	Structure Output
	Language  Output
}

// All returns the outputs in the fixed order content, structure, language.
func (o Outputs) All() []Output {
	return []Output{o.Content, o.Structure, o.Language}
}

// Orchestrator dispatches the three agents concurrently and gathers their outputs.
type Orchestrator struct {
	agents map[model.Role]*Agent
}

// NewOrchestrator requires exactly one agent per role.
func NewOrchestrator(agents ...*Agent) (*Orchestrator, error) {
	byRole := make(map[model.Role]*Agent, len(agents))
	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("nil agent")
		}
		if _, dup := byRole[a.role]; dup {
			return nil, fmt.Errorf("duplicate agent for role %q", a.role)
		}
		byRole[a.role] = a
	}
	for _, role := range model.Roles {
		if byRole[role] == nil {
			return nil, fmt.Errorf("missing agent for role %q", role)
		}
	}
	return &Orchestrator{agents: byRole}, nil
}

// Dispatch runs all agents and returns once every one of them has either
// answered or been replaced by its fallback. It never fails.
func (o *Orchestrator) Dispatch(ctx context.Context, in model.EvaluationInput) Outputs {
	results := make([]Output, len(model.Roles))

	var g errgroup.Group
	for i, role := range model.Roles {
		a := o.agents[role]
		g.Go(func() error {
			results[i] = o.run(ctx, a, in)
			return nil
		})
	}
	_ = g.Wait()

	return Outputs{Content: results[0], Structure: results[1], Language: results[2]}
}

type reply struct {
	raw string
	err error
}

func (o *Orchestrator) run(ctx context.Context, a *Agent, in model.EvaluationInput) Output {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: &InvocationError{Role: a.role, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		raw, err := a.Run(actx, in)
		ch <- reply{raw: raw, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-actx.Done():
		r.err = &InvocationError{Role: a.role, Err: actx.Err()}
	}

	var out Output
	if r.err != nil {
		slog.Warn("agent failed, using fallback", "role", a.role, "backend", a.backendName(), "error", r.err)
		out = Fallback(a.role)
	} else {
		out = Decode(r.raw, a.role)
		if out.Fallback {
			slog.Warn("agent response unusable, using fallback", "role", a.role, "backend", a.backendName(), "raw_len", len(r.raw))
		}
	}

	out.Backend = a.backendName()
	out.Model = a.modelName()
	out.Latency = time.Since(start)
	slog.Debug("agent finished", "role", a.role, "fallback", out.Fallback, "latency_ms", out.Latency.Milliseconds())
	return out
}
