// Package agent runs the three analysis agents against generative-text backends
// and turns their replies into typed, always-usable outputs.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/essayeval/internal/llm"
	"github.com/pavelanni/essayeval/internal/llm/prompts"
	"github.com/pavelanni/essayeval/internal/model"
)

// DefaultTimeout bounds one agent call when its settings leave Timeout unset.
const DefaultTimeout = 45 * time.Second

// InvocationError reports that an agent's backend call failed or timed out.
type InvocationError struct {
	Role model.Role
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent %s: %v", e.Role, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Settings tune one agent's backend call. They never change how results are scored.
type Settings struct {
	Backend     string        `mapstructure:"backend"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max-tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Agent evaluates one quality dimension of a submission.
type Agent struct {
	role     model.Role
	backend  llm.Backend
	settings Settings
}

// New creates an agent for role backed by b.
func New(role model.Role, b llm.Backend, s Settings) *Agent {
	return &Agent{role: role, backend: b, settings: s}
}

// Role returns the dimension this agent evaluates.
func (a *Agent) Role() model.Role { return a.role }

// Run renders the role prompt and returns the backend's raw text.
func (a *Agent) Run(ctx context.Context, in model.EvaluationInput) (string, error) {
	prompt, err := prompts.Build(a.role, in)
	if err != nil {
		return "", &InvocationError{Role: a.role, Err: fmt.Errorf("build prompt: %w", err)}
	}

	raw, err := a.backend.Complete(ctx, llm.Request{
		System:      prompts.System(a.role),
		Prompt:      prompt,
		Model:       a.settings.Model,
		Temperature: a.settings.Temperature,
		MaxTokens:   a.settings.MaxTokens,
	})
	if err != nil {
		return "", &InvocationError{Role: a.role, Err: err}
	}
	return raw, nil
}

func (a *Agent) timeout() time.Duration {
	if a.settings.Timeout > 0 {
		return a.settings.Timeout
	}
	return DefaultTimeout
}

// backendName is the configured backend identifier, or the backend kind when
// the agent was built without one.
func (a *Agent) backendName() string {
	if a.settings.Backend != "" {
		return a.settings.Backend
	}
	return a.backend.Name()
}

func (a *Agent) modelName() string {
	if a.settings.Model != "" {
		return a.settings.Model
	}
	return "default"
}
