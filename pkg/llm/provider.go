// Package llm defines the language-model capability the explorer drives: a
// bounded request/response interface that takes the task plus page
// observations and returns the next action or a completion. Keeping the
// surface this narrow means the analyzer never depends on provider streaming
// or callback mechanics.
package llm

import (
	"context"

	"github.com/entrhq/autopilot/pkg/types"
)

// StepContext is everything the model sees when deciding the next action.
type StepContext struct {
	// Task is the full task description, including target URL and
	// constraints.
	Task string

	// Observation is the rendered summary of the current page state.
	Observation string

	// History holds rendered prior steps, oldest first. The explorer trims
	// it to a token budget before each call.
	History []string
}

// Decision is the model's instruction for the next step, or the task
// completion when Done is set.
type Decision struct {
	// Action to perform next. Ignored when Done is true.
	Action types.ActionKind `json:"action,omitempty"`

	// Target is the selector or label the action applies to.
	Target string `json:"target,omitempty"`

	// Value is action-specific input: text to fill, URL to open.
	Value string `json:"value,omitempty"`

	// Rationale explains why this action was chosen. The analyzer reads it
	// to distinguish structural matching from semantic interpretation.
	Rationale string `json:"rationale,omitempty"`

	// Obstacle is set when the model reports it just worked around an
	// unexpected page state.
	Obstacle *types.Obstacle `json:"obstacle,omitempty"`

	// Question and Alternatives are set when the step involved choosing
	// between options based on page content.
	Question     string   `json:"question,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`

	// Done marks the task complete; Result carries the extracted data or
	// confirmation.
	Done   bool   `json:"done,omitempty"`
	Result string `json:"result,omitempty"`
}

// Provider is the language-model backend. Implementations must honor context
// cancellation and deadlines.
type Provider interface {
	// Decide returns the next action (or completion) for the given step
	// context.
	Decide(ctx context.Context, sc StepContext) (Decision, error)
}
