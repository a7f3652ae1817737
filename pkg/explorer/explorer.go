// Package explorer drives the language-model agent through one live attempt
// at a task, producing a structured trace of every observation, action, and
// decision. The trace is the sole input to repeatability analysis, so each
// step records its full decision context.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/entrhq/autopilot/pkg/browser"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/llm"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/task"
	"github.com/entrhq/autopilot/pkg/types"
)

// SessionFactory opens a fresh browser session for one exploration run. The
// explorer closes the session when the run ends.
type SessionFactory func(ctx context.Context) (browser.Capability, error)

// Explorer runs live explorations. It performs real actions against the
// target, so at most one live exploration happens per task invocation.
type Explorer struct {
	provider llm.Provider
	sessions SessionFactory
	cfg      config.ExplorerConfig
	log      *logging.Logger
}

// New creates an explorer.
func New(provider llm.Provider, sessions SessionFactory, cfg config.ExplorerConfig, log *logging.Logger) *Explorer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Explorer{provider: provider, sessions: sessions, cfg: cfg, log: log}
}

// Explore runs one live attempt at the task and returns its trace. It fails
// with a wrapped types.ErrExploration when the agent cannot reach a terminal
// state within the configured step count or wall-clock timeout.
func (e *Explorer) Explore(ctx context.Context, spec task.Spec) (*types.ExplorationTrace, error) {
	return e.ExploreWithHints(ctx, spec, nil)
}

// ExploreWithHints runs an exploration whose task prompt is enriched with
// obstacle expectations and an approximate step count from a prior trace.
// Used on the fallback path when a stored script failed but an earlier
// exploration of the same task exists.
func (e *Explorer) ExploreWithHints(ctx context.Context, spec task.Spec, prior *types.ExplorationTrace) (*types.ExplorationTrace, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	session, err := e.sessions(ctx)
	if err != nil {
		return nil, types.ExplorationError("open browser session: %v", err)
	}
	defer session.Close()

	started := time.Now()
	trace := &types.ExplorationTrace{
		TaskFingerprint: spec.Fingerprint(),
		StartedAt:       started,
	}
	taskPrompt := renderTask(spec, prior)
	trimmer := newHistoryTrimmer(e.cfg.Model, e.cfg.HistoryTokenBudget)

	e.log.Infof("exploring %s (max %d steps)", spec.Target, e.cfg.MaxSteps)

	if err := ctx.Err(); err != nil {
		return nil, e.abort(ctx, "before initial navigation")
	}
	if err := session.Navigate(ctx, spec.Target); err != nil {
		return nil, e.abort(ctx, "initial navigation: %v", err)
	}
	trace.Steps = append(trace.Steps, types.Step{
		Index:     0,
		Action:    types.ActionNavigate,
		Target:    spec.Target,
		Outcome:   types.OutcomeSuccess,
		Rationale: "open task entry point",
		Timestamp: time.Now(),
	})

	var history []string
	for stepIndex := 1; stepIndex <= e.cfg.MaxSteps; stepIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, e.abort(ctx, "at step %d", stepIndex)
		}
		obs, err := session.Observe(ctx)
		if err != nil {
			return nil, e.abort(ctx, "observe at step %d: %v", stepIndex, err)
		}

		decision, err := e.provider.Decide(ctx, llm.StepContext{
			Task:        taskPrompt,
			Observation: renderObservation(obs),
			History:     trimmer.Trim(history),
		})
		if err != nil {
			return nil, e.abort(ctx, "decide at step %d: %v", stepIndex, err)
		}

		if decision.Done {
			trace.FinalResult = decision.Result
			trace.Duration = time.Since(started)
			e.log.Infof("exploration complete in %d steps", len(trace.Steps))
			return trace, nil
		}

		step := types.Step{
			Index:       stepIndex,
			Observation: summarizeObservation(obs),
			Action:      decision.Action,
			Target:      decision.Target,
			Value:       decision.Value,
			Outcome:     types.OutcomeSuccess,
			Rationale:   decision.Rationale,
			Timestamp:   time.Now(),
		}

		result, actErr := session.Act(ctx, decision.Action, decision.Target, decision.Value)
		if actErr != nil {
			if ctx.Err() != nil {
				return nil, e.abort(ctx, "act at step %d: %v", stepIndex, actErr)
			}
			// A failed action is an observed obstacle, not a fatal error;
			// the agent sees the unchanged page next round and can adapt.
			step.Outcome = types.OutcomeObstacle
			e.log.Warnf("step %d action failed: %v", stepIndex, actErr)
			if result.ObstacleHit && decision.Obstacle == nil {
				trace.Obstacles = append(trace.Obstacles, types.Obstacle{
					Kind:       types.ObstacleModal,
					Selector:   decision.Target,
					Likelihood: 0.5,
					Handling:   "retry after page settles",
					AtStep:     stepIndex,
				})
			}
		}

		if decision.Obstacle != nil {
			o := *decision.Obstacle
			o.AtStep = stepIndex
			trace.Obstacles = append(trace.Obstacles, o)
			step.Outcome = types.OutcomeObstacle
		} else if inferred, ok := inferObstacle(decision, stepIndex); ok {
			trace.Obstacles = append(trace.Obstacles, inferred)
		}

		if decision.Question != "" {
			trace.Decisions = append(trace.Decisions, types.Decision{
				Step:         stepIndex,
				Question:     decision.Question,
				Choice:       decision.Target,
				Reasoning:    decision.Rationale,
				Alternatives: decision.Alternatives,
			})
		}

		trace.Steps = append(trace.Steps, step)
		history = append(history, renderHistoryEntry(step, actErr, result))
	}

	return nil, e.abort(ctx, "step budget of %d exhausted", e.cfg.MaxSteps)
}

// abort maps a failure to the exploration error taxonomy, preferring a
// timeout/cancellation description when the context expired.
func (e *Explorer) abort(ctx context.Context, format string, args ...any) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.ExplorationError("timed out: %s", fmt.Sprintf(format, args...))
		}
		return types.ExplorationError("canceled: %s", fmt.Sprintf(format, args...))
	}
	return types.ExplorationError(format, args...)
}

// renderTask builds the task prompt from the spec, appending constraint
// parameters and, when a prior trace exists, what it learned.
func renderTask(spec task.Spec, prior *types.ExplorationTrace) string {
	var b strings.Builder
	b.WriteString(spec.Instructions)
	fmt.Fprintf(&b, "\nStarting URL: %s", spec.Target)

	if len(spec.Constraints) > 0 {
		keys := make([]string, 0, len(spec.Constraints))
		for k := range spec.Constraints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nParameters:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n  %s: %s", k, spec.Constraints[k])
		}
	}

	if prior != nil {
		if len(prior.Obstacles) > 0 {
			kinds := make([]string, 0, len(prior.Obstacles))
			for _, o := range prior.Obstacles {
				kinds = append(kinds, string(o.Kind))
			}
			fmt.Fprintf(&b, "\nExpected obstacles from a previous run: %s", strings.Join(kinds, ", "))
		}
		if len(prior.Steps) > 0 {
			fmt.Fprintf(&b, "\nA previous run completed this in about %d steps.", len(prior.Steps))
		}
	}
	return b.String()
}

func renderObservation(obs browser.Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\n", obs.URL, obs.Title)
	if len(obs.Interactive) > 0 {
		b.WriteString("Interactive elements:\n")
		for _, el := range obs.Interactive {
			fmt.Fprintf(&b, "  %s\n", el)
		}
	}
	b.WriteString("Content:\n")
	b.WriteString(obs.Summary)
	return b.String()
}

// summarizeObservation keeps a compact state summary in the trace step;
// the full content stays out of persisted artifacts.
func summarizeObservation(obs browser.Observation) string {
	return fmt.Sprintf("%s | %s | %s", obs.URL, obs.Title, clip(obs.Summary, 200))
}

// clip cuts s to at most max bytes without splitting a rune; prompts and
// trace records must stay valid UTF-8.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func renderHistoryEntry(step types.Step, actErr error, result browser.ActResult) string {
	entry := fmt.Sprintf("step %d: %s %s", step.Index, step.Action, step.Target)
	if step.Value != "" {
		entry += fmt.Sprintf(" = %q", step.Value)
	}
	switch {
	case actErr != nil:
		entry += fmt.Sprintf(" -> failed (%v)", actErr)
	case result.Content != "":
		entry += fmt.Sprintf(" -> %q", clip(result.Content, 300))
	default:
		entry += " -> ok"
	}
	return entry
}

// inferObstacle recognizes obstacle-clearing actions the model performed
// without flagging them, e.g. accepting a cookie banner.
func inferObstacle(d llm.Decision, stepIndex int) (types.Obstacle, bool) {
	if d.Action != types.ActionClick {
		return types.Obstacle{}, false
	}
	text := strings.ToLower(d.Target + " " + d.Rationale)
	if strings.Contains(text, "cookie") || strings.Contains(text, "consent") {
		return types.Obstacle{
			Kind:       types.ObstacleCookieBanner,
			Selector:   d.Target,
			Likelihood: 0.9,
			Handling:   "click " + d.Target,
			AtStep:     stepIndex,
		}, true
	}
	return types.Obstacle{}, false
}
