package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/autopilot/pkg/browser"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/task"
	"github.com/entrhq/autopilot/pkg/types"
)

// SessionFactory opens a fresh browser session for one script run.
type SessionFactory func(ctx context.Context) (browser.Capability, error)

// Runner executes stored scripts against the live target. Runtime failures
// are returned as failed ExecutionResults, never panics: the orchestrator
// interprets a failed result as the trigger for the exploration fallback.
type Runner struct {
	sessions SessionFactory
	log      *logging.Logger
}

// NewRunner creates a runner.
func NewRunner(sessions SessionFactory, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.NewNop()
	}
	return &Runner{sessions: sessions, log: log}
}

// Run executes the script for the given task spec. The result's Err carries
// the types.ErrExecution detail on failure; the stored script is never
// modified or discarded here, since a failure may be transient.
func (r *Runner) Run(ctx context.Context, s *types.GeneratedScript, spec task.Spec) types.ExecutionResult {
	started := time.Now()
	fail := func(format string, args ...any) types.ExecutionResult {
		err := types.ExecutionError(format, args...)
		r.log.Warnf("script %s: %v", s.ID, err)
		return types.ExecutionResult{
			Success:  false,
			Method:   types.MethodScript,
			Duration: time.Since(started),
			Err:      err.Error(),
		}
	}

	program, err := Parse(s.Body)
	if err != nil {
		return fail("parse: %v", err)
	}

	session, err := r.sessions(ctx)
	if err != nil {
		return fail("open browser session: %v", err)
	}
	defer session.Close()

	exec := &execution{
		session:  session,
		params:   spec.Constraints,
		handlers: compileHandlers(program.Handlers),
		log:      r.log,
	}

	var payload strings.Builder
	steps := 0
	for i, ins := range program.Instructions {
		if err := ctx.Err(); err != nil {
			return fail("canceled at instruction %d: %v", i, err)
		}
		content, err := exec.run(ctx, ins)
		if err != nil {
			return fail("instruction %d (%s %s): %v", i, ins.Op, ins.Target, err)
		}
		if content != "" {
			if payload.Len() > 0 {
				payload.WriteString("\n")
			}
			payload.WriteString(content)
		}
		steps++
	}

	if program.Terminal != "" {
		if err := session.WaitFor(ctx, program.Terminal, "visible"); err != nil {
			return fail("terminal condition %q not reached: %v", program.Terminal, err)
		}
	}

	return types.ExecutionResult{
		Success:  true,
		Method:   types.MethodScript,
		Payload:  payload.String(),
		Steps:    steps,
		Duration: time.Since(started),
	}
}

// execution carries the per-run state: bound parameters, compiled obstacle
// handlers, and the session.
type execution struct {
	session  browser.Capability
	params   map[string]string
	handlers []compiledHandler
	log      *logging.Logger
}

type compiledHandler struct {
	trigger     glob.Glob
	selector    string
	instruction Instruction
}

func compileHandlers(handlers []Handler) []compiledHandler {
	out := make([]compiledHandler, 0, len(handlers))
	for _, h := range handlers {
		g, err := glob.Compile(h.Trigger)
		if err != nil {
			// An uncompilable trigger never fires; validation catches this
			// before a script is persisted.
			continue
		}
		out = append(out, compiledHandler{trigger: g, selector: h.Selector, instruction: h.Instruction})
	}
	return out
}

// run executes one instruction, applying obstacle handlers and retrying the
// instruction once if a handler cleared something.
func (e *execution) run(ctx context.Context, ins Instruction) (string, error) {
	content, err := e.apply(ctx, ins)
	if err == nil {
		return content, nil
	}

	if handled := e.tryHandlers(ctx); handled {
		return e.apply(ctx, ins)
	}
	return "", err
}

// tryHandlers attempts each handler whose selector is currently visible and
// whose trigger matches the obstacle kind that selector indicates. Returns
// true if any handler instruction succeeded.
func (e *execution) tryHandlers(ctx context.Context) bool {
	for _, h := range e.handlers {
		if h.selector != "" {
			if err := e.session.WaitFor(ctx, h.selector, "visible"); err != nil {
				continue
			}
		}
		kind := classifyObstacle(h.selector)
		if !h.trigger.Match(string(kind)) {
			e.log.Debugf("handler for %s skipped: visible obstacle classified as %s", h.selector, kind)
			continue
		}
		if _, err := e.apply(ctx, h.instruction); err == nil {
			e.log.Infof("%s handler cleared %s", kind, h.selector)
			return true
		}
	}
	return false
}

// classifyObstacle names the obstacle kind a visible selector indicates. A
// handler only fires when its trigger matches what is actually on the page,
// not merely because some overlay is present.
func classifyObstacle(selector string) types.ObstacleKind {
	s := strings.ToLower(selector)
	switch {
	case strings.Contains(s, "cookie") || strings.Contains(s, "consent") || strings.Contains(s, "gdpr"):
		return types.ObstacleCookieBanner
	case strings.Contains(s, "captcha"):
		return types.ObstacleCaptcha
	case strings.Contains(s, "advert") || strings.Contains(s, "sponsor") ||
		strings.Contains(s, "ad-") || strings.Contains(s, "-ad"):
		return types.ObstacleAd
	default:
		return types.ObstacleModal
	}
}

func (e *execution) apply(ctx context.Context, ins Instruction) (string, error) {
	target, err := bind(ins.Target, e.params)
	if err != nil {
		return "", err
	}
	value, err := bind(ins.Value, e.params)
	if err != nil {
		return "", err
	}

	switch ins.Op {
	case OpNavigate:
		url := value
		if url == "" {
			url = target
		}
		return "", e.session.Navigate(ctx, url)

	case OpLocate:
		return "", e.session.WaitFor(ctx, target, "visible")

	case OpAct:
		result, err := e.session.Act(ctx, ins.Action, target, value)
		if err != nil {
			return "", err
		}
		return result.Content, nil

	case OpWait:
		state := ins.State
		if state == "" {
			state = "visible"
		}
		return "", e.session.WaitFor(ctx, target, state)

	default:
		return "", fmt.Errorf("unknown op %q", ins.Op)
	}
}
