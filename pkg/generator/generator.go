// Package generator converts a scriptable exploration trace into an
// executable automation script, parameterized by the task's constraints, and
// validates it with exactly one trial run before it may be persisted.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/script"
	"github.com/entrhq/autopilot/pkg/task"
	"github.com/entrhq/autopilot/pkg/types"
)

// Validator runs a candidate script once against a live or sandboxed target.
// The script runner satisfies this.
type Validator interface {
	Run(ctx context.Context, s *types.GeneratedScript, spec task.Spec) types.ExecutionResult
}

// ObstaclePolicy decides which trace obstacles a script may carry handlers
// for. The analyzer satisfies this.
type ObstaclePolicy interface {
	PredictableObstacle(o types.Obstacle) bool
}

// Generator builds and validates scripts from traces.
type Generator struct {
	validator Validator
	policy    ObstaclePolicy
	log       *logging.Logger
}

// New creates a generator.
func New(validator Validator, policy ObstaclePolicy, log *logging.Logger) *Generator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Generator{validator: validator, policy: policy, log: log}
}

// Generate translates the trace into a script and runs the single validation
// pass. On success the returned script has status PASSED and may be
// persisted. On validation failure it returns the FAILED script alongside a
// wrapped types.ErrValidation; the caller must not persist it.
//
// Only call with traces the analyzer classified SCRIPTABLE.
func (g *Generator) Generate(ctx context.Context, trace *types.ExplorationTrace, spec task.Spec) (*types.GeneratedScript, error) {
	program := translate(trace, spec, g.policy)

	body, err := program.Render()
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}

	s := &types.GeneratedScript{
		ID:          "scr_" + uuid.New().String(),
		Fingerprint: spec.Fingerprint(),
		Body:        body,
		Params:      program.ParamRefs(),
		Status:      types.StatusUnvalidated,
		CreatedAt:   time.Now(),
		Trace:       trace,
	}

	g.log.Infof("validating script %s (%d instructions, %d handlers)",
		s.ID, len(program.Instructions), len(program.Handlers))

	result := g.validator.Run(ctx, s, spec)
	if !result.Success {
		s.Status = types.StatusFailed
		return s, types.ValidationError("trial run failed: %s", result.Err)
	}

	s.Status = types.StatusPassed
	g.log.Infof("script %s validated", s.ID)
	return s, nil
}

// translate converts trace steps into structural instructions. Literal values
// that came from a task constraint are replaced by {{name}} references so the
// script generalizes across invocations with the same spec shape. Only
// obstacles the policy marks predictable become handler branches: a trace can
// be scriptable overall while still carrying an unpredictable obstacle, and a
// script cannot handle what it cannot re-trigger.
func translate(trace *types.ExplorationTrace, spec task.Spec, policy ObstaclePolicy) *script.Program {
	program := &script.Program{Version: script.CurrentVersion}

	for _, o := range trace.Obstacles {
		if policy != nil && !policy.PredictableObstacle(o) {
			continue
		}
		program.Handlers = append(program.Handlers, obstacleHandler(o))
	}

	for _, step := range trace.Steps {
		ins, ok := instructionFor(step, spec)
		if !ok {
			continue
		}
		program.Instructions = append(program.Instructions, ins)

		// A click that navigated is followed by a settle wait in the trace's
		// own rhythm; extraction steps double as the terminal condition.
		if step.Action == types.ActionExtract && step.Target != "" {
			program.Terminal = step.Target
		}
	}

	program.Params = program.ParamRefs()
	return program
}

func instructionFor(step types.Step, spec task.Spec) (script.Instruction, bool) {
	switch step.Action {
	case types.ActionNavigate:
		target := step.Target
		if target == "" {
			target = step.Value
		}
		return script.Instruction{Op: script.OpNavigate, Target: target}, true

	case types.ActionClick, types.ActionScroll:
		return script.Instruction{
			Op:     script.OpAct,
			Action: step.Action,
			Target: step.Target,
		}, true

	case types.ActionFill:
		return script.Instruction{
			Op:     script.OpAct,
			Action: step.Action,
			Target: step.Target,
			Value:  parameterize(step.Value, spec),
		}, true

	case types.ActionExtract:
		return script.Instruction{
			Op:     script.OpAct,
			Action: step.Action,
			Target: step.Target,
		}, true

	case types.ActionWait:
		return script.Instruction{
			Op:     script.OpWait,
			Target: step.Target,
			State:  "visible",
		}, true

	default:
		return script.Instruction{}, false
	}
}

// parameterize replaces a trace-time literal with a {{name}} reference when
// it equals one of the task's constraint values.
func parameterize(value string, spec task.Spec) string {
	if value == "" {
		return value
	}
	for name, v := range spec.Constraints {
		if v == value {
			return "{{" + name + "}}"
		}
	}
	return value
}

func obstacleHandler(o types.Obstacle) script.Handler {
	ins := script.Instruction{Op: script.OpAct, Action: types.ActionClick, Target: o.Selector}
	if sel := handlingSelector(o); sel != "" {
		ins.Target = sel
	}
	return script.Handler{
		Trigger:     string(o.Kind),
		Selector:    o.Selector,
		Instruction: ins,
	}
}

// handlingSelector recovers the selector from a "click <selector>" handling
// strategy recorded during exploration.
func handlingSelector(o types.Obstacle) string {
	const prefix = "click "
	if len(o.Handling) > len(prefix) && o.Handling[:len(prefix)] == prefix {
		return o.Handling[len(prefix):]
	}
	return ""
}
