// Package orchestrator runs the full pipeline for one task invocation:
// script-library lookup, script execution with exploration fallback, live
// exploration, repeatability analysis, and best-effort script generation.
// Execute is the only entry point the pipeline exposes upward.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/library"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/task"
	"github.com/entrhq/autopilot/pkg/types"
)

// Explorer is the live-exploration capability.
type Explorer interface {
	Explore(ctx context.Context, spec task.Spec) (*types.ExplorationTrace, error)
	ExploreWithHints(ctx context.Context, spec task.Spec, prior *types.ExplorationTrace) (*types.ExplorationTrace, error)
}

// Analyzer classifies a trace.
type Analyzer interface {
	Analyze(trace *types.ExplorationTrace) types.RepeatabilityScore
}

// Generator builds and validates a script from a scriptable trace.
type Generator interface {
	Generate(ctx context.Context, trace *types.ExplorationTrace, spec task.Spec) (*types.GeneratedScript, error)
}

// Runner executes a stored script.
type Runner interface {
	Run(ctx context.Context, s *types.GeneratedScript, spec task.Spec) types.ExecutionResult
}

// Orchestrator owns the pipeline state machine and the script library
// lifecycle: the store is opened by the caller, handed to New, and closed by
// Close at shutdown.
type Orchestrator struct {
	explorer  Explorer
	analyzer  Analyzer
	generator Generator
	runner    Runner
	store     library.Store
	cfg       config.OrchestratorConfig
	maxAge    time.Duration
	log       *logging.Logger
}

// New assembles an orchestrator. The store is wrapped so persistence
// failures degrade to always-explore instead of failing invocations.
func New(explorer Explorer, analyzer Analyzer, generator Generator, runner Runner,
	store library.Store, cfg config.OrchestratorConfig, libCfg config.LibraryConfig,
	log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Orchestrator{
		explorer:  explorer,
		analyzer:  analyzer,
		generator: generator,
		runner:    runner,
		store:     library.NewDegrading(store, log),
		cfg:       cfg,
		maxAge:    libCfg.MaxScriptAge,
		log:       log,
	}
}

// Close releases the script library.
func (o *Orchestrator) Close() error {
	return o.store.Close()
}

// Execute runs one task invocation through the state machine:
//
//	LOOKUP -> {SCRIPT_EXECUTE, EXPLORE} -> ANALYZE -> GENERATE -> DONE
//
// with a single fallback edge from a failed script execution to exploration.
// The result is always returned; errors are folded into it.
func (o *Orchestrator) Execute(ctx context.Context, spec task.Spec) types.ExecutionResult {
	if o.cfg.InvocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.InvocationTimeout)
		defer cancel()
	}

	fingerprint := spec.Fingerprint()
	o.log.Infof("execute %s (fingerprint %.12s)", spec.Target, fingerprint)

	// LOOKUP
	var priorTrace *types.ExplorationTrace
	stored, err := o.store.Get(ctx, fingerprint)
	switch {
	case err == nil && o.stale(stored):
		o.log.Infof("stored script %s is stale, treating as miss", stored.ID)
		priorTrace = stored.Trace
	case err == nil:
		// SCRIPT_EXECUTE
		result := o.runner.Run(ctx, stored, spec)
		if result.Success {
			o.log.Infof("script %s succeeded", stored.ID)
			return result
		}
		// Fallback edge. The stored script stays in the library: the
		// failure may be a one-off site glitch.
		o.log.Warnf("script %s failed, falling back to exploration: %s", stored.ID, result.Err)
		priorTrace = stored.Trace
	case !errors.Is(err, library.ErrNotFound):
		// The degrading store only surfaces ErrNotFound, but keep the
		// branch honest for other Store implementations.
		o.log.Warnf("library lookup: %v", err)
	}

	// EXPLORE
	trace, err := o.explorer.ExploreWithHints(ctx, spec, priorTrace)
	if err != nil {
		o.log.Errorf("exploration failed: %v", err)
		return types.ExecutionResult{
			Success: false,
			Method:  types.MethodExploration,
			Err:     err.Error(),
		}
	}

	explorationResult := types.ExecutionResult{
		Success:  true,
		Method:   types.MethodExploration,
		Payload:  trace.FinalResult,
		Steps:    len(trace.Steps),
		Duration: trace.Duration,
	}

	// ANALYZE
	score := o.analyzer.Analyze(trace)
	o.log.Infof("repeatability: determinism=%.2f predictability=%.2f complexity=%.2f verdict=%s",
		score.Determinism, score.ObstaclePredictability, score.DecisionComplexity, score.Verdict)
	if !score.Scriptable() {
		return explorationResult
	}

	// GENERATE — best effort; the exploration already succeeded.
	generated, err := o.generator.Generate(ctx, trace, spec)
	if err != nil {
		if errors.Is(err, types.ErrValidation) {
			o.log.Warnf("generated script discarded: %v", err)
		} else {
			o.log.Errorf("script generation failed: %v", err)
		}
		return explorationResult
	}

	if err := o.store.Put(ctx, generated); err != nil {
		o.log.Warnf("persist script %s: %v", generated.ID, err)
		return explorationResult
	}

	o.log.Infof("script %s stored for fingerprint %.12s", generated.ID, fingerprint)
	// This run's authoritative result still came from the exploration.
	explorationResult.Method = types.MethodScript
	return explorationResult
}

// stale reports whether the stored script should be treated as a miss under
// the configured staleness policy. Stale entries are not deleted; a newer
// validated script supersedes them on Put.
func (o *Orchestrator) stale(s *types.GeneratedScript) bool {
	if o.maxAge <= 0 {
		return false
	}
	return time.Since(s.CreatedAt) > o.maxAge
}
