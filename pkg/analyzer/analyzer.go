// Package analyzer scores exploration traces for determinism and classifies
// tasks as scriptable or not. Analysis is a pure function over the trace: no
// I/O, no re-running the task.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/types"
)

// interpretationKeywords mark rationales that required semantic understanding
// of page content rather than structural matching. A step whose rationale
// contains one of these cannot be replayed by a script.
var interpretationKeywords = []string{
	"relevant", "best", "most", "summarize", "analyze",
	"determine", "evaluate", "assess", "judge", "in your own words",
}

// Analyzer classifies traces against configured thresholds.
type Analyzer struct {
	cfg      config.AnalyzerConfig
	patterns *obstaclePatterns
}

// New creates an analyzer with the given thresholds.
func New(cfg config.AnalyzerConfig) *Analyzer {
	return &Analyzer{cfg: cfg, patterns: defaultObstaclePatterns()}
}

// Analyze scores the trace and returns the classification. The verdict is
// SCRIPTABLE only when determinism and obstacle predictability strictly
// exceed their thresholds and decision complexity stays strictly below its
// own; scores exactly on a threshold classify NOT_SCRIPTABLE, preferring the
// always-correct exploration path over a possibly-brittle script.
func (a *Analyzer) Analyze(trace *types.ExplorationTrace) types.RepeatabilityScore {
	score := types.RepeatabilityScore{
		Determinism:            a.determinism(trace),
		ObstaclePredictability: a.obstaclePredictability(trace.Obstacles),
		DecisionComplexity:     a.decisionComplexity(trace),
	}

	scriptable := score.Determinism > a.cfg.DeterminismThreshold &&
		score.ObstaclePredictability > a.cfg.PredictabilityThreshold &&
		score.DecisionComplexity < a.cfg.ComplexityThreshold

	if scriptable {
		score.Verdict = types.VerdictScriptable
	} else {
		score.Verdict = types.VerdictNotScriptable
	}
	score.Reasoning = a.explain(score)
	return score
}

// determinism is the fraction of steps whose action was a direct function of
// the observed state alone: structural targets, no interpretive rationale.
func (a *Analyzer) determinism(trace *types.ExplorationTrace) float64 {
	if len(trace.Steps) == 0 {
		return 0
	}
	structural := 0
	for _, step := range trace.Steps {
		if isStructuralStep(step) {
			structural++
		}
	}
	return float64(structural) / float64(len(trace.Steps))
}

// obstaclePredictability is the fraction of obstacles that followed a
// recognizable, re-triggerable pattern. No obstacles means fully predictable.
func (a *Analyzer) obstaclePredictability(obstacles []types.Obstacle) float64 {
	if len(obstacles) == 0 {
		return 1
	}
	predictable := 0
	for _, o := range obstacles {
		if a.PredictableObstacle(o) {
			predictable++
		}
	}
	return float64(predictable) / float64(len(obstacles))
}

// PredictableObstacle reports whether a single obstacle counts as
// re-triggerable: its kind follows a recognized pattern and its likelihood
// clears the configured floor. The generator consults this when deciding
// which obstacles a script may carry handlers for.
func (a *Analyzer) PredictableObstacle(o types.Obstacle) bool {
	return a.patterns.Predictable(o) && o.Likelihood >= a.cfg.ObstacleLikelihoodFloor
}

// decisionComplexity is the proportion of steps whose rationale required
// semantic interpretation of page content. Steps with recorded decision
// points count as interpretive as well.
func (a *Analyzer) decisionComplexity(trace *types.ExplorationTrace) float64 {
	if len(trace.Steps) == 0 {
		return 1
	}
	decisionSteps := make(map[int]bool, len(trace.Decisions))
	for _, d := range trace.Decisions {
		decisionSteps[d.Step] = true
	}

	interpretive := 0
	for _, step := range trace.Steps {
		if decisionSteps[step.Index] || requiresInterpretation(step.Rationale) {
			interpretive++
		}
	}
	return float64(interpretive) / float64(len(trace.Steps))
}

func isStructuralStep(step types.Step) bool {
	if requiresInterpretation(step.Rationale) {
		return false
	}
	switch step.Action {
	case types.ActionNavigate, types.ActionScroll, types.ActionWait:
		return true
	case types.ActionClick, types.ActionFill, types.ActionExtract:
		// Structural steps address elements by selector or label.
		return step.Target != ""
	default:
		return false
	}
}

func requiresInterpretation(rationale string) bool {
	lower := strings.ToLower(rationale)
	for _, kw := range interpretationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (a *Analyzer) explain(s types.RepeatabilityScore) string {
	lines := []string{
		verdictLine(s.Determinism > a.cfg.DeterminismThreshold,
			fmt.Sprintf("determinism %.2f vs threshold %.2f", s.Determinism, a.cfg.DeterminismThreshold)),
		verdictLine(s.ObstaclePredictability > a.cfg.PredictabilityThreshold,
			fmt.Sprintf("obstacle predictability %.2f vs threshold %.2f", s.ObstaclePredictability, a.cfg.PredictabilityThreshold)),
		verdictLine(s.DecisionComplexity < a.cfg.ComplexityThreshold,
			fmt.Sprintf("decision complexity %.2f vs threshold %.2f", s.DecisionComplexity, a.cfg.ComplexityThreshold)),
	}
	return strings.Join(lines, "\n")
}

func verdictLine(ok bool, detail string) string {
	if ok {
		return "pass: " + detail
	}
	return "fail: " + detail
}
