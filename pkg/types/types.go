// Package types defines the shared domain model for the automation pipeline:
// exploration traces, repeatability scores, generated scripts, and execution
// results. All types here are plain data; behavior lives in the pipeline
// packages that produce and consume them.
package types

import "time"

// ActionKind identifies a browser action recorded in a trace step.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionFill     ActionKind = "fill"
	ActionExtract  ActionKind = "extract"
	ActionScroll   ActionKind = "scroll"
	ActionWait     ActionKind = "wait"
)

// StepOutcome records whether a step proceeded normally or hit an obstacle.
type StepOutcome string

const (
	OutcomeSuccess  StepOutcome = "success"
	OutcomeObstacle StepOutcome = "obstacle"
)

// Step is one entry in an exploration trace. It captures the full decision
// context for the step so repeatability can be assessed without re-running
// the task.
type Step struct {
	Index       int         `json:"index" yaml:"index"`
	Observation string      `json:"observation" yaml:"observation"`
	Action      ActionKind  `json:"action" yaml:"action"`
	Target      string      `json:"target,omitempty" yaml:"target,omitempty"`
	Value       string      `json:"value,omitempty" yaml:"value,omitempty"`
	Outcome     StepOutcome `json:"outcome" yaml:"outcome"`
	Rationale   string      `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Timestamp   time.Time   `json:"timestamp" yaml:"timestamp"`
}

// ObstacleKind classifies an obstacle encountered during exploration.
type ObstacleKind string

const (
	ObstacleCookieBanner   ObstacleKind = "cookie_banner"
	ObstacleModal          ObstacleKind = "modal"
	ObstacleAd             ObstacleKind = "ad"
	ObstacleCaptcha        ObstacleKind = "captcha"
	ObstacleRandomRedirect ObstacleKind = "random_redirect"
	ObstacleBotDetection   ObstacleKind = "bot_detection"
)

// Obstacle is an unexpected page state the agent had to work around.
// Likelihood is the agent's estimate of the obstacle re-appearing on a
// repeat run; Handling is the strategy that cleared it.
type Obstacle struct {
	Kind       ObstacleKind `json:"kind" yaml:"kind"`
	Selector   string       `json:"selector,omitempty" yaml:"selector,omitempty"`
	Likelihood float64      `json:"likelihood" yaml:"likelihood"`
	Handling   string       `json:"handling" yaml:"handling"`
	AtStep     int          `json:"at_step" yaml:"at_step"`
}

// Decision records a point where the agent chose between alternatives based
// on page content rather than structure alone.
type Decision struct {
	Step         int      `json:"step" yaml:"step"`
	Question     string   `json:"question" yaml:"question"`
	Choice       string   `json:"choice" yaml:"choice"`
	Reasoning    string   `json:"reasoning" yaml:"reasoning"`
	Alternatives []string `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
}

// ExplorationTrace is the ordered record of one live exploration run.
// It is owned by the analyzer/generator pipeline for the duration of a single
// invocation and is not persisted on its own, only embedded in a generated
// script for audit.
type ExplorationTrace struct {
	TaskFingerprint string        `json:"task_fingerprint" yaml:"task_fingerprint"`
	Steps           []Step        `json:"steps" yaml:"steps"`
	Obstacles       []Obstacle    `json:"obstacles,omitempty" yaml:"obstacles,omitempty"`
	Decisions       []Decision    `json:"decisions,omitempty" yaml:"decisions,omitempty"`
	FinalResult     string        `json:"final_result,omitempty" yaml:"final_result,omitempty"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// Verdict is the analyzer's classification of a trace.
type Verdict string

const (
	VerdictScriptable    Verdict = "SCRIPTABLE"
	VerdictNotScriptable Verdict = "NOT_SCRIPTABLE"
)

// RepeatabilityScore is the analyzer's assessment of one trace. All component
// scores are in [0, 1]. DecisionComplexity is a penalty: higher means more
// semantic interpretation was required. Recomputed per exploration, never
// mutated.
type RepeatabilityScore struct {
	Determinism            float64 `json:"determinism"`
	ObstaclePredictability float64 `json:"obstacle_predictability"`
	DecisionComplexity     float64 `json:"decision_complexity"`
	Verdict                Verdict `json:"verdict"`
	Reasoning              string  `json:"reasoning,omitempty"`
}

// Scriptable reports whether the verdict allows script generation.
func (s RepeatabilityScore) Scriptable() bool {
	return s.Verdict == VerdictScriptable
}

// ScriptStatus tracks a generated script's validation lifecycle.
type ScriptStatus string

const (
	StatusUnvalidated ScriptStatus = "UNVALIDATED"
	StatusPassed      ScriptStatus = "PASSED"
	StatusFailed      ScriptStatus = "FAILED"
)

// GeneratedScript is an executable automation script produced from a
// scriptable trace. Only scripts with Status PASSED are ever persisted to the
// script library. A newer script for the same fingerprint supersedes the old
// one; entries are replaced, never edited in place.
type GeneratedScript struct {
	ID          string           `json:"id" yaml:"id"`
	Fingerprint string           `json:"fingerprint" yaml:"fingerprint"`
	Body        string           `json:"body" yaml:"body"`
	Params      []string         `json:"params,omitempty" yaml:"params,omitempty"`
	Status      ScriptStatus     `json:"status" yaml:"status"`
	CreatedAt   time.Time        `json:"created_at" yaml:"created_at"`
	Trace       *ExplorationTrace `json:"trace,omitempty" yaml:"trace,omitempty"`
}

// Method identifies which execution path produced a result.
type Method string

const (
	MethodScript      Method = "SCRIPT"
	MethodExploration Method = "EXPLORATION"
)

// ExecutionResult is the unified outcome returned to the caller. It is
// transient and never persisted by the pipeline.
type ExecutionResult struct {
	Success  bool          `json:"success"`
	Method   Method        `json:"method"`
	Payload  string        `json:"payload,omitempty"`
	Steps    int           `json:"steps,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      string        `json:"error,omitempty"`
}
