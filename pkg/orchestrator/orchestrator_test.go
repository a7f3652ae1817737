package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/analyzer"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/generator"
	"github.com/entrhq/autopilot/pkg/library"
	"github.com/entrhq/autopilot/pkg/task"
	"github.com/entrhq/autopilot/pkg/types"
)

type fakeExplorer struct {
	trace *types.ExplorationTrace
	err   error
	calls int
	prior *types.ExplorationTrace
}

func (f *fakeExplorer) Explore(ctx context.Context, spec task.Spec) (*types.ExplorationTrace, error) {
	return f.ExploreWithHints(ctx, spec, nil)
}

func (f *fakeExplorer) ExploreWithHints(_ context.Context, _ task.Spec, prior *types.ExplorationTrace) (*types.ExplorationTrace, error) {
	f.calls++
	f.prior = prior
	return f.trace, f.err
}

type fakeRunner struct {
	result types.ExecutionResult
	calls  int
	last   *types.GeneratedScript
}

func (f *fakeRunner) Run(_ context.Context, s *types.GeneratedScript, _ task.Spec) types.ExecutionResult {
	f.calls++
	f.last = s
	return f.result
}

type passValidator struct{}

func (passValidator) Run(context.Context, *types.GeneratedScript, task.Spec) types.ExecutionResult {
	return types.ExecutionResult{Success: true, Method: types.MethodScript}
}

type failValidator struct{}

func (failValidator) Run(context.Context, *types.GeneratedScript, task.Spec) types.ExecutionResult {
	return types.ExecutionResult{Success: false, Method: types.MethodScript, Err: "terminal not reached"}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*types.GeneratedScript, error) {
	return nil, types.PersistenceError("disk unavailable")
}

func (failingStore) Put(context.Context, *types.GeneratedScript) error {
	return types.PersistenceError("disk unavailable")
}

func (failingStore) Close() error { return nil }

func jobsSpec(t *testing.T) task.Spec {
	t.Helper()
	spec, err := task.New(
		"https://example.com/jobs",
		"find engineering openings and list their titles",
		map[string]string{"role": "engineer"},
	)
	require.NoError(t, err)
	return spec
}

// structuralTrace is a trace a script can replay: selector-addressed steps,
// no interpretation, ending in an extraction.
func structuralTrace(fingerprint string) *types.ExplorationTrace {
	return &types.ExplorationTrace{
		TaskFingerprint: fingerprint,
		Steps: []types.Step{
			{Index: 0, Action: types.ActionNavigate, Value: "https://example.com/jobs", Outcome: types.OutcomeSuccess},
			{Index: 1, Action: types.ActionFill, Target: "input#search", Value: "engineer", Outcome: types.OutcomeSuccess},
			{Index: 2, Action: types.ActionClick, Target: "button#go", Outcome: types.OutcomeSuccess},
			{Index: 3, Action: types.ActionExtract, Target: "div.results", Outcome: types.OutcomeSuccess},
		},
		FinalResult: "3 engineering openings",
		Duration:    2 * time.Second,
	}
}

// interpretiveTrace needed the agent to read and weigh page content, so it
// must keep resolving through exploration.
func interpretiveTrace(fingerprint string) *types.ExplorationTrace {
	return &types.ExplorationTrace{
		TaskFingerprint: fingerprint,
		Steps: []types.Step{
			{Index: 0, Action: types.ActionNavigate, Value: "https://example.com/news", Outcome: types.OutcomeSuccess},
			{Index: 1, Action: types.ActionExtract, Target: "article", Rationale: "summarize the main points", Outcome: types.OutcomeSuccess},
		},
		Decisions: []types.Decision{
			{Step: 1, Question: "which article matters most", Choice: "the lead story"},
		},
		FinalResult: "markets rallied on rate news",
		Duration:    time.Second,
	}
}

func newOrchestrator(t *testing.T, explorer Explorer, runner Runner, store library.Store, validator generator.Validator) *Orchestrator {
	t.Helper()
	cfg := config.Default()
	anz := analyzer.New(cfg.Analyzer)
	o := New(explorer, anz, generator.New(validator, anz, nil), runner,
		store, cfg.Orchestrator, cfg.Library, nil)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestExecuteMissStoresValidatedScript(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)

	explorer := &fakeExplorer{trace: structuralTrace(spec.Fingerprint())}
	runner := &fakeRunner{}
	o := newOrchestrator(t, explorer, runner, store, passValidator{})

	result := o.Execute(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.MethodScript, result.Method)
	assert.Equal(t, "3 engineering openings", result.Payload)
	assert.Equal(t, 4, result.Steps)
	assert.Equal(t, 0, runner.calls, "no stored script existed to run")
	assert.Nil(t, explorer.prior)

	stored, err := store.Get(context.Background(), spec.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, types.StatusPassed, stored.Status)
	assert.Contains(t, stored.Params, "role")
}

func TestExecuteNotScriptableLeavesLibraryEmpty(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)

	explorer := &fakeExplorer{trace: interpretiveTrace(spec.Fingerprint())}
	o := newOrchestrator(t, explorer, &fakeRunner{}, store, passValidator{})

	result := o.Execute(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.MethodExploration, result.Method)
	assert.Equal(t, "markets rallied on rate news", result.Payload)

	_, err = store.Get(context.Background(), spec.Fingerprint())
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestExecuteHitSkipsExploration(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)
	prestore(t, store, spec, "scr_existing")

	explorer := &fakeExplorer{trace: structuralTrace(spec.Fingerprint())}
	runner := &fakeRunner{result: types.ExecutionResult{
		Success: true,
		Method:  types.MethodScript,
		Payload: "3 engineering openings",
		Steps:   4,
	}}
	o := newOrchestrator(t, explorer, runner, store, passValidator{})

	result := o.Execute(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.MethodScript, result.Method)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "scr_existing", runner.last.ID)
	assert.Equal(t, 0, explorer.calls, "a working script makes exploration unnecessary")

	stored, err := store.Get(context.Background(), spec.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, "scr_existing", stored.ID, "the stored script must not be regenerated")
}

func TestExecuteScriptFailureFallsBackToExploration(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)
	prestore(t, store, spec, "scr_brittle")

	// The fallback trace is interpretive, so no replacement script is
	// generated and the brittle one must survive untouched.
	explorer := &fakeExplorer{trace: interpretiveTrace(spec.Fingerprint())}
	runner := &fakeRunner{result: types.ExecutionResult{
		Success: false,
		Method:  types.MethodScript,
		Err:     "locate button#go: element detached",
	}}
	o := newOrchestrator(t, explorer, runner, store, passValidator{})

	result := o.Execute(context.Background(), spec)

	assert.True(t, result.Success, "the fallback exploration recovers the invocation")
	assert.Equal(t, types.MethodExploration, result.Method)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, explorer.calls)
	require.NotNil(t, explorer.prior, "the failed script's trace should inform the fallback")
	assert.Equal(t, spec.Fingerprint(), explorer.prior.TaskFingerprint)

	stored, err := store.Get(context.Background(), spec.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, "scr_brittle", stored.ID)
}

func TestExecuteScriptFailureReplacesScriptWhenStillScriptable(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)
	prestore(t, store, spec, "scr_old")

	explorer := &fakeExplorer{trace: structuralTrace(spec.Fingerprint())}
	runner := &fakeRunner{result: types.ExecutionResult{Success: false, Method: types.MethodScript, Err: "timeout"}}
	o := newOrchestrator(t, explorer, runner, store, passValidator{})

	result := o.Execute(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, types.MethodScript, result.Method)

	stored, err := store.Get(context.Background(), spec.Fingerprint())
	require.NoError(t, err)
	assert.NotEqual(t, "scr_old", stored.ID, "a newer validated script supersedes the failed one")
}

func TestExecuteExplorationFailure(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)

	explorer := &fakeExplorer{err: types.ExplorationError("step budget exhausted after 50 steps")}
	o := newOrchestrator(t, explorer, &fakeRunner{}, store, passValidator{})

	result := o.Execute(context.Background(), spec)

	assert.False(t, result.Success)
	assert.Equal(t, types.MethodExploration, result.Method)
	assert.Contains(t, result.Err, "step budget exhausted")
}

func TestExecuteValidationFailureFallsBackToExplorationResult(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)

	explorer := &fakeExplorer{trace: structuralTrace(spec.Fingerprint())}
	o := newOrchestrator(t, explorer, &fakeRunner{}, store, failValidator{})

	result := o.Execute(context.Background(), spec)

	assert.True(t, result.Success, "validation failure must not fail the invocation")
	assert.Equal(t, types.MethodExploration, result.Method)
	assert.Equal(t, "3 engineering openings", result.Payload)

	_, err = store.Get(context.Background(), spec.Fingerprint())
	assert.ErrorIs(t, err, library.ErrNotFound, "a FAILED script must never be persisted")
}

func TestExecuteStaleScriptTreatedAsMiss(t *testing.T) {
	spec := jobsSpec(t)
	store, err := library.NewFileStore(t.TempDir())
	require.NoError(t, err)
	old := prestore(t, store, spec, "scr_ancient")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Put(context.Background(), old))

	explorer := &fakeExplorer{trace: interpretiveTrace(spec.Fingerprint())}
	runner := &fakeRunner{}

	cfg := config.Default()
	cfg.Library.MaxScriptAge = time.Hour
	anz := analyzer.New(cfg.Analyzer)
	o := New(explorer, anz, generator.New(passValidator{}, anz, nil), runner,
		store, cfg.Orchestrator, cfg.Library, nil)
	t.Cleanup(func() { _ = o.Close() })

	result := o.Execute(context.Background(), spec)

	assert.True(t, result.Success)
	assert.Equal(t, 0, runner.calls, "a stale script is a miss, not a candidate")
	assert.Equal(t, 1, explorer.calls)
	require.NotNil(t, explorer.prior, "the stale script's trace still seeds the exploration")

	stored, err := store.Get(context.Background(), spec.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, "scr_ancient", stored.ID, "staleness never deletes entries")
}

func TestExecutePersistenceFailureDoesNotFailInvocation(t *testing.T) {
	spec := jobsSpec(t)

	explorer := &fakeExplorer{trace: structuralTrace(spec.Fingerprint())}
	o := newOrchestrator(t, explorer, &fakeRunner{}, failingStore{}, passValidator{})

	result := o.Execute(context.Background(), spec)

	// The library degrades: the lookup became a miss and the write failed,
	// so the result reports the exploration that actually ran rather than a
	// script that was never stored.
	assert.True(t, result.Success, "a broken library must not fail invocations")
	assert.Equal(t, types.MethodExploration, result.Method)
	assert.Equal(t, "3 engineering openings", result.Payload)
}

// prestore writes a validated script for the spec into the store and returns
// it.
func prestore(t *testing.T, store library.Store, spec task.Spec, id string) *types.GeneratedScript {
	t.Helper()
	trace := structuralTrace(spec.Fingerprint())
	s := &types.GeneratedScript{
		ID:          id,
		Fingerprint: spec.Fingerprint(),
		Body:        "version: 1\ninstructions:\n  - op: navigate\n    target: https://example.com/jobs\n",
		Status:      types.StatusPassed,
		CreatedAt:   time.Now(),
		Trace:       trace,
	}
	require.NoError(t, store.Put(context.Background(), s))
	return s
}
