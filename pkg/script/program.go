// Package script defines the executable form of a generated automation
// script: an ordered instruction program with obstacle handlers, rendered to
// YAML as the script body, plus the runner that executes it through the
// browser capability.
package script

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/autopilot/pkg/types"
)

// Op is a structural automation instruction kind.
type Op string

const (
	OpNavigate Op = "navigate"
	OpLocate   Op = "locate"
	OpAct      Op = "act"
	OpWait     Op = "wait"
)

// Instruction is one step of a program. Value may reference a task parameter
// as {{name}}, bound from the task's constraints at run time.
type Instruction struct {
	Op Op `yaml:"op"`

	// Action is the browser action for OpAct instructions.
	Action types.ActionKind `yaml:"action,omitempty"`

	// Target is the selector or URL the instruction addresses.
	Target string `yaml:"target,omitempty"`

	// Value is instruction input, possibly parameterized.
	Value string `yaml:"value,omitempty"`

	// State is the wait condition for OpWait ("visible", "hidden", ...).
	State string `yaml:"state,omitempty"`
}

// Handler clears one predictable obstacle. Trigger is a glob over obstacle
// kinds; when the obstacle fires during a run, the handler's instruction is
// executed and the failed step retried once.
type Handler struct {
	Trigger     string      `yaml:"trigger"`
	Selector    string      `yaml:"selector,omitempty"`
	Instruction Instruction `yaml:"instruction"`
}

// Program is the structured form of a generated script.
type Program struct {
	// Version guards against format drift in persisted scripts.
	Version int `yaml:"version"`

	// Params lists the task parameters the program references.
	Params []string `yaml:"params,omitempty"`

	// Handlers are tried whenever an instruction fails; a handler fires when
	// its selector is visible and its trigger matches the obstacle kind the
	// selector indicates.
	Handlers []Handler `yaml:"handlers,omitempty"`

	// Instructions is the main sequence.
	Instructions []Instruction `yaml:"instructions"`

	// Terminal is the success condition: a selector that must be present,
	// or empty if completing the sequence is sufficient.
	Terminal string `yaml:"terminal,omitempty"`
}

// CurrentVersion is the program format version this package writes.
const CurrentVersion = 1

// Render serializes the program to the script body text.
func (p *Program) Render() (string, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("script: render program: %w", err)
	}
	return string(out), nil
}

// Parse decodes a script body back into a program.
func Parse(body string) (*Program, error) {
	var p Program
	if err := yaml.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("script: parse program: %w", err)
	}
	if p.Version != CurrentVersion {
		return nil, fmt.Errorf("script: unsupported program version %d", p.Version)
	}
	if len(p.Instructions) == 0 {
		return nil, fmt.Errorf("script: program has no instructions")
	}
	return &p, nil
}

var paramPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_.-]+)\}\}`)

// bind substitutes {{name}} references in s from params. Unknown references
// are an error: a script must not run with unbound parameters.
func bind(s string, params map[string]string) (string, error) {
	var missing []string
	out := paramPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := paramPattern.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("script: unbound parameters: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ParamRefs returns the sorted set of parameter names referenced anywhere in
// the program.
func (p *Program) ParamRefs() []string {
	seen := map[string]bool{}
	collect := func(s string) {
		for _, m := range paramPattern.FindAllStringSubmatch(s, -1) {
			seen[m[1]] = true
		}
	}
	for _, ins := range p.Instructions {
		collect(ins.Target)
		collect(ins.Value)
	}
	for _, h := range p.Handlers {
		collect(h.Instruction.Target)
		collect(h.Instruction.Value)
	}
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}
