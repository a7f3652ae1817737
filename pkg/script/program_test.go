package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/types"
)

func sampleProgram() *Program {
	return &Program{
		Version: CurrentVersion,
		Params:  []string{"min_salary", "role"},
		Handlers: []Handler{
			{
				Trigger:  "cookie_banner",
				Selector: "div.cookie-consent",
				Instruction: Instruction{
					Op: OpAct, Action: types.ActionClick, Target: "button#accept-cookies",
				},
			},
		},
		Instructions: []Instruction{
			{Op: OpNavigate, Target: "https://example-jobs.test"},
			{Op: OpAct, Action: types.ActionFill, Target: "input#role", Value: "{{role}}"},
			{Op: OpAct, Action: types.ActionFill, Target: "input#salary", Value: "{{min_salary}}"},
			{Op: OpAct, Action: types.ActionClick, Target: "button#search"},
			{Op: OpWait, Target: "div.results", State: "visible"},
			{Op: OpAct, Action: types.ActionExtract, Target: "div.results"},
		},
		Terminal: "div.results",
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	p := sampleProgram()

	body, err := p.Render()
	require.NoError(t, err)

	parsed, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestParseRejectsBadPrograms(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not yaml", "{{{{"},
		{"wrong version", "version: 99\ninstructions:\n  - op: navigate\n    target: x\n"},
		{"no instructions", "version: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.body)
			assert.Error(t, err)
		})
	}
}

func TestBindSubstitutesParams(t *testing.T) {
	out, err := bind("{{role}} paying {{min_salary}}", map[string]string{
		"role": "manager", "min_salary": "50000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "manager paying 50000000", out)
}

func TestBindUnknownParamFails(t *testing.T) {
	_, err := bind("{{role}}", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound parameters: role")
}

func TestBindLeavesPlainTextAlone(t *testing.T) {
	out, err := bind("button#search", nil)
	require.NoError(t, err)
	assert.Equal(t, "button#search", out)
}

func TestParamRefs(t *testing.T) {
	p := sampleProgram()
	assert.Equal(t, []string{"min_salary", "role"}, p.ParamRefs())
}
