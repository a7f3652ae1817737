package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresTargetAndInstructions(t *testing.T) {
	_, err := New("", "do something", nil)
	require.Error(t, err)

	_, err = New("https://example.test", "", nil)
	require.Error(t, err)

	spec, err := New("https://example.test", "do something", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", spec.Target)
}

func TestFingerprintDeterministic(t *testing.T) {
	constraints := map[string]string{"role": "manager", "min_salary": "50000000"}

	a, err := New("https://example-jobs.test", "apply to all manager roles", constraints)
	require.NoError(t, err)
	b, err := New("https://example-jobs.test", "apply to all manager roles", constraints)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	// Repeated calls on the same spec are stable.
	assert.Equal(t, a.Fingerprint(), a.Fingerprint())
}

func TestFingerprintSensitiveToEveryField(t *testing.T) {
	base, err := New("https://example-jobs.test", "apply to all manager roles",
		map[string]string{"role": "manager"})
	require.NoError(t, err)

	variants := []Spec{}

	v, _ := New("https://other.test", base.Instructions, base.Constraints)
	variants = append(variants, v)

	v, _ = New(base.Target, "summarize the top 3 postings", base.Constraints)
	variants = append(variants, v)

	v, _ = New(base.Target, base.Instructions, map[string]string{"role": "engineer"})
	variants = append(variants, v)

	v, _ = New(base.Target, base.Instructions, map[string]string{"role": "manager", "min_salary": "1"})
	variants = append(variants, v)

	for _, variant := range variants {
		assert.NotEqual(t, base.Fingerprint(), variant.Fingerprint())
	}
}

func TestFingerprintConstraintOrderIrrelevant(t *testing.T) {
	a, err := New("https://example.test", "apply", map[string]string{"x": "1", "y": "2", "z": "3"})
	require.NoError(t, err)
	b, err := New("https://example.test", "apply", map[string]string{"z": "3", "y": "2", "x": "1"})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Shifting characters between adjacent fields must change the identity.
	a, err := New("https://example.test/a", "bc", nil)
	require.NoError(t, err)
	b, err := New("https://example.test/ab", "c", nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestConstraintsCopiedOnConstruction(t *testing.T) {
	constraints := map[string]string{"role": "manager"}
	spec, err := New("https://example.test", "apply", constraints)
	require.NoError(t, err)

	before := spec.Fingerprint()
	constraints["role"] = "intern"
	assert.Equal(t, before, spec.Fingerprint())
}
