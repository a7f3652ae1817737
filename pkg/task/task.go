// Package task defines the immutable task specification and its deterministic
// fingerprint, which keys the script library.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Spec describes one unit of browser work: where to start, what to do, and
// the named parameters that constrain it. Specs are immutable after
// construction; identity is the fingerprint over all three fields.
type Spec struct {
	// Target is the URL or entry point the task starts from.
	Target string

	// Instructions is the free-form description of intent.
	Instructions string

	// Constraints are named parameters, e.g. {"role": "manager",
	// "min_salary": "50000000"}. Generated scripts are parameterized by
	// constraint names rather than trace-time literals.
	Constraints map[string]string
}

// New builds a Spec, copying the constraint map so later caller mutations
// cannot change the spec's identity.
func New(target, instructions string, constraints map[string]string) (Spec, error) {
	if target == "" {
		return Spec{}, fmt.Errorf("task: target is required")
	}
	if instructions == "" {
		return Spec{}, fmt.Errorf("task: instructions are required")
	}
	c := make(map[string]string, len(constraints))
	for k, v := range constraints {
		c[k] = v
	}
	return Spec{Target: target, Instructions: instructions, Constraints: c}, nil
}

// Fingerprint returns the deterministic identity of the spec: a hex SHA-256
// over a canonical rendering of target, instructions, and constraints with
// sorted keys. Same spec always yields the same fingerprint; any field change
// yields a different one.
func (s Spec) Fingerprint() string {
	var b strings.Builder
	writeField(&b, "target", s.Target)
	writeField(&b, "instructions", s.Instructions)

	keys := make([]string, 0, len(s.Constraints))
	for k := range s.Constraints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(&b, "constraint."+k, s.Constraints[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeField renders one field length-prefixed so that no combination of
// field values can collide with a different combination ("ab"+"c" vs "a"+"bc").
func writeField(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%d:%s=%d:%s;", len(name), name, len(value), value)
}

// Constraint returns the named constraint value and whether it is set.
func (s Spec) Constraint(name string) (string, bool) {
	v, ok := s.Constraints[name]
	return v, ok
}
