// Package harness runs the inliner over the golden cases under testdata and
// checks both the rewrite and the behaviour of the rewritten program.
package harness

import (
	"fmt"

	"github.com/715d/reflinline/internal/rtlib"
	"github.com/715d/reflinline/internal/trace"
)

// GuardName selects the guard a run installs.
type GuardName string

const (
	// GuardNone runs the decision routine's own body.
	GuardNone GuardName = ""
	// GuardFallback skips every attempt.
	GuardFallback GuardName = "fallback"
	// GuardAttempt takes every attempt.
	GuardAttempt GuardName = "attempt"
)

// Guard returns the guard g names.
func (g GuardName) Guard() (rtlib.Guard, error) {
	switch g {
	case GuardNone:
		return nil, nil
	case GuardFallback:
		return rtlib.AlwaysFallback, nil
	case GuardAttempt:
		return rtlib.NeverFallback, nil
	}
	return nil, fmt.Errorf("unknown guard %q", string(g))
}

// Preserving reports whether a run under g must behave like the original
// program.
func (g GuardName) Preserving() bool { return g != GuardAttempt }

// CaseOptions are the engine options of a test case.
type CaseOptions struct {
	Caching bool `yaml:"caching"`

	// Validate defaults to true.
	Validate *bool `yaml:"validate,omitempty"`
}

// ExpectedGroup is one (method, kind) group the rewrite must report.
type ExpectedGroup struct {
	Method  string     `yaml:"method"`
	Kind    trace.Kind `yaml:"kind"`
	ID      int        `yaml:"id"`
	Targets []string   `yaml:"targets"`
	Sites   int        `yaml:"sites"`
}

// ExpectedCall is one unexpected reflective call a run must report.
type ExpectedCall struct {
	Kind   trace.Kind `yaml:"kind"`
	Target string     `yaml:"target"`
}
