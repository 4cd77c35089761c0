package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/interp"
	"github.com/715d/reflinline/internal/rtlib"
	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
	"github.com/715d/reflinline/pkg/inliner"
)

// RunConfiguration is one call of the rewritten program.
type RunConfiguration struct {
	// Name is a descriptive name for this run.
	Name string `yaml:"name"`

	// Call is the signature of the static method to call.
	Call string `yaml:"call"`

	// Args are the call arguments. Integers are passed as int, other
	// scalars as they decode.
	Args []any `yaml:"args,omitempty"`

	// Guard selects how the decision routine answers.
	Guard GuardName `yaml:"guard,omitempty"`

	// Want is the formatted result, or "throws <class>".
	Want string `yaml:"want"`

	// Unexpected lists the unexpected reflective calls the run reports.
	Unexpected []ExpectedCall `yaml:"unexpected,omitempty"`
}

// TestCase represents a single test scenario.
type TestCase struct {
	// Dir is the directory containing the program and trace.
	Dir string `yaml:"-"`

	Options CaseOptions `yaml:"options"`

	// Groups are the (method, kind) groups the rewrite reports, in order.
	Groups []ExpectedGroup `yaml:"groups"`

	// Registry holds the expected registry entries per kind name.
	Registry map[string][]string `yaml:"registry"`

	// Runs are executed against the rewritten program.
	Runs []RunConfiguration `yaml:"runs"`

	// ExpectedErrors lists error substrings the rewrite may fail with.
	ExpectedErrors []string `yaml:"expected_errors"`
}

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// RunResult represents the result of a single run.
type RunResult struct {
	Run     RunConfiguration
	Success bool
	Message string
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// Result is the engine's report, nil when the rewrite failed.
	Result *inliner.Result

	// RunResults contains results for each run.
	RunResults []RunResult

	// Success indicates if the test passed.
	Success bool

	// Message provides a summary of the result.
	Message string

	// Details lists the rewrite mismatches.
	Details []string
}

// Run rewrites the program of tc and executes each of its runs.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	dir := filepath.Join(h.root, tc.Dir)

	s := LoadProgram(t, dir)
	o := LoadTrace(t, dir, s)
	validate := tc.Options.Validate == nil || *tc.Options.Validate

	res, err := inliner.New(s, inliner.Options{Caching: tc.Options.Caching, Validate: validate}).Run(o)
	if err != nil {
		for _, expectedErr := range tc.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &TestResult{TestCase: tc, Success: true, Message: fmt.Sprintf("Got expected error: %v", err)}
			}
		}
		require.NoError(t, err)
	}
	result := &TestResult{TestCase: tc, Result: res}
	if len(tc.ExpectedErrors) > 0 {
		result.Details = append(result.Details, fmt.Sprintf("Expected one of errors %q, got none", tc.ExpectedErrors))
	}
	result.Details = append(result.Details, validateRewrite(tc, res)...)
	result.Details = append(result.Details, validateRuntimeRegistry(t, s, res)...)

	// Step 1: run each configuration on the rewritten program.
	failed := 0
	for _, run := range tc.Runs {
		rr := h.runConfiguration(t, dir, s, run)
		if !rr.Success {
			failed++
		}
		result.RunResults = append(result.RunResults, *rr)
	}

	// Step 2: summarize.
	result.Success = len(result.Details) == 0 && failed == 0
	if result.Success {
		result.Message = fmt.Sprintf("Rewrite matched, all %d runs passed", len(tc.Runs))
		return result
	}
	var msgs []string
	if len(result.Details) > 0 {
		msgs = append(msgs, "[rewrite]:\n  "+strings.Join(result.Details, "\n  "))
	}
	for _, rr := range result.RunResults {
		if !rr.Success {
			msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s", rr.Run.Name, rr.Message, strings.Join(rr.Details, "\n  ")))
		}
	}
	result.Message = fmt.Sprintf("%d/%d runs failed:\n%s", failed, len(tc.Runs), strings.Join(msgs, "\n"))
	return result
}

// runConfiguration calls run.Call on the rewritten scene and, when the guard
// keeps the original behaviour, on a fresh copy of the original program too.
func (h *TestHarness) runConfiguration(t *testing.T, dir string, rewritten *scene.Scene, run RunConfiguration) *RunResult {
	t.Helper()
	rr := &RunResult{Run: run}

	guard, err := run.Guard.Guard()
	if err != nil {
		rr.Message = "Invalid expected.yaml"
		rr.Details = []string{err.Error()}
		return rr
	}
	args := convertArgs(run.Args)

	var rec rtlib.Recorder
	m := interp.New(rewritten)
	m.Guard = guard
	m.Handler = &rec
	got, err := outcome(m.Call(run.Call, args...))
	if err != nil {
		rr.Message = "Run failed"
		rr.Details = []string{err.Error()}
		return rr
	}

	if got != run.Want {
		rr.Details = append(rr.Details, fmt.Sprintf("Result mismatch: expected %s, got %s", run.Want, got))
	}
	if run.Guard.Preserving() {
		orig, err := outcome(interp.New(LoadProgram(t, dir)).Call(run.Call, args...))
		switch {
		case err != nil:
			rr.Details = append(rr.Details, "Original program failed: "+err.Error())
		case orig != got:
			rr.Details = append(rr.Details, fmt.Sprintf("Behaviour changed: original gives %s, rewritten gives %s", orig, got))
		}
	}
	var calls []ExpectedCall
	for _, c := range rec.Calls() {
		calls = append(calls, ExpectedCall{Kind: c.Kind, Target: c.Target})
	}
	if !assert.ObjectsAreEqual(run.Unexpected, calls) {
		rr.Details = append(rr.Details, fmt.Sprintf("Unexpected calls mismatch: expected %v, got %v", run.Unexpected, calls))
	}

	rr.Success = len(rr.Details) == 0
	if rr.Success {
		rr.Message = "Run passed"
	} else {
		rr.Message = fmt.Sprintf("Run failed with %d mismatches", len(rr.Details))
	}
	return rr
}

// validateRewrite compares the engine's report with the expected groups and
// registry.
func validateRewrite(tc *TestCase, res *inliner.Result) []string {
	var details []string
	var groups []ExpectedGroup
	for _, g := range res.Groups {
		groups = append(groups, ExpectedGroup{Method: g.Method, Kind: g.Kind, ID: g.ID, Targets: g.Targets, Sites: g.Sites})
	}
	if len(groups) != len(tc.Groups) {
		details = append(details, fmt.Sprintf("Group count mismatch: expected %d, got %d", len(tc.Groups), len(groups)))
	}
	for i := range min(len(groups), len(tc.Groups)) {
		if !assert.ObjectsAreEqual(tc.Groups[i], groups[i]) {
			details = append(details, fmt.Sprintf("Group %d mismatch: expected %+v, got %+v", i, tc.Groups[i], groups[i]))
		}
	}

	for _, k := range trace.Kinds() {
		want, got := tc.Registry[k.String()], res.Registry[k.String()]
		if len(want) == 0 && len(got) == 0 {
			continue
		}
		if !assert.ObjectsAreEqual(want, got) {
			details = append(details, fmt.Sprintf("Registry mismatch for %s: expected %q, got %q", k, want, got))
		}
	}
	for name := range tc.Registry {
		if _, err := trace.ParseKind(name); err != nil {
			details = append(details, "Invalid expected.yaml: "+err.Error())
		}
	}
	return details
}

// validateRuntimeRegistry checks that running the registry initializer fills
// the run-time sets with exactly the reported entries.
func validateRuntimeRegistry(t *testing.T, s *scene.Scene, res *inliner.Result) []string {
	t.Helper()
	if len(res.Groups) == 0 {
		return nil
	}
	m := interp.New(s)
	_, err := m.Call(rtlib.Clinit())
	require.NoError(t, err)

	var details []string
	for _, k := range trace.Kinds() {
		keys := make([]string, len(res.Registry[k.String()]))
		for i, key := range res.Registry[k.String()] {
			keys[i] = fmt.Sprintf("%q", key)
		}
		want := "java.util.HashSet{" + strings.Join(keys, ", ") + "}"
		if got := interp.Format(m.Static(rtlib.SetField(k).Signature())); got != want {
			details = append(details, fmt.Sprintf("Run-time set %s: expected %s, got %s", k, want, got))
		}
	}
	return details
}

// outcome renders the result of a call, or the class of what it threw. Any
// other error is returned.
func outcome(v any, err error) (string, error) {
	var th *interp.Throw
	if errors.As(err, &th) {
		return "throws " + th.Class(), nil
	}
	if err != nil {
		return "", err
	}
	return interp.Format(v), nil
}

// convertArgs maps decoded YAML scalars to interpreter values.
func convertArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch a := a.(type) {
		case int:
			out[i] = int32(a)
		case bool:
			if a {
				out[i] = int32(1)
			} else {
				out[i] = int32(0)
			}
		default:
			out[i] = a
		}
	}
	return out
}
