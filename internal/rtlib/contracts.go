package rtlib

import (
	"sync"

	"github.com/715d/reflinline/internal/trace"
)

// Guard decides, at each guarded alternative, whether to skip it. The
// decision routine returns the negation of ShouldTakeFallback, so a guard
// that always returns true reproduces the original program.
type Guard interface {
	ShouldTakeFallback() bool
}

// GuardFunc adapts a function to Guard.
type GuardFunc func() bool

func (f GuardFunc) ShouldTakeFallback() bool { return f() }

// Common guards.
var (
	AlwaysFallback Guard = GuardFunc(func() bool { return true })
	NeverFallback  Guard = GuardFunc(func() bool { return false })
)

// Handler is notified when a rewritten call site is reached with a handle
// that has no registry entry for that site. A non-nil error aborts the run.
type Handler interface {
	UnexpectedCall(kind trace.Kind, target string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(kind trace.Kind, target string) error

func (f HandlerFunc) UnexpectedCall(kind trace.Kind, target string) error { return f(kind, target) }

// Call is one unexpected call reported to a Recorder.
type Call struct {
	Kind   trace.Kind `json:"kind" yaml:"kind"`
	Target string     `json:"target" yaml:"target"`
}

// Recorder is a Handler that records every unexpected call and never aborts.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) UnexpectedCall(kind trace.Kind, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Kind: kind, Target: target})
	return nil
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
