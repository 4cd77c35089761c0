// Package inliner rewrites reflective calls into guarded direct calls.
//
// For every method a trace reports, each reflective call site of a traced kind
// is replaced by one speculative attempt per observed target, each guarded by
// an opaque decision, followed by the original call as the fallback. The
// engine also records every (id, target) pair in the run-time registry so the
// rewritten program can recognise handles the trace did not predict.
package inliner

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/ir/scalar"
	"github.com/715d/reflinline/internal/rtlib"
	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
)

// ErrUnresolvedTarget is returned when a traced target does not name a class,
// constructor or method of the scene.
var ErrUnresolvedTarget = errors.New("unresolved target")

// ErrInvalidDecision is returned by Run when Options.Decision is not a static
// boolean method without parameters.
var ErrInvalidDecision = errors.New("decision routine must be a static boolean method without parameters")

// Oracle reports which targets reflective calls reached. *trace.Oracle
// implements it.
type Oracle interface {
	Methods() []*scene.Method
	Targets(m *scene.Method, k trace.Kind) []string
}

// Options holds configuration options for the engine.
type Options struct {
	// Decision is the static boolean method guarding each attempt. It
	// defaults to rtlib.Decision.
	Decision *ir.MethodRef

	Caching  bool // Mark checked handles so known-call routines run once per handle.
	Validate bool // Validate each body after each rewrite step.
}

// Engine rewrites the reflective calls of one scene. The id counter lives as
// long as the engine, so running it over several oracles never reuses an id.
type Engine struct {
	scene    *scene.Scene
	opts     Options
	decision *ir.MethodRef
	ctx      *Context

	initialized bool
}

// New creates an engine for s.
func New(s *scene.Scene, opts Options) *Engine {
	decision := opts.Decision
	if decision == nil {
		decision = rtlib.Decision
	}
	return &Engine{
		scene:    s,
		opts:     opts,
		decision: decision,
		ctx:      NewContext(),
	}
}

// Context returns the engine's id counter and registry.
func (e *Engine) Context() *Context { return e.ctx }

// GroupReport describes the rewrite of one (method, kind) group.
type GroupReport struct {
	Method  string     `json:"method" yaml:"method"`
	Kind    trace.Kind `json:"kind" yaml:"kind"`
	ID      int        `json:"id" yaml:"id"`
	Targets []string   `json:"targets" yaml:"targets"`
	Sites   int        `json:"sites" yaml:"sites"`
}

// Result is the outcome of one Run.
type Result struct {
	Groups []GroupReport `json:"groups" yaml:"groups"`

	// Registry lists the registry entries emitted by the run, keyed by
	// kind name.
	Registry map[string][]string `json:"registry" yaml:"registry"`
}

// Sites returns the total number of rewritten call sites.
func (r *Result) Sites() int {
	n := 0
	for _, g := range r.Groups {
		n += g.Sites
	}
	return n
}

// Methods returns the signatures of the methods that had at least one group,
// in processing order.
func (r *Result) Methods() []string {
	var out []string
	for i, g := range r.Groups {
		if i == 0 || r.Groups[i-1].Method != g.Method {
			out = append(out, g.Method)
		}
	}
	return out
}

// Run rewrites every call site o reports.
//
// The registry is emitted for every planned group before any group is
// rewritten. When a group fails, Run stops there: the groups rewritten so far
// stay rewritten and the registry keeps the entries of the groups that were
// not reached.
func (e *Engine) Run(o Oracle) (*Result, error) {
	// Step 1: Install the support classes, once per engine.
	if err := e.init(); err != nil {
		return nil, err
	}

	// Step 2: Allocate ids. The registry and the rewrite both use this plan.
	groups := e.ctx.Plan(o)

	// Step 3: Emit the registry.
	if err := e.emitRegistry(groups); err != nil {
		return nil, err
	}

	// Step 4: Rewrite each group, method by method and kind by kind.
	res := &Result{Registry: make(map[string][]string)}
	for _, g := range groups {
		sites, err := e.rewrite(g)
		if err != nil {
			return nil, err
		}
		res.Groups = append(res.Groups, GroupReport{
			Method:  g.Method.Signature(),
			Kind:    g.Kind,
			ID:      g.ID,
			Targets: g.Targets,
			Sites:   sites,
		})
		for _, t := range g.Targets {
			res.Registry[g.Kind.String()] = append(res.Registry[g.Kind.String()], g.Key(t))
		}
	}

	slog.Debug("rewrite complete",
		"groups", len(res.Groups),
		"sites", res.Sites(),
		"nextID", e.ctx.NextID())
	return res, nil
}

func (e *Engine) init() error {
	if e.initialized {
		return nil
	}
	if d := e.decision; !d.Static || len(d.Params) != 0 || d.Return != ir.Boolean {
		return fmt.Errorf("%w: %s", ErrInvalidDecision, d.Signature())
	}
	if err := rtlib.Install(e.scene); err != nil {
		return fmt.Errorf("installing run-time library: %w", err)
	}
	if e.opts.Caching {
		if err := e.addCaching(); err != nil {
			return err
		}
	}
	e.initialized = true
	return nil
}

// rewrite splices one group into its method's body, then validates and
// normalizes the body.
func (e *Engine) rewrite(g *Group) (int, error) {
	body, err := g.Method.RetrieveBody()
	if err != nil {
		return 0, fmt.Errorf("retrieving body of %s: %w", g.Method, err)
	}
	sites, err := e.splice(body, g)
	if err != nil {
		return sites, err
	}
	if e.opts.Validate {
		if err := body.Validate(); err != nil {
			return sites, fmt.Errorf("validating %s after %s rewrite: %w", g.Method, g.Kind.LogName(), err)
		}
	}
	if err := scalar.Normalize(body); err != nil {
		return sites, fmt.Errorf("normalizing %s: %w", g.Method, err)
	}
	slog.Debug("rewrote reflective calls",
		"method", g.Method.Signature(),
		"kind", g.Kind.LogName(),
		"id", g.ID,
		"targets", len(g.Targets),
		"sites", sites)
	return sites, nil
}
