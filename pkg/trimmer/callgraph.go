// Package trimmer narrows a class-hierarchy call graph with points-to facts.
//
// The call graph is built by class hierarchy analysis: a virtual or interface
// call may reach the matching method of every concrete subtype of the
// declared class. Trimming then drops the sites of unreachable methods and
// replaces the targets of each remaining dynamic call by the dispatch of the
// types that actually reach its receiver.
package trimmer

import (
	"fmt"
	"log/slog"

	"github.com/zboralski/lattice"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/scene"
)

// Site is one call site and the methods it may call.
type Site struct {
	Method  *scene.Method
	Stmt    ir.Stmt
	Targets []*scene.Method
}

// CallGraph maps each method with a body to its call sites.
type CallGraph struct {
	scene   *scene.Scene
	methods []*scene.Method
	sites   map[*scene.Method][]*Site
}

// Build constructs the class hierarchy call graph of every concrete method
// with a body in s.
func Build(s *scene.Scene) (*CallGraph, error) {
	cg := &CallGraph{scene: s, sites: make(map[*scene.Method][]*Site)}
	for _, m := range s.Methods() {
		if !m.Concrete() || !m.HasBody() {
			continue
		}
		body, err := m.RetrieveBody()
		if err != nil {
			return nil, fmt.Errorf("building call graph: %w", err)
		}
		cg.methods = append(cg.methods, m)
		for _, st := range body.Units.Snapshot() {
			e := ir.InvokeOf(st)
			if e == nil {
				continue
			}
			cg.sites[m] = append(cg.sites[m], &Site{Method: m, Stmt: st, Targets: cg.hierarchyTargets(e)})
		}
	}
	slog.Debug("built call graph", "methods", len(cg.methods), "sites", cg.NumSites())
	return cg, nil
}

// hierarchyTargets resolves e by class hierarchy analysis.
func (cg *CallGraph) hierarchyTargets(e *ir.InvokeExpr) []*scene.Method {
	switch e.Kind {
	case ir.VirtualInvoke, ir.InterfaceInvoke:
		var types []string
		for _, c := range cg.scene.ConcreteSubtypes(e.Method.Class) {
			types = append(types, c.Name)
		}
		return cg.scene.ResolveDispatch(types, e.Method)
	}
	if m := cg.exact(e.Method); m != nil {
		return []*scene.Method{m}
	}
	return nil
}

// exact finds the method a static or special call of ref runs: the one
// declared by ref's class or inherited from the nearest superclass.
func (cg *CallGraph) exact(ref *ir.MethodRef) *scene.Method {
	c, err := cg.scene.Class(ref.Class)
	if err != nil {
		return nil
	}
	sub := ref.SubSignature()
	for _, k := range append([]*scene.Class{c}, cg.scene.Supertypes(ref.Class)...) {
		for _, m := range k.Methods {
			if m.Name == ref.Name && m.SubSignature() == sub {
				return m
			}
		}
	}
	return nil
}

// Methods returns the methods of the graph in scene order.
func (cg *CallGraph) Methods() []*scene.Method { return cg.methods }

// Sites returns the call sites of m in body order.
func (cg *CallGraph) Sites(m *scene.Method) []*Site { return cg.sites[m] }

// NumSites returns the number of call sites in the graph.
func (cg *CallGraph) NumSites() int {
	n := 0
	for _, sites := range cg.sites {
		n += len(sites)
	}
	return n
}

// Entries returns the entry points: every static main method and every
// static initializer.
func (cg *CallGraph) Entries() []*scene.Method {
	var out []*scene.Method
	for _, m := range cg.methods {
		if (m.Static && m.Name == "main") || m.IsStaticInitializer() {
			out = append(out, m)
		}
	}
	return out
}

// Reachable returns the methods reachable from the entry points.
func (cg *CallGraph) Reachable() map[*scene.Method]bool {
	seen := make(map[*scene.Method]bool)
	work := cg.Entries()
	for _, m := range work {
		seen[m] = true
	}
	for len(work) > 0 {
		m := work[len(work)-1]
		work = work[:len(work)-1]
		for _, site := range cg.sites[m] {
			for _, t := range site.Targets {
				if !seen[t] {
					seen[t] = true
					work = append(work, t)
				}
			}
		}
	}
	return seen
}

// Graph exports the method-level call graph.
func (cg *CallGraph) Graph() *lattice.Graph {
	g := &lattice.Graph{}
	for _, m := range cg.methods {
		caller := m.Signature()
		g.Nodes = append(g.Nodes, caller)
		for _, site := range cg.sites[m] {
			for _, t := range site.Targets {
				g.Edges = append(g.Edges, lattice.Edge{Caller: caller, Callee: t.Signature()})
			}
		}
	}
	g.Dedup()
	return g
}
