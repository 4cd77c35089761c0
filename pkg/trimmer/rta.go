package trimmer

import (
	"fmt"
	"log/slog"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/scene"
)

// RTA is the result of Rapid Type Analysis over a call graph's entry points.
//
// The analysis tabulates the cross-product of the classes instantiated in
// reachable code with the dynamic call sites found so far. As each new class
// is instantiated, its matching methods become reachable from every known
// dynamic site, and as each new dynamic site is discovered, it dispatches
// over every known class. Static and special calls reach their one target
// directly.
//
// The algorithm was first described in:
//
// David F. Bacon and Peter F. Sweeney. 1996.
// Fast static analysis of C++ virtual function calls. (OOPSLA '96)
type RTA struct {
	scene *scene.Scene

	// reachable is the set of methods discovered so far.
	reachable map[*scene.Method]bool

	// types are the instantiated classes, in discovery order.
	types   []string
	runtime map[string]bool

	// sites are the dynamic call sites of reachable methods.
	sites []*ir.InvokeExpr

	work []*scene.Method
}

// AnalyzeRTA runs rapid type analysis from the entry points of cg.
func AnalyzeRTA(cg *CallGraph) (*RTA, error) {
	r := &RTA{
		scene:     cg.scene,
		reachable: make(map[*scene.Method]bool),
		runtime:   make(map[string]bool),
	}
	for _, m := range cg.Entries() {
		r.addReachable(m)
	}
	for len(r.work) > 0 {
		m := r.work[len(r.work)-1]
		r.work = r.work[:len(r.work)-1]
		if err := r.visit(cg, m); err != nil {
			return nil, err
		}
	}
	slog.Debug("rapid type analysis done",
		"reachable", len(r.reachable),
		"types", len(r.types),
		"dynamicSites", len(r.sites))
	return r, nil
}

func (r *RTA) addReachable(m *scene.Method) {
	if m == nil || r.reachable[m] {
		return
	}
	r.reachable[m] = true
	r.work = append(r.work, m)
}

// visit scans the body of a newly reachable method.
func (r *RTA) visit(cg *CallGraph, m *scene.Method) error {
	if !m.HasBody() {
		return nil
	}
	body, err := m.RetrieveBody()
	if err != nil {
		return fmt.Errorf("rapid type analysis of %s: %w", m, err)
	}
	for _, st := range body.Units.Snapshot() {
		if a, ok := st.(*ir.AssignStmt); ok {
			if n, ok := a.Right.(*ir.NewExpr); ok {
				r.addRuntimeType(n.T.Class)
			}
		}
		e := ir.InvokeOf(st)
		if e == nil {
			continue
		}
		switch e.Kind {
		case ir.VirtualInvoke, ir.InterfaceInvoke:
			r.addDynamicSite(e)
		default:
			r.addReachable(cg.exact(e.Method))
		}
	}
	return nil
}

// addRuntimeType records an instantiated class and makes its dispatch
// targets reachable from every known dynamic site.
func (r *RTA) addRuntimeType(class string) {
	if r.runtime[class] {
		return
	}
	r.runtime[class] = true
	r.types = append(r.types, class)

	// Instantiation runs the static initializers of the class and its supertypes.
	for _, c := range append(r.scene.Supertypes(class), r.class(class)) {
		if c == nil {
			continue
		}
		for _, m := range c.Methods {
			if m.IsStaticInitializer() {
				r.addReachable(m)
			}
		}
	}
	for _, e := range r.sites {
		r.dispatch(class, e)
	}
}

// addDynamicSite records a virtual or interface call and dispatches it over
// every known runtime type.
func (r *RTA) addDynamicSite(e *ir.InvokeExpr) {
	r.sites = append(r.sites, e)
	for _, class := range r.types {
		r.dispatch(class, e)
	}
}

func (r *RTA) dispatch(class string, e *ir.InvokeExpr) {
	if !r.scene.IsSubtype(class, e.Method.Class) {
		return
	}
	m, err := r.scene.ResolveConcreteDispatch(class, e.Method)
	if err != nil {
		return
	}
	r.addReachable(m)
}

func (r *RTA) class(name string) *scene.Class {
	c, err := r.scene.Class(name)
	if err != nil {
		return nil
	}
	return c
}

// Reachable reports whether m was found reachable.
func (r *RTA) Reachable(m *scene.Method) bool { return r.reachable[m] }

// Types returns the instantiated classes in discovery order.
func (r *RTA) Types() []string { return append([]string(nil), r.types...) }

// ReachingTypes answers with the instantiated subtypes of l's declared class.
// Locals of unreachable methods and locals that are not of class type get no
// answer.
func (r *RTA) ReachingTypes(m *scene.Method, _ ir.Stmt, l *ir.Local) ([]string, bool) {
	if !r.reachable[m] {
		return nil, false
	}
	rt, ok := l.T.(ir.RefType)
	if !ok {
		return nil, false
	}
	var out []string
	for _, class := range r.types {
		if r.scene.IsSubtype(class, rt.Class) {
			out = append(out, class)
		}
	}
	return out, true
}
