package trimmer

import (
	"log/slog"
	goruntime "runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/scene"
)

// Diagnostic reports a dynamic call that no reaching type can dispatch.
type Diagnostic struct {
	Method        string   `json:"method" yaml:"method"`
	Site          string   `json:"site" yaml:"site"`
	ReachingTypes []string `json:"reachingTypes" yaml:"reachingTypes"`
}

func (d Diagnostic) String() string {
	return "couldn't resolve dispatch " + d.Site + " in method " + d.Method +
		"; reaching types: [" + strings.Join(d.ReachingTypes, ", ") + "]"
}

// Report summarizes a Trim.
type Report struct {
	// Removed counts the call sites dropped from unreachable methods.
	Removed int `json:"removed" yaml:"removed"`
	// Retargeted counts the dynamic sites whose targets were replaced.
	Retargeted  int          `json:"retargeted" yaml:"retargeted"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// methodResult is what trimming one method produces.
type methodResult struct {
	sites       []*Site
	removed     int
	retargeted  int
	diagnostics []Diagnostic
}

// Trim narrows cg using pts. Methods that are not reachable from the entry
// points lose all their call sites; each virtual or interface site of a
// reachable method is retargeted to the dispatch of the types pts says reach
// its receiver. Sites whose receiver pts knows nothing about keep their
// hierarchy targets.
func Trim(cg *CallGraph, pts PointsTo) (*Report, error) {
	reachable := cg.Reachable()
	methods := cg.Methods()

	// Each goroutine writes only its own index; results are merged after Wait.
	results := make([]methodResult, len(methods))

	var wg errgroup.Group
	wg.SetLimit(goruntime.NumCPU())
	for idx, m := range methods {
		wg.Go(func() error {
			if !reachable[m] {
				results[idx] = methodResult{removed: len(cg.sites[m])}
				return nil
			}
			results[idx] = cg.trimMethod(m, pts)
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, err
	}

	report := &Report{}
	for idx, m := range methods {
		r := results[idx]
		if r.sites == nil {
			delete(cg.sites, m)
		} else {
			cg.sites[m] = r.sites
		}
		report.Removed += r.removed
		report.Retargeted += r.retargeted
		report.Diagnostics = append(report.Diagnostics, r.diagnostics...)
	}
	slog.Info("trimmed call graph",
		"methods", len(methods),
		"reachable", len(reachable),
		"removed", report.Removed,
		"retargeted", report.Retargeted,
		"diagnostics", len(report.Diagnostics))
	return report, nil
}

func (cg *CallGraph) trimMethod(m *scene.Method, pts PointsTo) methodResult {
	var r methodResult
	for _, site := range cg.sites[m] {
		out := &Site{Method: m, Stmt: site.Stmt, Targets: site.Targets}
		r.sites = append(r.sites, out)

		e := ir.InvokeOf(site.Stmt)
		if e.Kind != ir.VirtualInvoke && e.Kind != ir.InterfaceInvoke {
			continue
		}
		base, ok := e.Base.(*ir.Local)
		if !ok {
			continue
		}
		if _, ok := base.T.(ir.RefType); !ok {
			continue
		}
		types, ok := pts.ReachingTypes(m, site.Stmt, base)
		if !ok {
			continue
		}
		out.Targets = cg.scene.ResolveDispatch(types, e.Method)
		r.retargeted++
		if len(out.Targets) == 0 {
			d := Diagnostic{Method: m.Signature(), Site: site.Stmt.String(), ReachingTypes: types}
			slog.Warn("couldn't resolve dispatch",
				"site", d.Site,
				"method", d.Method,
				"reachingTypes", types)
			r.diagnostics = append(r.diagnostics, d)
		}
	}
	return r
}
