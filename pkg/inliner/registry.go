package inliner

import (
	"fmt"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/rtlib"
)

// emitRegistry adds the "<id><target>" entries of groups to the run-time
// sets, just before the final return of ReflectiveCalls.<clinit>:
//
//	$r0 = <ReflectiveCalls: java.util.Set classForName>
//	interfaceinvoke $r0.<java.util.Set: boolean add(java.lang.Object)>("0a.B")
//
// The statements are built from the same groups the rewrite uses, so the
// ids in the registry are the ids at the call sites.
func (e *Engine) emitRegistry(groups []*Group) error {
	clinit, err := e.scene.Method(rtlib.Clinit())
	if err != nil {
		return fmt.Errorf("locating registry initializer: %w", err)
	}
	body, err := clinit.RetrieveBody()
	if err != nil {
		return fmt.Errorf("locating registry initializer: %w", err)
	}
	if len(groups) == 0 {
		return nil
	}

	b := &builder{body: body}
	for _, g := range groups {
		set := b.local(ir.Ref("java.util.Set"))
		b.emit(ir.NewAssign(set, &ir.StaticFieldRef{Field: rtlib.SetField(g.Kind)}))
		for _, t := range g.Targets {
			add := ir.NewInterfaceInvoke(set, rtlib.SetAdd, ir.StringConstant(g.Key(t)))
			b.emit(ir.NewInvokeStmt(add))
		}
	}
	if err := body.Units.InsertBefore(body.Units.Last(), b.seq...); err != nil {
		return fmt.Errorf("emitting registry: %w", err)
	}
	if e.opts.Validate {
		if err := body.Validate(); err != nil {
			return fmt.Errorf("validating %s: %w", clinit, err)
		}
	}
	return nil
}
