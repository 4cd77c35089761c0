package inliner

import (
	"fmt"
	"log/slog"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/rtlib"
)

// splice rewrites every call site of g's kind in body and returns the number
// of sites rewritten. Each site becomes
//
//	staticinvoke <known call>(id, handle...)
//	$z0 = staticinvoke <decision>()
//	if $z0 == 0 goto skip0
//	<replacement for target 0>
//	lhs = <result>                 (only for assignments)
//	goto end
//	skip0: nop
//	...                            (one attempt per target)
//	<original statement>
//	end: nop
//
// Targets are used in the order given, duplicates included. A site whose
// target does not resolve aborts the group with ErrUnresolvedTarget; sites
// already rewritten stay rewritten.
func (e *Engine) splice(body *ir.Body, g *Group) (int, error) {
	sk := &skeletons[g.Kind]
	sites := 0
	for _, s := range body.Units.Snapshot() {
		call := ir.InvokeOf(s)
		if call == nil || !sk.matches(call) {
			continue
		}
		seq, err := e.attempts(body, g, sk, s, call)
		if err != nil {
			return sites, fmt.Errorf("rewriting %s call in %s: %w", g.Kind.LogName(), g.Method, err)
		}
		if err := body.Units.Replace(s, seq...); err != nil {
			return sites, fmt.Errorf("splicing %s call in %s: %w", g.Kind.LogName(), g.Method, err)
		}
		sites++
	}
	if sites == 0 {
		slog.Debug("no call site matches traced kind",
			"method", g.Method.Signature(),
			"kind", g.Kind.LogName(),
			"id", g.ID)
	}
	return sites, nil
}

// attempts builds the detached replacement sequence for one call site s.
func (e *Engine) attempts(body *ir.Body, g *Group, sk *skeleton, s ir.Stmt, call *ir.InvokeExpr) ([]ir.Stmt, error) {
	assign, wantResult := s.(*ir.AssignStmt)
	b := &builder{body: body}
	end := ir.NewNop()

	report := append([]ir.Value{ir.IntConstant(g.ID)}, sk.report(call)...)
	b.emit(ir.NewInvokeStmt(ir.NewStaticInvoke(rtlib.KnownCall(g.Kind), report...)))

	for _, target := range g.Targets {
		skip := ir.NewNop()
		pred := b.local(ir.Boolean)
		b.emit(
			ir.NewAssign(pred, ir.NewStaticInvoke(e.decision)),
			ir.NewIf(ir.Eq, pred, ir.IntConstant(0), skip),
		)
		res, err := sk.build(b, e.scene, call, target, wantResult)
		if err != nil {
			return nil, err
		}
		if wantResult {
			b.emit(ir.NewAssign(copyRef(assign.Left), res))
		}
		b.emit(ir.NewGoto(end), skip)
	}
	b.emit(s, end)
	return b.seq, nil
}

// copyRef returns a fresh copy of an assignment target so that the attempt
// and the fallback never share a mutable operand. Locals are shared by
// identity and returned as is.
func copyRef(v ir.Value) ir.Value {
	switch v := v.(type) {
	case *ir.ArrayRef:
		c := *v
		return &c
	case *ir.InstanceFieldRef:
		c := *v
		return &c
	case *ir.StaticFieldRef:
		c := *v
		return &c
	}
	return v
}
