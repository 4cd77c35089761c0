package inliner

import (
	"fmt"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
)

// skeleton is the rewrite recipe for one kind of reflective call.
type skeleton struct {
	// sig is the exact signature a call site must invoke, statically
	// when static is set and on a receiver otherwise.
	sig    string
	static bool

	// report returns the handle arguments passed, after the id, to the
	// known-call routine of the kind.
	report func(e *ir.InvokeExpr) []ir.Value

	// build emits the direct replacement of e assuming target is what it
	// reaches. It returns the value standing for the call's result, or nil
	// when the result is not needed.
	build func(b *builder, s *scene.Scene, e *ir.InvokeExpr, target string, wantResult bool) (ir.Value, error)
}

var skeletons = [trace.NumKinds]skeleton{
	trace.ClassForName: {
		sig:    "<java.lang.Class: java.lang.Class forName(java.lang.String)>",
		static: true,
		report: func(e *ir.InvokeExpr) []ir.Value { return []ir.Value{e.Args[0]} },
		build:  buildClassForName,
	},
	trace.ClassNewInstance: {
		sig:    "<java.lang.Class: java.lang.Object newInstance()>",
		report: func(e *ir.InvokeExpr) []ir.Value { return []ir.Value{e.Base} },
		build:  buildClassNewInstance,
	},
	trace.ConstructorNewInstance: {
		sig:    "<java.lang.reflect.Constructor: java.lang.Object newInstance(java.lang.Object[])>",
		report: func(e *ir.InvokeExpr) []ir.Value { return []ir.Value{e.Base} },
		build:  buildConstructorNewInstance,
	},
	trace.MethodInvoke: {
		sig:    "<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>",
		report: func(e *ir.InvokeExpr) []ir.Value { return []ir.Value{e.Args[0], e.Base} },
		build:  buildMethodInvoke,
	},
}

func init() {
	for k, sk := range skeletons {
		if sk.sig == "" || sk.report == nil || sk.build == nil {
			panic(fmt.Sprintf("inliner: no rewrite skeleton for %s", trace.Kind(k)))
		}
	}
}

// matches reports whether e is a call of the kind's signature with the
// expected static or instance shape.
func (sk *skeleton) matches(e *ir.InvokeExpr) bool {
	if e.Method.Signature() != sk.sig {
		return false
	}
	return (e.Kind == ir.StaticInvoke) == sk.static && (e.Base == nil) == sk.static
}

func unresolved(target, why string) error {
	return fmt.Errorf("%s %q: %w", why, target, ErrUnresolvedTarget)
}

// buildClassForName replaces Class.forName(name) by the class literal.
func buildClassForName(b *builder, s *scene.Scene, _ *ir.InvokeExpr, target string, _ bool) (ir.Value, error) {
	if !s.HasClass(target) {
		return nil, unresolved(target, "class")
	}
	c := b.local(ir.ClassType)
	b.emit(ir.NewAssign(c, ir.ClassLiteral(target)))
	return c, nil
}

// buildClassNewInstance replaces cls.newInstance() by allocation and a call
// of the no-argument constructor.
func buildClassNewInstance(b *builder, s *scene.Scene, _ *ir.InvokeExpr, target string, _ bool) (ir.Value, error) {
	if !s.HasClass(target) {
		return nil, unresolved(target, "class")
	}
	ctor, err := s.Method("<" + target + ": void <init>()>")
	if err != nil {
		return nil, unresolved(target, "no-argument constructor of")
	}
	t := ir.Ref(target)
	obj := b.local(t)
	b.emit(
		ir.NewAssign(obj, &ir.NewExpr{T: t}),
		ir.NewInvokeStmt(ir.NewSpecialInvoke(obj, ctor.Ref())),
	)
	return obj, nil
}

// buildConstructorNewInstance replaces ctor.newInstance(args) by unboxing
// args, allocation and a direct constructor call.
func buildConstructorNewInstance(b *builder, s *scene.Scene, e *ir.InvokeExpr, target string, _ bool) (ir.Value, error) {
	ctor, err := s.Method(target)
	if err != nil || !ctor.IsConstructor() {
		return nil, unresolved(target, "constructor")
	}
	var args []ir.Value
	if len(ctor.Params) > 0 {
		args = b.unboxArguments(e.Args[0], ctor.Params)
	}
	t := ir.Ref(ctor.Class.Name)
	obj := b.local(t)
	b.emit(
		ir.NewAssign(obj, &ir.NewExpr{T: t}),
		ir.NewInvokeStmt(ir.NewSpecialInvoke(obj, ctor.Ref(), args...)),
	)
	return obj, nil
}

// buildMethodInvoke replaces m.invoke(recv, args) by unboxing args and a
// direct call: static for static targets, otherwise virtual (or interface)
// dispatch on recv cast to the declaring type. A primitive result is boxed
// and a void result reads as null, matching what invoke returns.
func buildMethodInvoke(b *builder, s *scene.Scene, e *ir.InvokeExpr, target string, wantResult bool) (ir.Value, error) {
	meth, err := s.Method(target)
	if err != nil || meth.IsConstructor() || meth.IsStaticInitializer() {
		return nil, unresolved(target, "method")
	}
	var args []ir.Value
	if len(meth.Params) > 0 {
		args = b.unboxArguments(e.Args[1], meth.Params)
	}

	var call *ir.InvokeExpr
	if meth.Static {
		call = ir.NewStaticInvoke(meth.Ref(), args...)
	} else {
		decl := ir.Ref(meth.Class.Name)
		recv := b.local(decl)
		b.emit(ir.NewAssign(recv, &ir.CastExpr{Op: e.Args[0], To: decl}))
		if meth.Class.Interface {
			call = ir.NewInterfaceInvoke(recv, meth.Ref(), args...)
		} else {
			call = ir.NewVirtualInvoke(recv, meth.Ref(), args...)
		}
	}

	if !wantResult || meth.Return == ir.Void {
		b.emit(ir.NewInvokeStmt(call))
		if !wantResult {
			return nil, nil
		}
		return ir.Null, nil
	}
	res := b.local(meth.Return)
	b.emit(ir.NewAssign(res, call))
	p, ok := meth.Return.(ir.PrimType)
	if !ok {
		return res, nil
	}
	boxed := b.local(p.Boxed())
	b.emit(ir.NewAssign(boxed, ir.NewStaticInvoke(p.BoxMethod(), res)))
	return boxed, nil
}
