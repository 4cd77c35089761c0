package inliner

import (
	"github.com/715d/reflinline/internal/ir"
)

// builder accumulates a detached statement sequence for one body. Locals it
// creates are declared in the body right away; the statements only enter the
// chain when the splicer substitutes the whole sequence.
type builder struct {
	body *ir.Body
	seq  []ir.Stmt
}

func (b *builder) emit(stmts ...ir.Stmt) { b.seq = append(b.seq, stmts...) }

func (b *builder) local(t ir.Type) *ir.Local { return b.body.NewLocal(t) }

// unboxArgument reads element index of array into dst, converted to the
// formal parameter type:
//
//	$rA = array[index]
//	$rB = (Box) $rA          or  $rB = (Formal) $rA
//	dst = $rB.primValue()    or  dst = $rB
//
// No bounds check is emitted; the traced target's arity is trusted.
func (b *builder) unboxArgument(array ir.Value, index int, formal ir.Type, dst *ir.Local) {
	elem := b.local(ir.ObjectType)
	b.emit(ir.NewAssign(elem, &ir.ArrayRef{Base: array, Index: ir.IntConstant(index)}))

	if p, ok := formal.(ir.PrimType); ok {
		boxed := b.local(p.Boxed())
		b.emit(ir.NewAssign(boxed, &ir.CastExpr{Op: elem, To: p.Boxed()}))
		b.emit(ir.NewAssign(dst, ir.NewVirtualInvoke(boxed, p.UnboxMethod())))
		return
	}
	cast := b.local(formal)
	b.emit(ir.NewAssign(cast, &ir.CastExpr{Op: elem, To: formal}))
	b.emit(ir.NewAssign(dst, cast))
}

// unboxArguments unboxes one local per formal parameter. Nothing is read
// from the array when there are no parameters.
func (b *builder) unboxArguments(array ir.Value, formals []ir.Type) []ir.Value {
	args := make([]ir.Value, len(formals))
	for i, t := range formals {
		dst := b.local(t)
		b.unboxArgument(array, i, t, dst)
		args[i] = dst
	}
	return args
}
