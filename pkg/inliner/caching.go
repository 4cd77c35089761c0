package inliner

import (
	"fmt"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/rtlib"
	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
)

// CheckedField is the marker field caching adds to Class, Constructor and
// Method. A real JVM cannot add fields to these classes once loaded, so
// caching only works in environments that model them, like the interpreter.
const CheckedField = "reflinline$alreadyChecked"

// addCaching makes the known-call routines skip handles they have already
// checked. It prepends to each routine, after its identity statements:
//
//	$z0 = handle.<C: boolean reflinline$alreadyChecked>
//	if $z0 == 0 goto L
//	return
//	L: nop
//	handle.<C: boolean reflinline$alreadyChecked> = 1
//
// Class.forName reports a String, which cannot carry the marker, so its
// routine is left alone.
func (e *Engine) addCaching() error {
	for _, k := range trace.Kinds() {
		if k == trace.ClassForName {
			continue
		}
		class := rtlib.HandleType(k).(ir.RefType).Class
		f, err := e.scene.AddField(class, &scene.Field{Name: CheckedField, Type: ir.Boolean})
		if err != nil {
			return fmt.Errorf("adding cache marker: %w", err)
		}
		if err := e.cacheKnownCall(k, f.Ref()); err != nil {
			return fmt.Errorf("caching %s: %w", k.LogName(), err)
		}
	}
	return nil
}

func (e *Engine) cacheKnownCall(k trace.Kind, field *ir.FieldRef) error {
	ref := rtlib.KnownCall(k)
	m, err := e.scene.Method(ref.Signature())
	if err != nil {
		return err
	}
	body, err := m.RetrieveBody()
	if err != nil {
		return err
	}
	handle := body.ParameterLocal(len(ref.Params) - 1)
	first := body.FirstNonIdentity()
	if handle == nil || first == nil {
		return fmt.Errorf("%s has no handle parameter", m)
	}

	b := &builder{body: body}
	checked := b.local(ir.Boolean)
	label := ir.NewNop()
	b.emit(
		ir.NewAssign(checked, &ir.InstanceFieldRef{Base: handle, Field: field}),
		ir.NewIf(ir.Eq, checked, ir.IntConstant(0), label),
		ir.NewReturnVoid(),
		label,
		ir.NewAssign(&ir.InstanceFieldRef{Base: handle, Field: field}, ir.IntConstant(1)),
	)
	if err := body.Units.InsertBefore(first, b.seq...); err != nil {
		return err
	}
	if e.opts.Validate {
		if err := body.Validate(); err != nil {
			return fmt.Errorf("validating %s: %w", m, err)
		}
	}
	return nil
}
