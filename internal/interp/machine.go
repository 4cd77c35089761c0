// Package interp executes method bodies against a scene. It models just
// enough of java.lang, java.lang.reflect and java.util to run programs before
// and after reflective calls are inlined, so the two can be compared.
package interp

import (
	"errors"
	"fmt"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/rtlib"
	"github.com/715d/reflinline/internal/scene"
)

// ErrStepLimit is returned when a run executes more statements than allowed.
var ErrStepLimit = errors.New("step limit exceeded")

// DefaultMaxSteps bounds a run when Machine.MaxSteps is zero.
const DefaultMaxSteps = 1_000_000

// Machine interprets methods of one scene. Static state persists across
// calls on the same Machine.
type Machine struct {
	Scene *scene.Scene

	// Guard, if set, answers the decision routine. Without a guard the
	// routine's own body runs.
	Guard rtlib.Guard

	// Handler receives unexpected reflective calls. A nil Handler ignores them.
	Handler rtlib.Handler

	MaxSteps int

	steps       int
	statics     map[string]any
	initialized map[string]bool
	classObjs   map[string]*Object
	natives     map[string]nativeFunc
}

// New returns a machine for s.
func New(s *scene.Scene) *Machine {
	m := &Machine{
		Scene:       s,
		statics:     make(map[string]any),
		initialized: make(map[string]bool),
		classObjs:   make(map[string]*Object),
	}
	m.natives = m.builtins()
	return m
}

// Call runs the static method with signature sig.
func (m *Machine) Call(sig string, args ...any) (any, error) {
	meth, err := m.Scene.Method(sig)
	if err != nil {
		return nil, err
	}
	if !meth.Static {
		return nil, fmt.Errorf("calling %s: not a static method", sig)
	}
	if err := m.ensureInit(meth.Class.Name); err != nil {
		return nil, err
	}
	return m.Invoke(meth, nil, args)
}

// Static returns the current value of a static field, given by signature.
func (m *Machine) Static(sig string) any { return m.statics[sig] }

// Invoke runs meth with receiver this, which is nil for static methods.
func (m *Machine) Invoke(meth *scene.Method, this any, args []any) (any, error) {
	if len(args) != len(meth.Params) {
		return nil, fmt.Errorf("calling %s: got %d arguments, want %d", meth, len(args), len(meth.Params))
	}
	if f, ok := m.natives[meth.Signature()]; ok {
		return f(meth, this, args)
	}
	return m.interpret(meth, this, args)
}

func (m *Machine) interpret(meth *scene.Method, this any, args []any) (any, error) {
	if meth.Native || !meth.HasBody() {
		return nil, fmt.Errorf("calling %s: no body and no native model", meth)
	}
	body, err := meth.RetrieveBody()
	if err != nil {
		return nil, err
	}
	fr := &frame{meth: meth, body: body, this: this, args: args, locals: make(map[*ir.Local]any)}
	return m.exec(fr)
}

type frame struct {
	meth   *scene.Method
	body   *ir.Body
	this   any
	args   []any
	locals map[*ir.Local]any
}

func (m *Machine) exec(fr *frame) (any, error) {
	units := fr.body.Units
	limit := m.MaxSteps
	if limit <= 0 {
		limit = DefaultMaxSteps
	}
	pc := units.First()
	for pc != nil {
		m.steps++
		if m.steps > limit {
			return nil, fmt.Errorf("running %s: %w", fr.meth, ErrStepLimit)
		}
		next := units.Succ(pc)
		switch s := pc.(type) {
		case *ir.IdentityStmt:
			switch r := s.Right.(type) {
			case *ir.ThisRef:
				fr.locals[s.Left] = fr.this
			case *ir.ParameterRef:
				fr.locals[s.Left] = fr.args[r.Index]
			}
		case *ir.AssignStmt:
			v, err := m.eval(fr, s.Right)
			if err != nil {
				return nil, err
			}
			if err := m.store(fr, s.Left, v); err != nil {
				return nil, err
			}
		case *ir.InvokeStmt:
			if _, err := m.invoke(fr, s.Expr); err != nil {
				return nil, err
			}
		case *ir.IfStmt:
			ok, err := m.cond(fr, s.Cond)
			if err != nil {
				return nil, err
			}
			if ok {
				next = s.Target
			}
		case *ir.GotoStmt:
			next = s.Target
		case *ir.NopStmt:
		case *ir.ReturnStmt:
			v, err := m.eval(fr, s.Op)
			if err != nil {
				return nil, err
			}
			return coerce(v, fr.meth.Return), nil
		case *ir.ReturnVoidStmt:
			return nil, nil
		case *ir.ThrowStmt:
			v, err := m.eval(fr, s.Op)
			if err != nil {
				return nil, err
			}
			obj, ok := v.(*Object)
			if !ok {
				return nil, m.throw("java.lang.NullPointerException", "throw null")
			}
			return nil, &Throw{Obj: obj}
		default:
			return nil, fmt.Errorf("running %s: unsupported statement %s", fr.meth, pc)
		}
		pc = next
	}
	return nil, fmt.Errorf("running %s: fell off the end of the body", fr.meth)
}

func (m *Machine) store(fr *frame, dst ir.Value, v any) error {
	switch d := dst.(type) {
	case *ir.Local:
		fr.locals[d] = coerce(v, d.T)
	case *ir.StaticFieldRef:
		if err := m.ensureInit(d.Field.Class); err != nil {
			return err
		}
		m.statics[d.Field.Signature()] = coerce(v, d.Field.T)
	case *ir.InstanceFieldRef:
		obj, err := m.object(fr, d.Base)
		if err != nil {
			return err
		}
		if obj.Fields == nil {
			obj.Fields = make(map[string]any)
		}
		obj.Fields[d.Field.Name] = coerce(v, d.Field.T)
	case *ir.ArrayRef:
		arr, i, err := m.element(fr, d)
		if err != nil {
			return err
		}
		arr.Data[i] = coerce(v, arr.Elem)
	default:
		return fmt.Errorf("cannot assign to %s", dst)
	}
	return nil
}

func (m *Machine) eval(fr *frame, v ir.Value) (any, error) {
	switch v := v.(type) {
	case *ir.Local:
		x, ok := fr.locals[v]
		if !ok {
			return nil, fmt.Errorf("running %s: local %s read before assignment", fr.meth, v)
		}
		return x, nil
	case ir.IntConstant:
		return int32(v), nil
	case ir.LongConstant:
		return int64(v), nil
	case ir.FloatConstant:
		return float32(v), nil
	case ir.DoubleConstant:
		return float64(v), nil
	case ir.StringConstant:
		return string(v), nil
	case ir.NullConstant:
		return nil, nil
	case ir.ClassConstant:
		return m.classObject(v.ClassName()), nil
	case *ir.NewExpr:
		return m.alloc(v.T.Class)
	case *ir.NewArrayExpr:
		n, err := m.eval(fr, v.Size)
		if err != nil {
			return nil, err
		}
		size := coerce(n, ir.Int).(int32)
		if size < 0 {
			return nil, m.throw("java.lang.RuntimeException", "negative array size")
		}
		arr := &Array{Elem: v.Elem, Data: make([]any, size)}
		for i := range arr.Data {
			arr.Data[i] = zero(v.Elem)
		}
		return arr, nil
	case *ir.CastExpr:
		x, err := m.eval(fr, v.Op)
		if err != nil {
			return nil, err
		}
		return m.cast(x, v.To)
	case *ir.ArrayRef:
		arr, i, err := m.element(fr, v)
		if err != nil {
			return nil, err
		}
		return arr.Data[i], nil
	case *ir.StaticFieldRef:
		if err := m.ensureInit(v.Field.Class); err != nil {
			return nil, err
		}
		x, ok := m.statics[v.Field.Signature()]
		if !ok {
			return zero(v.Field.T), nil
		}
		return x, nil
	case *ir.InstanceFieldRef:
		obj, err := m.object(fr, v.Base)
		if err != nil {
			return nil, err
		}
		x, ok := obj.Fields[v.Field.Name]
		if !ok {
			return zero(v.Field.T), nil
		}
		return x, nil
	case *ir.InvokeExpr:
		return m.invoke(fr, v)
	}
	return nil, fmt.Errorf("running %s: cannot evaluate %s", fr.meth, v)
}

func (m *Machine) object(fr *frame, base ir.Value) (*Object, error) {
	x, err := m.eval(fr, base)
	if err != nil {
		return nil, err
	}
	obj, ok := x.(*Object)
	if !ok {
		if x == nil {
			return nil, m.throw("java.lang.NullPointerException", "field access on null")
		}
		return nil, fmt.Errorf("running %s: field access on %s", fr.meth, Format(x))
	}
	return obj, nil
}

func (m *Machine) element(fr *frame, r *ir.ArrayRef) (*Array, int, error) {
	x, err := m.eval(fr, r.Base)
	if err != nil {
		return nil, 0, err
	}
	arr, ok := x.(*Array)
	if !ok {
		return nil, 0, m.throw("java.lang.NullPointerException", "array access on null")
	}
	idx, err := m.eval(fr, r.Index)
	if err != nil {
		return nil, 0, err
	}
	i := int(coerce(idx, ir.Int).(int32))
	if i < 0 || i >= len(arr.Data) {
		return nil, 0, m.throw("java.lang.ArrayIndexOutOfBoundsException", fmt.Sprintf("index %d out of bounds for length %d", i, len(arr.Data)))
	}
	return arr, i, nil
}

func (m *Machine) cast(x any, to ir.Type) (any, error) {
	if _, ok := to.(ir.PrimType); ok {
		return coerce(x, to), nil
	}
	if x == nil {
		return nil, nil
	}
	if !m.Scene.IsSubtypeOf(m.typeOf(x), to) {
		return nil, m.throw("java.lang.ClassCastException", fmt.Sprintf("%s cannot be cast to %s", m.typeOf(x), to))
	}
	return x, nil
}

// typeOf returns the run-time type of a reference value.
func (m *Machine) typeOf(x any) ir.Type {
	switch x := x.(type) {
	case string:
		return ir.StringType
	case *Array:
		return ir.ArrayType{Elem: x.Elem}
	case *Object:
		return ir.Ref(x.Class.Name)
	}
	return ir.ObjectType
}

func (m *Machine) cond(fr *frame, c *ir.ConditionExpr) (bool, error) {
	l, err := m.eval(fr, c.L)
	if err != nil {
		return false, err
	}
	r, err := m.eval(fr, c.R)
	if err != nil {
		return false, err
	}
	if ln, ok := numeric(l); ok {
		rn, ok := numeric(r)
		if !ok {
			return false, fmt.Errorf("running %s: comparing %s with %s", fr.meth, Format(l), Format(r))
		}
		switch c.Op {
		case ir.Eq:
			return ln == rn, nil
		case ir.Ne:
			return ln != rn, nil
		case ir.Lt:
			return ln < rn, nil
		case ir.Le:
			return ln <= rn, nil
		case ir.Gt:
			return ln > rn, nil
		case ir.Ge:
			return ln >= rn, nil
		}
	}
	switch c.Op {
	case ir.Eq:
		return l == r, nil
	case ir.Ne:
		return l != r, nil
	}
	return false, fmt.Errorf("running %s: ordered comparison of references in %s", fr.meth, c)
}

func numeric(x any) (float64, bool) {
	switch x := x.(type) {
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func (m *Machine) invoke(fr *frame, e *ir.InvokeExpr) (any, error) {
	if len(e.Args) != len(e.Method.Params) {
		return nil, fmt.Errorf("running %s: %s called with %d arguments", fr.meth, e.Method, len(e.Args))
	}
	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		v, err := m.eval(fr, a)
		if err != nil {
			return nil, err
		}
		args[i] = coerce(v, e.Method.Params[i])
	}
	var this any
	if e.Base != nil {
		v, err := m.eval(fr, e.Base)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, m.throw("java.lang.NullPointerException", "invoking "+e.Method.Name+" on null")
		}
		this = v
	}
	meth, err := m.resolve(e.Kind, e.Method, this)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", fr.meth, err)
	}
	if e.Kind == ir.StaticInvoke {
		if err := m.ensureInit(meth.Class.Name); err != nil {
			return nil, err
		}
	}
	return m.Invoke(meth, this, args)
}

// resolve finds the method a call executes. Static and special calls bind
// to the named method or the nearest superclass declaring it; virtual and
// interface calls dispatch on the receiver's class.
func (m *Machine) resolve(kind ir.InvokeKind, ref *ir.MethodRef, this any) (*scene.Method, error) {
	if kind == ir.VirtualInvoke || kind == ir.InterfaceInvoke {
		class := ir.ObjectType.Class
		if t, ok := m.typeOf(this).(ir.RefType); ok {
			class = t.Class
		}
		return m.Scene.ResolveConcreteDispatch(class, ref)
	}
	c, err := m.Scene.Class(ref.Class)
	if err != nil {
		return nil, err
	}
	sub := ref.SubSignature()
	for _, k := range append([]*scene.Class{c}, m.Scene.Supertypes(c.Name)...) {
		for _, meth := range k.Methods {
			if meth.Name == ref.Name && meth.SubSignature() == sub {
				return meth, nil
			}
		}
	}
	return nil, fmt.Errorf("method %s: %w", ref, scene.ErrNotFound)
}

// ensureInit runs the static initializers of class and its superclasses the
// first time the class is used.
func (m *Machine) ensureInit(class string) error {
	if m.initialized[class] {
		return nil
	}
	m.initialized[class] = true
	c, err := m.Scene.Class(class)
	if err != nil {
		return err
	}
	if c.Super != "" {
		if err := m.ensureInit(c.Super); err != nil {
			return err
		}
	}
	for _, meth := range c.Methods {
		if meth.IsStaticInitializer() && meth.HasBody() {
			if _, err := m.Invoke(meth, nil, nil); err != nil {
				return fmt.Errorf("initializing %s: %w", class, err)
			}
		}
	}
	return nil
}

// alloc creates an instance of class with every instance field at its
// default value.
func (m *Machine) alloc(class string) (*Object, error) {
	c, err := m.Scene.Class(class)
	if err != nil {
		return nil, err
	}
	if err := m.ensureInit(class); err != nil {
		return nil, err
	}
	obj := &Object{Class: c, Fields: make(map[string]any)}
	for _, k := range append(m.Scene.Supertypes(class), c) {
		for _, f := range k.Fields {
			if !f.Static {
				obj.Fields[f.Name] = zero(f.Type)
			}
		}
	}
	return obj, nil
}

// classObject returns the unique Class object for a type name.
func (m *Machine) classObject(name string) *Object {
	if o, ok := m.classObjs[name]; ok {
		return o
	}
	c, _ := m.Scene.Class("java.lang.Class")
	o := &Object{Class: c, Fields: make(map[string]any), Native: name}
	m.classObjs[name] = o
	return o
}

// throw builds a library exception with a message.
func (m *Machine) throw(class, msg string) error {
	obj, err := m.alloc(class)
	if err != nil {
		return fmt.Errorf("throwing %s: %w", class, err)
	}
	obj.Fields["message"] = msg
	return &Throw{Obj: obj}
}
