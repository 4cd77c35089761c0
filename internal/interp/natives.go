package interp

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/rtlib"
	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
)

type nativeFunc func(meth *scene.Method, this any, args []any) (any, error)

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) builtins() map[string]nativeFunc {
	n := make(map[string]nativeFunc)
	nop := func(*scene.Method, any, []any) (any, error) { return nil, nil }

	n["<java.lang.Object: void <init>()>"] = nop
	n["<java.lang.Object: boolean equals(java.lang.Object)>"] = func(_ *scene.Method, this any, args []any) (any, error) {
		return b2i(setKey(this) == setKey(args[0])), nil
	}
	n["<java.lang.Object: int hashCode()>"] = func(*scene.Method, any, []any) (any, error) { return int32(0), nil }
	n["<java.lang.Object: java.lang.String toString()>"] = func(_ *scene.Method, this any, _ []any) (any, error) {
		return Format(this), nil
	}

	n["<java.lang.String: boolean equals(java.lang.Object)>"] = func(_ *scene.Method, this any, args []any) (any, error) {
		s, ok := args[0].(string)
		return b2i(ok && s == this.(string)), nil
	}
	n["<java.lang.String: int hashCode()>"] = func(_ *scene.Method, this any, _ []any) (any, error) {
		var h int32
		for _, r := range this.(string) {
			h = 31*h + int32(r)
		}
		return h, nil
	}
	n["<java.lang.String: int length()>"] = func(_ *scene.Method, this any, _ []any) (any, error) {
		return int32(utf8.RuneCountInString(this.(string))), nil
	}
	n["<java.lang.String: java.lang.String concat(java.lang.String)>"] = func(_ *scene.Method, this any, args []any) (any, error) {
		s, ok := args[0].(string)
		if !ok {
			return nil, m.throw("java.lang.NullPointerException", "concat of null")
		}
		return this.(string) + s, nil
	}
	n["<java.lang.String: java.lang.String toString()>"] = func(_ *scene.Method, this any, _ []any) (any, error) {
		return this, nil
	}

	n["<java.lang.Class: java.lang.Class forName(java.lang.String)>"] = m.classForName
	n["<java.lang.Class: java.lang.Object newInstance()>"] = m.classNewInstance
	n["<java.lang.Class: java.lang.String getName()>"] = m.className
	n["<java.lang.Class: java.lang.reflect.Method getMethod(java.lang.String,java.lang.Class[])>"] = m.getMethod
	n["<java.lang.Class: java.lang.reflect.Constructor getConstructor(java.lang.Class[])>"] = m.getConstructor
	n["<java.lang.reflect.Constructor: java.lang.Object newInstance(java.lang.Object[])>"] = m.constructorNewInstance
	n["<java.lang.reflect.Constructor: java.lang.Class getDeclaringClass()>"] = m.declaringClass
	n["<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>"] = m.methodInvoke
	n["<java.lang.reflect.Method: java.lang.String getName()>"] = m.methodName
	n["<java.lang.reflect.Method: java.lang.Class getDeclaringClass()>"] = m.declaringClass

	n["<java.util.HashSet: void <init>()>"] = m.setInit
	n["<java.util.HashSet: boolean add(java.lang.Object)>"] = m.setAdd
	n["<java.util.HashSet: boolean contains(java.lang.Object)>"] = m.setContains
	n["<java.util.HashSet: int size()>"] = m.setSize

	n["<java.lang.Throwable: void <init>()>"] = nop
	n["<java.lang.Throwable: void <init>(java.lang.String)>"] = m.throwableInit
	n["<java.lang.Throwable: java.lang.String getMessage()>"] = m.getMessage

	for p := ir.Boolean; p <= ir.Double; p++ {
		n[p.BoxMethod().Signature()] = func(_ *scene.Method, _ any, args []any) (any, error) {
			return m.box(p, args[0])
		}
		n[p.UnboxMethod().Signature()] = func(_ *scene.Method, this any, _ []any) (any, error) {
			return this.(*Object).Native, nil
		}
	}

	n[rtlib.Decision.Signature()] = m.decide
	n[rtlib.KeyMethod.Signature()] = m.key
	for _, k := range trace.Kinds() {
		n[rtlib.UnexpectedCall(k).Signature()] = func(_ *scene.Method, _ any, args []any) (any, error) {
			return nil, m.unexpected(k, args[len(args)-1])
		}
	}
	return n
}

// BindDecision makes the static boolean method sig answer from the Guard, the
// way the default decision routine does.
func (m *Machine) BindDecision(sig string) {
	m.natives[sig] = m.decide
}

func (m *Machine) decide(meth *scene.Method, this any, args []any) (any, error) {
	if m.Guard == nil {
		return m.interpret(meth, this, args)
	}
	return b2i(!m.Guard.ShouldTakeFallback()), nil
}

func (m *Machine) key(_ *scene.Method, _ any, args []any) (any, error) {
	return strconv.Itoa(int(args[0].(int32))) + handleName(args[1]), nil
}

func (m *Machine) unexpected(k trace.Kind, handle any) error {
	if m.Handler == nil {
		return nil
	}
	if err := m.Handler.UnexpectedCall(k, handleName(handle)); err != nil {
		return fmt.Errorf("unexpected %s call: %w", k.LogName(), err)
	}
	return nil
}

// handleName returns the registry form of a reflective handle: a class name
// for class names and Class objects, a signature for constructors and methods.
func handleName(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case *Object:
		switch p := v.Native.(type) {
		case string:
			return p
		case *scene.Method:
			return p.Signature()
		}
	}
	return Format(v)
}

func (m *Machine) box(p ir.PrimType, v any) (any, error) {
	obj, err := m.alloc(p.Boxed().Class)
	if err != nil {
		return nil, err
	}
	obj.Native = coerce(v, p)
	return obj, nil
}

func (m *Machine) classForName(_ *scene.Method, _ any, args []any) (any, error) {
	name, ok := args[0].(string)
	if !ok {
		return nil, m.throw("java.lang.NullPointerException", "class name is null")
	}
	if !m.Scene.HasClass(name) {
		return nil, m.throw("java.lang.ClassNotFoundException", name)
	}
	if err := m.ensureInit(name); err != nil {
		return nil, err
	}
	return m.classObject(name), nil
}

func (m *Machine) className(_ *scene.Method, this any, _ []any) (any, error) {
	return this.(*Object).Native, nil
}

func (m *Machine) classNewInstance(_ *scene.Method, this any, _ []any) (any, error) {
	name, _ := this.(*Object).Native.(string)
	c, err := m.Scene.Class(name)
	if err != nil || !c.Concrete() {
		return nil, m.throw("java.lang.InstantiationException", name)
	}
	ctor, err := m.Scene.Method("<" + name + ": void <init>()>")
	if err != nil {
		return nil, m.throw("java.lang.InstantiationException", name)
	}
	obj, err := m.alloc(name)
	if err != nil {
		return nil, err
	}
	if _, err := m.Invoke(ctor, obj, nil); err != nil {
		return nil, err
	}
	return obj, nil
}

// paramNames returns the type names held by an array of Class objects.
func paramNames(v any) []string {
	arr, ok := v.(*Array)
	if !ok {
		return nil
	}
	names := make([]string, len(arr.Data))
	for i, e := range arr.Data {
		names[i] = handleName(e)
	}
	return names
}

func sameParams(meth *scene.Method, names []string) bool {
	if len(meth.Params) != len(names) {
		return false
	}
	for i, p := range meth.Params {
		if p.String() != names[i] {
			return false
		}
	}
	return true
}

func (m *Machine) handleObject(class string, meth *scene.Method) *Object {
	c, _ := m.Scene.Class(class)
	return &Object{Class: c, Fields: make(map[string]any), Native: meth}
}

func (m *Machine) getMethod(_ *scene.Method, this any, args []any) (any, error) {
	owner, _ := this.(*Object).Native.(string)
	name, ok := args[0].(string)
	if !ok {
		return nil, m.throw("java.lang.NullPointerException", "method name is null")
	}
	params := paramNames(args[1])
	c, err := m.Scene.Class(owner)
	if err == nil {
		for _, k := range append([]*scene.Class{c}, m.Scene.Supertypes(owner)...) {
			for _, meth := range k.Methods {
				if meth.Name == name && sameParams(meth, params) {
					return m.handleObject("java.lang.reflect.Method", meth), nil
				}
			}
		}
	}
	return nil, m.throw("java.lang.NoSuchMethodException", owner+"."+name)
}

func (m *Machine) getConstructor(_ *scene.Method, this any, args []any) (any, error) {
	owner, _ := this.(*Object).Native.(string)
	params := paramNames(args[0])
	if c, err := m.Scene.Class(owner); err == nil {
		for _, meth := range c.Methods {
			if meth.IsConstructor() && sameParams(meth, params) {
				return m.handleObject("java.lang.reflect.Constructor", meth), nil
			}
		}
	}
	return nil, m.throw("java.lang.NoSuchMethodException", owner+".<init>")
}

func (m *Machine) declaringClass(_ *scene.Method, this any, _ []any) (any, error) {
	return m.classObject(this.(*Object).Native.(*scene.Method).Class.Name), nil
}

func (m *Machine) methodName(_ *scene.Method, this any, _ []any) (any, error) {
	return this.(*Object).Native.(*scene.Method).Name, nil
}

// unpack converts a reflective argument array to the formal parameters of
// target, unboxing primitives.
func (m *Machine) unpack(target *scene.Method, v any) ([]any, error) {
	var data []any
	if arr, ok := v.(*Array); ok {
		data = arr.Data
	}
	if len(data) != len(target.Params) {
		return nil, m.throw("java.lang.IllegalArgumentException", "wrong number of arguments")
	}
	out := make([]any, len(data))
	for i, p := range target.Params {
		a := data[i]
		if prim, ok := p.(ir.PrimType); ok {
			obj, ok := a.(*Object)
			if !ok || obj.Class.Name != prim.Boxed().Class {
				return nil, m.throw("java.lang.IllegalArgumentException", "argument type mismatch")
			}
			out[i] = obj.Native
			continue
		}
		if a != nil && !m.Scene.IsSubtypeOf(m.typeOf(a), p) {
			return nil, m.throw("java.lang.IllegalArgumentException", "argument type mismatch")
		}
		out[i] = a
	}
	return out, nil
}

// wrapTarget wraps an exception thrown by a reflectively called method in an
// InvocationTargetException.
func (m *Machine) wrapTarget(err error) error {
	var t *Throw
	if !errors.As(err, &t) {
		return err
	}
	obj, aerr := m.alloc("java.lang.reflect.InvocationTargetException")
	if aerr != nil {
		return aerr
	}
	obj.Native = t.Obj
	return &Throw{Obj: obj}
}

func (m *Machine) constructorNewInstance(_ *scene.Method, this any, args []any) (any, error) {
	ctor := this.(*Object).Native.(*scene.Method)
	if !ctor.Class.Concrete() {
		return nil, m.throw("java.lang.InstantiationException", ctor.Class.Name)
	}
	actual, err := m.unpack(ctor, args[0])
	if err != nil {
		return nil, err
	}
	obj, err := m.alloc(ctor.Class.Name)
	if err != nil {
		return nil, err
	}
	if _, err := m.Invoke(ctor, obj, actual); err != nil {
		return nil, m.wrapTarget(err)
	}
	return obj, nil
}

func (m *Machine) methodInvoke(_ *scene.Method, this any, args []any) (any, error) {
	target := this.(*Object).Native.(*scene.Method)
	recv := args[0]
	if !target.Static {
		if recv == nil {
			return nil, m.throw("java.lang.NullPointerException", "invoking "+target.Name+" on null")
		}
		if !m.Scene.IsSubtypeOf(m.typeOf(recv), ir.Ref(target.Class.Name)) {
			return nil, m.throw("java.lang.IllegalArgumentException", "object is not an instance of declaring class")
		}
		class := ir.ObjectType.Class
		if t, ok := m.typeOf(recv).(ir.RefType); ok {
			class = t.Class
		}
		dispatched, err := m.Scene.ResolveConcreteDispatch(class, target.Ref())
		if err != nil {
			return nil, err
		}
		target = dispatched
	} else {
		recv = nil
		if err := m.ensureInit(target.Class.Name); err != nil {
			return nil, err
		}
	}
	actual, err := m.unpack(target, args[1])
	if err != nil {
		return nil, err
	}
	res, err := m.Invoke(target, recv, actual)
	if err != nil {
		return nil, m.wrapTarget(err)
	}
	if p, ok := target.Return.(ir.PrimType); ok {
		return m.box(p, res)
	}
	return res, nil
}

func (m *Machine) hashSet(this any) *hashSet {
	obj := this.(*Object)
	hs, ok := obj.Native.(*hashSet)
	if !ok {
		hs = &hashSet{keys: make(map[any]bool)}
		obj.Native = hs
	}
	return hs
}

func (m *Machine) setInit(_ *scene.Method, this any, _ []any) (any, error) {
	m.hashSet(this)
	return nil, nil
}

func (m *Machine) setAdd(_ *scene.Method, this any, args []any) (any, error) {
	hs := m.hashSet(this)
	k := setKey(args[0])
	if hs.keys[k] {
		return int32(0), nil
	}
	hs.keys[k] = true
	hs.order = append(hs.order, args[0])
	return int32(1), nil
}

func (m *Machine) setContains(_ *scene.Method, this any, args []any) (any, error) {
	return b2i(m.hashSet(this).keys[setKey(args[0])]), nil
}

func (m *Machine) setSize(_ *scene.Method, this any, _ []any) (any, error) {
	return int32(len(m.hashSet(this).order)), nil
}

func (m *Machine) throwableInit(_ *scene.Method, this any, args []any) (any, error) {
	this.(*Object).Fields["message"] = args[0]
	return nil, nil
}

func (m *Machine) getMessage(_ *scene.Method, this any, _ []any) (any, error) {
	return this.(*Object).Fields["message"], nil
}
