package interp

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/scene"
)

// Run-time values are represented as:
//
//	boolean, byte, char, short, int  int32
//	long                             int64
//	float                            float32
//	double                           float64
//	java.lang.String                 string
//	null                             nil
//	arrays                           *Array
//	everything else                  *Object

// Object is a heap object. Native holds the payload of library objects: the
// type name of a Class, the *scene.Method of a Constructor or Method, the
// primitive value of a box and the elements of a HashSet.
type Object struct {
	Class  *scene.Class
	Fields map[string]any
	Native any
}

// Array is a Java array.
type Array struct {
	Elem ir.Type
	Data []any
}

// Throw is the error returned when Java code throws. It carries the thrown
// object out of every frame it passes through.
type Throw struct {
	Obj *Object
}

func (t *Throw) Error() string {
	if msg, ok := t.Obj.Fields["message"].(string); ok {
		return t.Obj.Class.Name + ": " + msg
	}
	return t.Obj.Class.Name
}

// Class returns the name of the thrown class.
func (t *Throw) Class() string { return t.Obj.Class.Name }

// Cause returns the wrapped target exception of an InvocationTargetException.
func (t *Throw) Cause() *Throw {
	if c, ok := t.Obj.Native.(*Object); ok {
		return &Throw{Obj: c}
	}
	return nil
}

type hashSet struct {
	keys  map[any]bool
	order []any
}

// setKey maps a value to a comparable key with Java equals semantics for
// strings and boxes.
func setKey(v any) any {
	if o, ok := v.(*Object); ok && isBox(o.Class.Name) {
		return [2]any{o.Class.Name, o.Native}
	}
	return v
}

func isBox(class string) bool {
	for p := ir.Boolean; p <= ir.Double; p++ {
		if p.Boxed().Class == class {
			return true
		}
	}
	return false
}

// zero returns the default value of a field or array element of type t.
func zero(t ir.Type) any {
	if p, ok := t.(ir.PrimType); ok {
		switch p {
		case ir.Long:
			return int64(0)
		case ir.Float:
			return float32(0)
		case ir.Double:
			return float64(0)
		}
		return int32(0)
	}
	return nil
}

// coerce converts numeric v to the representation of primitive t.
func coerce(v any, t ir.Type) any {
	p, ok := t.(ir.PrimType)
	if !ok {
		return v
	}
	var i int64
	var f float64
	isFloat := false
	switch v := v.(type) {
	case int32:
		i = int64(v)
	case int64:
		i = v
	case float32:
		f, isFloat = float64(v), true
	case float64:
		f, isFloat = v, true
	default:
		return v
	}
	if isFloat {
		i = int64(f)
	} else {
		f = float64(i)
	}
	switch p {
	case ir.Boolean:
		if i != 0 {
			return int32(1)
		}
		return int32(0)
	case ir.Byte:
		return int32(int8(i))
	case ir.Char:
		return int32(uint16(i))
	case ir.Short:
		return int32(int16(i))
	case ir.Int:
		return int32(i)
	case ir.Long:
		return i
	case ir.Float:
		return float32(f)
	case ir.Double:
		return f
	}
	return v
}

// Format renders v for comparison in tests and reports. Objects are shown by
// class and fields, so two runs that build equal object graphs print the same.
func Format(v any) string {
	var sb strings.Builder
	format(&sb, v, 0)
	return sb.String()
}

func format(sb *strings.Builder, v any, depth int) {
	switch v := v.(type) {
	case nil:
		sb.WriteString("null")
	case int32:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		sb.WriteString(ir.LongConstant(v).String())
	case float32:
		sb.WriteString(ir.FloatConstant(v).String())
	case float64:
		sb.WriteString(ir.DoubleConstant(v).String())
	case string:
		sb.WriteString(strconv.Quote(v))
	case *Array:
		sb.WriteString(v.Elem.String())
		sb.WriteByte('[')
		for i, e := range v.Data {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e, depth+1)
		}
		sb.WriteByte(']')
	case *Object:
		formatObject(sb, v, depth)
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}

func formatObject(sb *strings.Builder, o *Object, depth int) {
	switch p := o.Native.(type) {
	case string:
		sb.WriteString("class " + p)
		return
	case *scene.Method:
		sb.WriteString(p.Signature())
		return
	case *hashSet:
		sb.WriteString(o.Class.Name)
		sb.WriteByte('{')
		for i, k := range p.order {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, k, depth+1)
		}
		sb.WriteByte('}')
		return
	}
	if isBox(o.Class.Name) {
		sb.WriteString(o.Class.Name)
		sb.WriteByte('(')
		format(sb, o.Native, depth+1)
		sb.WriteByte(')')
		return
	}
	sb.WriteString(o.Class.Name)
	if depth > 4 {
		sb.WriteString("{...}")
		return
	}
	sb.WriteByte('{')
	names := make([]string, 0, len(o.Fields))
	for name := range o.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		format(sb, o.Fields[name], depth+1)
	}
	sb.WriteByte('}')
}
