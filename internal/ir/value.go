package ir

import (
	"math"
	"strconv"
	"strings"
)

// Value is an operand or expression appearing in a statement.
type Value interface {
	Type() Type
	String() string
}

// Local is a typed method-local variable. Locals are compared by identity.
type Local struct {
	Name string
	T    Type
}

func (l *Local) Type() Type     { return l.T }
func (l *Local) String() string { return l.Name }

// IntConstant is an int (and boolean/char/short/byte) literal.
type IntConstant int32

func (IntConstant) Type() Type       { return Int }
func (c IntConstant) String() string { return strconv.FormatInt(int64(c), 10) }

// LongConstant is a long literal.
type LongConstant int64

func (LongConstant) Type() Type       { return Long }
func (c LongConstant) String() string { return strconv.FormatInt(int64(c), 10) + "L" }

// FloatConstant is a float literal.
type FloatConstant float32

func (FloatConstant) Type() Type { return Float }
func (c FloatConstant) String() string {
	return floatString(float64(c), 32) + "F"
}

// DoubleConstant is a double literal.
type DoubleConstant float64

func (DoubleConstant) Type() Type       { return Double }
func (c DoubleConstant) String() string { return floatString(float64(c), 64) }

func floatString(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !math.IsInf(f, 0) && !math.IsNaN(f) && !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// StringConstant is a string literal.
type StringConstant string

func (StringConstant) Type() Type       { return StringType }
func (c StringConstant) String() string { return strconv.Quote(string(c)) }

// NullConstant is the null reference.
type NullConstant struct{}

// Null is the null reference constant.
var Null = NullConstant{}

func (NullConstant) Type() Type     { return NullType{} }
func (NullConstant) String() string { return "null" }

// ClassConstant is a class literal in internal form, e.g. "a/B".
type ClassConstant string

// ClassLiteral returns the class constant for a dotted class name.
func ClassLiteral(class string) ClassConstant {
	return ClassConstant(strings.ReplaceAll(class, ".", "/"))
}

func (ClassConstant) Type() Type       { return ClassType }
func (c ClassConstant) String() string { return "class " + strconv.Quote(string(c)) }

// ClassName returns the dotted class name named by c.
func (c ClassConstant) ClassName() string { return strings.ReplaceAll(string(c), "/", ".") }

// MethodRef is a symbolic reference to a method.
type MethodRef struct {
	Class  string
	Name   string
	Params []Type
	Return Type
	Static bool
}

// SubSignature returns "R name(P1,P2)".
func (m *MethodRef) SubSignature() string {
	var sb strings.Builder
	sb.WriteString(m.Return.String())
	sb.WriteByte(' ')
	sb.WriteString(m.Name)
	sb.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Signature returns "<C: R name(P1,P2)>".
func (m *MethodRef) Signature() string {
	return "<" + m.Class + ": " + m.SubSignature() + ">"
}

func (m *MethodRef) String() string { return m.Signature() }

// FieldRef is a symbolic reference to a field.
type FieldRef struct {
	Class  string
	Name   string
	T      Type
	Static bool
}

// Signature returns "<C: T name>".
func (f *FieldRef) Signature() string {
	return "<" + f.Class + ": " + f.T.String() + " " + f.Name + ">"
}

// InvokeKind selects the dispatch of an invoke expression.
type InvokeKind int

// Invoke kinds.
const (
	StaticInvoke InvokeKind = iota
	VirtualInvoke
	SpecialInvoke
	InterfaceInvoke
)

var invokeKindNames = [...]string{"staticinvoke", "virtualinvoke", "specialinvoke", "interfaceinvoke"}

func (k InvokeKind) String() string { return invokeKindNames[k] }

// InvokeExpr calls Method. Base is nil for StaticInvoke.
type InvokeExpr struct {
	Kind   InvokeKind
	Method *MethodRef
	Base   Value
	Args   []Value
}

// NewStaticInvoke returns a static call of m.
func NewStaticInvoke(m *MethodRef, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: StaticInvoke, Method: m, Args: args}
}

// NewVirtualInvoke returns a virtual call of m on base.
func NewVirtualInvoke(base Value, m *MethodRef, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: VirtualInvoke, Method: m, Base: base, Args: args}
}

// NewSpecialInvoke returns a non-virtual instance call of m on base.
func NewSpecialInvoke(base Value, m *MethodRef, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: SpecialInvoke, Method: m, Base: base, Args: args}
}

// NewInterfaceInvoke returns an interface call of m on base.
func NewInterfaceInvoke(base Value, m *MethodRef, args ...Value) *InvokeExpr {
	return &InvokeExpr{Kind: InterfaceInvoke, Method: m, Base: base, Args: args}
}

func (e *InvokeExpr) Type() Type { return e.Method.Return }

func (e *InvokeExpr) String() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteByte(' ')
	if e.Base != nil {
		sb.WriteString(e.Base.String())
		sb.WriteByte('.')
	}
	sb.WriteString(e.Method.Signature())
	sb.WriteByte('(')
	for i, a := range e.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// NewExpr allocates an uninitialized instance of T.
type NewExpr struct {
	T RefType
}

func (e *NewExpr) Type() Type     { return e.T }
func (e *NewExpr) String() string { return "new " + e.T.String() }

// NewArrayExpr allocates an array of Size elements.
type NewArrayExpr struct {
	Elem Type
	Size Value
}

func (e *NewArrayExpr) Type() Type { return ArrayType{Elem: e.Elem} }
func (e *NewArrayExpr) String() string {
	return "newarray (" + e.Elem.String() + ")[" + e.Size.String() + "]"
}

// CastExpr converts Op to To.
type CastExpr struct {
	Op Value
	To Type
}

func (e *CastExpr) Type() Type     { return e.To }
func (e *CastExpr) String() string { return "(" + e.To.String() + ") " + e.Op.String() }

// ArrayRef reads or writes one array element.
type ArrayRef struct {
	Base  Value
	Index Value
}

func (r *ArrayRef) Type() Type {
	if a, ok := r.Base.Type().(ArrayType); ok {
		return a.Elem
	}
	return ObjectType
}

func (r *ArrayRef) String() string { return r.Base.String() + "[" + r.Index.String() + "]" }

// StaticFieldRef reads or writes a static field.
type StaticFieldRef struct {
	Field *FieldRef
}

func (r *StaticFieldRef) Type() Type     { return r.Field.T }
func (r *StaticFieldRef) String() string { return r.Field.Signature() }

// InstanceFieldRef reads or writes a field of Base.
type InstanceFieldRef struct {
	Base  Value
	Field *FieldRef
}

func (r *InstanceFieldRef) Type() Type     { return r.Field.T }
func (r *InstanceFieldRef) String() string { return r.Base.String() + "." + r.Field.Signature() }

// ParameterRef names the Index-th formal parameter in an identity statement.
type ParameterRef struct {
	Index int
	T     Type
}

func (r *ParameterRef) Type() Type { return r.T }
func (r *ParameterRef) String() string {
	return "@parameter" + strconv.Itoa(r.Index) + ": " + r.T.String()
}

// ThisRef names the receiver in an identity statement.
type ThisRef struct {
	T Type
}

func (r *ThisRef) Type() Type     { return r.T }
func (r *ThisRef) String() string { return "@this: " + r.T.String() }

// CondOp is a comparison operator.
type CondOp string

// Comparison operators.
const (
	Eq CondOp = "=="
	Ne CondOp = "!="
	Lt CondOp = "<"
	Le CondOp = "<="
	Gt CondOp = ">"
	Ge CondOp = ">="
)

// ConditionExpr compares two operands; it only appears in if statements.
type ConditionExpr struct {
	Op CondOp
	L  Value
	R  Value
}

func (e *ConditionExpr) Type() Type     { return Boolean }
func (e *ConditionExpr) String() string { return e.L.String() + " " + string(e.Op) + " " + e.R.String() }

// valueSlots returns pointers to the operands nested inside v. A bare local or
// constant has no nested operands.
func valueSlots(v Value) []*Value {
	switch e := v.(type) {
	case *InvokeExpr:
		slots := make([]*Value, 0, len(e.Args)+1)
		if e.Base != nil {
			slots = append(slots, &e.Base)
		}
		for i := range e.Args {
			slots = append(slots, &e.Args[i])
		}
		return slots
	case *NewArrayExpr:
		return []*Value{&e.Size}
	case *CastExpr:
		return []*Value{&e.Op}
	case *ArrayRef:
		return []*Value{&e.Base, &e.Index}
	case *InstanceFieldRef:
		return []*Value{&e.Base}
	case *ConditionExpr:
		return []*Value{&e.L, &e.R}
	}
	return nil
}

// collectUseSlots appends the slot of v and all slots nested inside it.
func collectUseSlots(dst []*Value, slot *Value) []*Value {
	dst = append(dst, slot)
	for _, s := range valueSlots(*slot) {
		dst = collectUseSlots(dst, s)
	}
	return dst
}
