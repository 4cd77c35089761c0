// Package ir defines the statement-level intermediate representation that the
// reflective-call inliner rewrites: typed locals, three-address statements kept
// in an ordered chain, and the text form, validator and CFG view over them.
package ir

import (
	"fmt"
	"strings"
)

// Type is the static type of a local or value.
type Type interface {
	String() string
	isType()
}

// PrimType is one of the eight primitive types.
type PrimType int

// Primitive types.
const (
	Boolean PrimType = iota
	Byte
	Char
	Short
	Int
	Long
	Float
	Double
)

var primNames = [...]string{"boolean", "byte", "char", "short", "int", "long", "float", "double"}

var boxNames = [...]string{
	"java.lang.Boolean",
	"java.lang.Byte",
	"java.lang.Character",
	"java.lang.Short",
	"java.lang.Integer",
	"java.lang.Long",
	"java.lang.Float",
	"java.lang.Double",
}

func (p PrimType) String() string { return primNames[p] }

func (PrimType) isType() {}

// Boxed returns the wrapper class of p.
func (p PrimType) Boxed() RefType { return RefType{Class: boxNames[p]} }

// UnboxMethod returns the wrapper accessor yielding the primitive value, e.g. intValue.
func (p PrimType) UnboxMethod() *MethodRef {
	return &MethodRef{Class: boxNames[p], Name: p.String() + "Value", Return: p}
}

// BoxMethod returns the static wrapper factory, e.g. Integer.valueOf(int).
func (p PrimType) BoxMethod() *MethodRef {
	return &MethodRef{Class: boxNames[p], Name: "valueOf", Params: []Type{p}, Return: p.Boxed(), Static: true}
}

// RefType is a class or interface type.
type RefType struct {
	Class string
}

// Ref returns the reference type of the named class.
func Ref(class string) RefType { return RefType{Class: class} }

func (r RefType) String() string { return r.Class }

func (RefType) isType() {}

// ArrayType is an array of Elem.
type ArrayType struct {
	Elem Type
}

func (a ArrayType) String() string { return a.Elem.String() + "[]" }

func (ArrayType) isType() {}

// VoidType is the return type of methods without a result.
type VoidType struct{}

func (VoidType) String() string { return "void" }

func (VoidType) isType() {}

// NullType is the type of the null constant.
type NullType struct{}

func (NullType) String() string { return "null_type" }

func (NullType) isType() {}

// Common types.
var (
	Void        Type = VoidType{}
	ObjectType       = Ref("java.lang.Object")
	StringType       = Ref("java.lang.String")
	ClassType        = Ref("java.lang.Class")
	ObjectArray      = ArrayType{Elem: ObjectType}
)

// ParseType parses a type name such as "int", "java.lang.String" or "a.B[][]".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	dims := 0
	for strings.HasSuffix(s, "[]") {
		s = strings.TrimSuffix(s, "[]")
		dims++
	}
	if s == "" {
		return nil, fmt.Errorf("empty type name")
	}

	var t Type
	switch s {
	case "void":
		if dims > 0 {
			return nil, fmt.Errorf("array of void")
		}
		return Void, nil
	default:
		for i, name := range primNames {
			if name == s {
				t = PrimType(i)
				break
			}
		}
		if t == nil {
			if !isTypeName(s) {
				return nil, fmt.Errorf("invalid type name %q", s)
			}
			t = Ref(s)
		}
	}
	for range dims {
		t = ArrayType{Elem: t}
	}
	return t, nil
}

// MustParseType is like ParseType but panics on malformed input.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

func isTypeName(s string) bool {
	for _, r := range s {
		if !isIdentRune(r) && r != '.' {
			return false
		}
	}
	return s != ""
}

// IsRef reports whether values of t are object references.
func IsRef(t Type) bool {
	switch t.(type) {
	case RefType, ArrayType, NullType:
		return true
	}
	return false
}
