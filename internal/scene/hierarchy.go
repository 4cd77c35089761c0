package scene

import (
	"fmt"
	"slices"

	"github.com/715d/reflinline/internal/ir"
)

// Supertypes returns the superclasses of name, nearest first, ending at
// java.lang.Object. Unknown classes end the walk.
func (s *Scene) Supertypes(name string) []*Class {
	var out []*Class
	seen := make(map[string]bool)
	for c, ok := s.classes[name]; ok && !seen[c.Name]; c, ok = s.classes[c.Super] {
		seen[c.Name] = true
		if c.Name != name {
			out = append(out, c)
		}
		if c.Super == "" {
			break
		}
	}
	return out
}

// IsSubtype reports whether sub is sup or extends or implements it,
// directly or transitively.
func (s *Scene) IsSubtype(sub, sup string) bool {
	if sub == sup || sup == ObjectClass {
		return true
	}
	seen := make(map[string]bool)
	work := []string{sub}
	for len(work) > 0 {
		name := work[len(work)-1]
		work = work[:len(work)-1]
		if name == sup {
			return true
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		c, ok := s.classes[name]
		if !ok {
			continue
		}
		if c.Super != "" {
			work = append(work, c.Super)
		}
		work = append(work, c.Interfaces...)
	}
	return false
}

// IsSubtypeOf reports whether a value of type t may be stored in a location
// of type sup. Arrays are covariant; every reference type is an Object.
func (s *Scene) IsSubtypeOf(t, sup ir.Type) bool {
	switch sup := sup.(type) {
	case ir.RefType:
		switch t := t.(type) {
		case ir.RefType:
			return s.IsSubtype(t.Class, sup.Class)
		case ir.ArrayType:
			return sup.Class == ObjectClass
		case ir.NullType:
			return true
		}
	case ir.ArrayType:
		switch t := t.(type) {
		case ir.ArrayType:
			if ir.IsRef(t.Elem) && ir.IsRef(sup.Elem) {
				return s.IsSubtypeOf(t.Elem, sup.Elem)
			}
			return t.Elem.String() == sup.Elem.String()
		case ir.NullType:
			return true
		}
	}
	return t.String() == sup.String()
}

// ResolveConcreteDispatch finds the method that a call of ref on a receiver
// of runtime class name executes: the first non-abstract method with the
// same name and sub-signature, searching name and then its superclasses.
func (s *Scene) ResolveConcreteDispatch(name string, ref *ir.MethodRef) (*Method, error) {
	c, err := s.Class(name)
	if err != nil {
		return nil, err
	}
	if !c.Concrete() {
		return nil, fmt.Errorf("dispatch on non-concrete class %s", name)
	}
	sub := ref.SubSignature()
	for _, k := range append([]*Class{c}, s.Supertypes(name)...) {
		for _, m := range k.Methods {
			if m.Name == ref.Name && !m.Static && m.Concrete() && m.SubSignature() == sub {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("dispatch of %s on %s: %w", ref.SubSignature(), name, ErrNotFound)
}

// ResolveDispatch returns the distinct targets of a call of ref on receivers
// of the given runtime classes. Classes that are not concrete subtypes of
// the declaring class, or that do not resolve, contribute nothing.
func (s *Scene) ResolveDispatch(types []string, ref *ir.MethodRef) []*Method {
	var out []*Method
	for _, t := range types {
		c, ok := s.classes[t]
		if !ok || !c.Concrete() || !s.IsSubtype(t, ref.Class) {
			continue
		}
		m, err := s.ResolveConcreteDispatch(t, ref)
		if err != nil {
			continue
		}
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// ConcreteSubtypes returns the concrete classes that are subtypes of name,
// including name itself, in scene order.
func (s *Scene) ConcreteSubtypes(name string) []*Class {
	var out []*Class
	for _, c := range s.order {
		if c.Concrete() && s.IsSubtype(c.Name, name) {
			out = append(out, c)
		}
	}
	return out
}
