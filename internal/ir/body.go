package ir

import (
	"fmt"
	"strconv"
)

// Body is a method body: its declared locals and its statement chain.
type Body struct {
	Locals []*Local
	Units  *Chain

	names map[string]*Local
}

// NewBody returns an empty body.
func NewBody() *Body {
	return &Body{Units: NewChain(), names: make(map[string]*Local)}
}

// Local returns the declared local with the given name, or nil.
func (b *Body) Local(name string) *Local { return b.names[name] }

// AddLocal declares l. Names must be unique within a body.
func (b *Body) AddLocal(l *Local) error {
	if _, dup := b.names[l.Name]; dup {
		return fmt.Errorf("duplicate local %q", l.Name)
	}
	b.names[l.Name] = l
	b.Locals = append(b.Locals, l)
	return nil
}

// RemoveLocal drops l from the declarations.
func (b *Body) RemoveLocal(l *Local) {
	if b.names[l.Name] != l {
		return
	}
	delete(b.names, l.Name)
	for i, x := range b.Locals {
		if x == l {
			b.Locals = append(b.Locals[:i], b.Locals[i+1:]...)
			return
		}
	}
}

// NewLocal declares a fresh local of type t named after its type: $z for
// boolean, $i for int, $r for references and so on, with the lowest free
// numeric suffix.
func (b *Body) NewLocal(t Type) *Local {
	prefix := "$" + localPrefix(t)
	for n := 0; ; n++ {
		name := prefix + strconv.Itoa(n)
		if _, taken := b.names[name]; !taken {
			l := &Local{Name: name, T: t}
			b.names[name] = l
			b.Locals = append(b.Locals, l)
			return l
		}
	}
}

func localPrefix(t Type) string {
	if p, ok := t.(PrimType); ok {
		switch p {
		case Boolean:
			return "z"
		case Byte:
			return "b"
		case Char:
			return "c"
		case Short:
			return "s"
		case Int:
			return "i"
		case Long:
			return "l"
		case Float:
			return "f"
		case Double:
			return "d"
		}
	}
	return "r"
}

// ParameterLocal returns the local bound to the i-th parameter, or nil.
func (b *Body) ParameterLocal(i int) *Local {
	for _, s := range b.Units.stmts {
		id, ok := s.(*IdentityStmt)
		if !ok {
			break
		}
		if p, ok := id.Right.(*ParameterRef); ok && p.Index == i {
			return id.Left
		}
	}
	return nil
}

// ThisLocal returns the local bound to the receiver, or nil.
func (b *Body) ThisLocal() *Local {
	for _, s := range b.Units.stmts {
		id, ok := s.(*IdentityStmt)
		if !ok {
			break
		}
		if _, ok := id.Right.(*ThisRef); ok {
			return id.Left
		}
	}
	return nil
}

// FirstNonIdentity returns the first statement that is not an identity
// statement, or nil if there is none.
func (b *Body) FirstNonIdentity() Stmt {
	for _, s := range b.Units.stmts {
		if _, ok := s.(*IdentityStmt); !ok {
			return s
		}
	}
	return nil
}

// Clone returns a deep copy of b. It fails only if b uses undeclared locals.
func (b *Body) Clone() (*Body, error) {
	c, err := Parse(b.String())
	if err != nil {
		return nil, fmt.Errorf("cloning body: %w", err)
	}
	return c, nil
}
