package ir

import (
	"errors"
	"fmt"
)

// ErrInvalidBody is returned by Validate for structurally broken bodies.
var ErrInvalidBody = errors.New("invalid body")

// Validate checks the structural invariants that rewriting must preserve:
// every local used is declared, every branch target is in the chain,
// identity statements form a prefix, invoke expressions have the right
// shape, and control cannot run off the end of the body.
func (b *Body) Validate() error {
	if b.Units.Len() == 0 {
		return fmt.Errorf("%w: no statements", ErrInvalidBody)
	}
	inPrefix := true
	for i, s := range b.Units.stmts {
		fail := func(format string, args ...any) error {
			return fmt.Errorf("%w: statement %d %q: %s", ErrInvalidBody, i, s, fmt.Sprintf(format, args...))
		}

		if _, ok := s.(*IdentityStmt); ok {
			if !inPrefix {
				return fail("identity statement after the first non-identity statement")
			}
		} else {
			inPrefix = false
		}

		if d := Def(s); d != nil && b.names[d.Name] != d {
			return fail("undeclared local %s", d.Name)
		}
		for _, l := range Uses(s) {
			if b.names[l.Name] != l {
				return fail("undeclared local %s", l.Name)
			}
		}
		for _, t := range Targets(s) {
			if t == nil || !b.Units.Contains(t) {
				return fail("branch target not in body")
			}
		}
		if e := InvokeOf(s); e != nil {
			if err := checkInvoke(e); err != nil {
				return fail("%v", err)
			}
		}
		if a, ok := s.(*AssignStmt); ok {
			if _, isCall := a.Right.(*InvokeExpr); isCall {
				if _, isLocal := a.Left.(*Local); !isLocal {
					return fail("call result stored to non-local %s", a.Left)
				}
			}
		}
	}
	if last := b.Units.Last(); FallsThrough(last) {
		return fmt.Errorf("%w: control falls off the end after %q", ErrInvalidBody, last)
	}
	return nil
}

func checkInvoke(e *InvokeExpr) error {
	if (e.Kind == StaticInvoke) != (e.Base == nil) {
		return fmt.Errorf("%s with base %v", e.Kind, e.Base)
	}
	if (e.Kind == StaticInvoke) != e.Method.Static {
		return fmt.Errorf("%s of method with static=%t", e.Kind, e.Method.Static)
	}
	if len(e.Args) != len(e.Method.Params) {
		return fmt.Errorf("%d arguments for %d parameters", len(e.Args), len(e.Method.Params))
	}
	return nil
}
