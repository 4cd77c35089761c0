package ir

import (
	"fmt"
	"slices"
)

// Chain is the ordered statement sequence of a body. Mutations keep the
// relative order of untouched statements.
type Chain struct {
	stmts []Stmt
}

// NewChain returns a chain holding stmts in order.
func NewChain(stmts ...Stmt) *Chain {
	return &Chain{stmts: slices.Clone(stmts)}
}

// Len returns the number of statements.
func (c *Chain) Len() int { return len(c.stmts) }

// At returns the i-th statement.
func (c *Chain) At(i int) Stmt { return c.stmts[i] }

// Index returns the position of s, or -1.
func (c *Chain) Index(s Stmt) int {
	for i, x := range c.stmts {
		if x == s {
			return i
		}
	}
	return -1
}

// Contains reports whether s is in the chain.
func (c *Chain) Contains(s Stmt) bool { return c.Index(s) >= 0 }

// First returns the first statement, or nil.
func (c *Chain) First() Stmt {
	if len(c.stmts) == 0 {
		return nil
	}
	return c.stmts[0]
}

// Last returns the last statement, or nil.
func (c *Chain) Last() Stmt {
	if len(c.stmts) == 0 {
		return nil
	}
	return c.stmts[len(c.stmts)-1]
}

// Succ returns the statement after s, or nil.
func (c *Chain) Succ(s Stmt) Stmt {
	i := c.Index(s)
	if i < 0 || i+1 >= len(c.stmts) {
		return nil
	}
	return c.stmts[i+1]
}

// Pred returns the statement before s, or nil.
func (c *Chain) Pred(s Stmt) Stmt {
	i := c.Index(s)
	if i <= 0 {
		return nil
	}
	return c.stmts[i-1]
}

// Snapshot returns a copy of the current order, safe to range over while
// the chain is mutated.
func (c *Chain) Snapshot() []Stmt { return slices.Clone(c.stmts) }

// Append adds stmts at the end.
func (c *Chain) Append(stmts ...Stmt) { c.stmts = append(c.stmts, stmts...) }

// InsertBefore inserts stmts immediately before point. Branches to point
// are left alone.
func (c *Chain) InsertBefore(point Stmt, stmts ...Stmt) error {
	i := c.Index(point)
	if i < 0 {
		return fmt.Errorf("insert before %q: statement not in chain", point)
	}
	c.stmts = slices.Insert(c.stmts, i, stmts...)
	return nil
}

// InsertAfter inserts stmts immediately after point.
func (c *Chain) InsertAfter(point Stmt, stmts ...Stmt) error {
	i := c.Index(point)
	if i < 0 {
		return fmt.Errorf("insert after %q: statement not in chain", point)
	}
	c.stmts = slices.Insert(c.stmts, i+1, stmts...)
	return nil
}

// Remove deletes s. Branches to s are redirected to its successor.
func (c *Chain) Remove(s Stmt) error {
	i := c.Index(s)
	if i < 0 {
		return fmt.Errorf("remove %q: statement not in chain", s)
	}
	if c.IsTarget(s) {
		if i+1 >= len(c.stmts) {
			return fmt.Errorf("remove %q: last statement is a branch target", s)
		}
		c.redirect(s, c.stmts[i+1])
	}
	c.stmts = slices.Delete(c.stmts, i, i+1)
	return nil
}

// Replace substitutes seq for s in one step. Branches to s are redirected to
// seq[0]. s itself may appear in seq, in which case it stays in the chain.
func (c *Chain) Replace(s Stmt, seq ...Stmt) error {
	i := c.Index(s)
	if i < 0 {
		return fmt.Errorf("replace %q: statement not in chain", s)
	}
	if len(seq) == 0 {
		return c.Remove(s)
	}
	if seq[0] != s {
		c.redirect(s, seq[0])
	}
	c.stmts = slices.Replace(c.stmts, i, i+1, seq...)
	return nil
}

// IsTarget reports whether some statement in the chain branches to s.
func (c *Chain) IsTarget(s Stmt) bool {
	for _, x := range c.stmts {
		if slices.Contains(Targets(x), s) {
			return true
		}
	}
	return false
}

func (c *Chain) redirect(from, to Stmt) {
	for _, x := range c.stmts {
		retarget(x, from, to)
	}
}
