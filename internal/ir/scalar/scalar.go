// Package scalar implements the intraprocedural clean-up passes run on a body
// after it has been rewritten: dead assignment elimination, copy propagation,
// nop removal and unused local removal.
package scalar

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/reflinline/internal/ir"
)

// Normalize runs the clean-up passes in their fixed order. Dead assignments
// are eliminated twice so that copies made dead by propagation disappear too.
func Normalize(b *ir.Body) error {
	if _, err := DeadAssignments(b); err != nil {
		return fmt.Errorf("eliminating dead assignments: %w", err)
	}
	CopyPropagation(b)
	if _, err := DeadAssignments(b); err != nil {
		return fmt.Errorf("eliminating dead assignments: %w", err)
	}
	if _, err := Nops(b); err != nil {
		return fmt.Errorf("removing nops: %w", err)
	}
	UnusedLocals(b)
	return nil
}

// localIDs numbers the declared locals of b for use in sparse sets.
func localIDs(b *ir.Body) map[*ir.Local]int {
	ids := make(map[*ir.Local]int, len(b.Locals))
	for i, l := range b.Locals {
		ids[l] = i
	}
	return ids
}

// DeadAssignments removes assignments to locals whose value is never read
// by a statement that must be kept. An assignment is kept regardless of
// liveness when evaluating it can have an effect: calls, casts, array and
// field accesses, and array allocation. A call whose result is dead is kept
// as a plain call. It returns the number of statements removed or rewritten.
func DeadAssignments(b *ir.Body) (int, error) {
	stmts := b.Units.Snapshot()
	ids := localIDs(b)

	defs := make(map[*ir.Local][]int)
	for i, s := range stmts {
		if d := ir.Def(s); d != nil {
			defs[d] = append(defs[d], i)
		}
	}

	var essential intsets.Sparse
	var work []int
	for i, s := range stmts {
		if !removable(s) {
			essential.Insert(i)
			work = append(work, i)
		}
	}

	var live intsets.Sparse
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		for _, u := range ir.Uses(stmts[i]) {
			id, ok := ids[u]
			if !ok || !live.Insert(id) {
				continue
			}
			for _, d := range defs[u] {
				if essential.Insert(d) {
					work = append(work, d)
				}
			}
		}
	}

	changed := 0
	for i, s := range stmts {
		if !essential.Has(i) {
			if err := b.Units.Remove(s); err != nil {
				return changed, err
			}
			changed++
			continue
		}
		a, ok := s.(*ir.AssignStmt)
		if !ok {
			continue
		}
		call, isCall := a.Right.(*ir.InvokeExpr)
		l, isLocal := a.Left.(*ir.Local)
		if isCall && isLocal && !live.Has(ids[l]) {
			if err := b.Units.Replace(s, ir.NewInvokeStmt(call)); err != nil {
				return changed, err
			}
			changed++
		}
	}
	return changed, nil
}

// removable reports whether s may be dropped when the local it defines is dead.
func removable(s ir.Stmt) bool {
	a, ok := s.(*ir.AssignStmt)
	if !ok {
		return false
	}
	if _, ok := a.Left.(*ir.Local); !ok {
		return false
	}
	switch a.Right.(type) {
	case *ir.Local, *ir.NewExpr, *ir.StaticFieldRef,
		ir.IntConstant, ir.LongConstant, ir.FloatConstant, ir.DoubleConstant,
		ir.StringConstant, ir.NullConstant, ir.ClassConstant:
		return true
	}
	return false
}

// CopyPropagation replaces uses of a local that is defined exactly once, by
// a constant or by a copy of another local, with that constant or local.
// A copy source is substituted only if it is itself defined once and cannot
// be redefined between the copy and the use: either the body has no backward
// branches or the source is bound by an identity statement. Constants are
// never substituted into the base of a call, array or field access. It
// returns the number of operands replaced.
func CopyPropagation(b *ir.Body) int {
	stmts := b.Units.Snapshot()
	ids := localIDs(b)

	var defined, multi intsets.Sparse
	def := make(map[*ir.Local]ir.Stmt)
	for _, s := range stmts {
		d := ir.Def(s)
		if d == nil {
			continue
		}
		id, ok := ids[d]
		if !ok {
			continue
		}
		if !defined.Insert(id) {
			multi.Insert(id)
		}
		def[d] = s
	}
	single := func(l *ir.Local) ir.Stmt {
		id, ok := ids[l]
		if !ok || multi.Has(id) {
			return nil
		}
		return def[l]
	}

	loops := hasBackwardBranch(b)
	replaced := 0
	for _, s := range stmts {
		bases := baseSlots(s)
		for _, slot := range ir.UseSlots(s) {
			for {
				u, ok := (*slot).(*ir.Local)
				if !ok {
					break
				}
				a, ok := single(u).(*ir.AssignStmt)
				if !ok || a == s {
					break
				}
				var next ir.Value
				switch src := a.Right.(type) {
				case *ir.Local:
					if src == u || !sameType(src.T, u.T) {
						break
					}
					srcDef := single(src)
					if srcDef == nil {
						break
					}
					if _, isIdentity := srcDef.(*ir.IdentityStmt); loops && !isIdentity {
						break
					}
					next = src
				case ir.IntConstant, ir.LongConstant, ir.FloatConstant, ir.DoubleConstant,
					ir.StringConstant, ir.NullConstant, ir.ClassConstant:
					if !bases[slot] {
						next = src
					}
				}
				if next == nil {
					break
				}
				*slot = next
				replaced++
			}
		}
	}
	return replaced
}

func sameType(a, b ir.Type) bool { return a.String() == b.String() }

func baseSlots(s ir.Stmt) map[*ir.Value]bool {
	bases := make(map[*ir.Value]bool)
	for _, slot := range ir.UseSlots(s) {
		switch v := (*slot).(type) {
		case *ir.InvokeExpr:
			if v.Base != nil {
				bases[&v.Base] = true
			}
		case *ir.ArrayRef:
			bases[&v.Base] = true
		case *ir.InstanceFieldRef:
			bases[&v.Base] = true
		}
	}
	if inv, ok := s.(*ir.InvokeStmt); ok && inv.Expr.Base != nil {
		bases[&inv.Expr.Base] = true
	}
	if a, ok := s.(*ir.AssignStmt); ok {
		switch l := a.Left.(type) {
		case *ir.ArrayRef:
			bases[&l.Base] = true
		case *ir.InstanceFieldRef:
			bases[&l.Base] = true
		}
	}
	return bases
}

func hasBackwardBranch(b *ir.Body) bool {
	for i, s := range b.Units.Snapshot() {
		for _, t := range ir.Targets(s) {
			if j := b.Units.Index(t); j >= 0 && j <= i {
				return true
			}
		}
	}
	return false
}

// Nops removes nop statements. Branches to a removed nop move to its
// successor. A nop that ends the body and is a branch target stays.
func Nops(b *ir.Body) (int, error) {
	removed := 0
	for _, s := range b.Units.Snapshot() {
		if _, ok := s.(*ir.NopStmt); !ok {
			continue
		}
		if s == b.Units.Last() && b.Units.IsTarget(s) {
			continue
		}
		if err := b.Units.Remove(s); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// UnusedLocals drops declarations of locals that no statement mentions and
// returns how many were dropped.
func UnusedLocals(b *ir.Body) int {
	used := make(map[*ir.Local]bool)
	for _, s := range b.Units.Snapshot() {
		if d := ir.Def(s); d != nil {
			used[d] = true
		}
		for _, u := range ir.Uses(s) {
			used[u] = true
		}
	}
	removed := 0
	for _, l := range append([]*ir.Local(nil), b.Locals...) {
		if !used[l] {
			b.RemoveLocal(l)
			removed++
		}
	}
	return removed
}
