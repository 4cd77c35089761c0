package ir

// Stmt is a single three-address statement. Statements are compared by
// identity: a branch names its target by pointer.
type Stmt interface {
	String() string
	stmt() *Pos
}

// Pos carries the source line a statement was parsed from, if any. Every
// statement embeds it, so distinct statements never share an address.
type Pos struct {
	Line int
}

func (p *Pos) stmt() *Pos { return p }

// IdentityStmt binds a parameter or the receiver to a local.
type IdentityStmt struct {
	Pos
	Left  *Local
	Right Value
}

func (s *IdentityStmt) String() string { return s.Left.String() + " := " + s.Right.String() }

// AssignStmt stores Right into Left, which is a local, array element or field.
type AssignStmt struct {
	Pos
	Left  Value
	Right Value
}

func (s *AssignStmt) String() string { return s.Left.String() + " = " + s.Right.String() }

// InvokeStmt evaluates a call and discards its result.
type InvokeStmt struct {
	Pos
	Expr *InvokeExpr
}

func (s *InvokeStmt) String() string { return s.Expr.String() }

// IfStmt jumps to Target when Cond holds.
type IfStmt struct {
	Pos
	Cond   *ConditionExpr
	Target Stmt
}

func (s *IfStmt) String() string { return "if " + s.Cond.String() + " goto " + targetString(s.Target) }

// GotoStmt jumps to Target unconditionally.
type GotoStmt struct {
	Pos
	Target Stmt
}

func (s *GotoStmt) String() string { return "goto " + targetString(s.Target) }

// NopStmt does nothing; it serves as a branch target.
type NopStmt struct {
	Pos
}

func (s *NopStmt) String() string { return "nop" }

// ReturnStmt returns Op.
type ReturnStmt struct {
	Pos
	Op Value
}

func (s *ReturnStmt) String() string { return "return " + s.Op.String() }

// ReturnVoidStmt returns from a void method.
type ReturnVoidStmt struct {
	Pos
}

func (s *ReturnVoidStmt) String() string { return "return" }

// ThrowStmt throws Op.
type ThrowStmt struct {
	Pos
	Op Value
}

func (s *ThrowStmt) String() string { return "throw " + s.Op.String() }

func targetString(t Stmt) string {
	if t == nil {
		return "[?= nil]"
	}
	return "[?= " + t.String() + "]"
}

// NewIdentity returns "l := r".
func NewIdentity(l *Local, r Value) *IdentityStmt { return &IdentityStmt{Left: l, Right: r} }

// NewAssign returns "l = r".
func NewAssign(l, r Value) *AssignStmt { return &AssignStmt{Left: l, Right: r} }

// NewInvokeStmt wraps e as a statement.
func NewInvokeStmt(e *InvokeExpr) *InvokeStmt { return &InvokeStmt{Expr: e} }

// NewIf returns "if l op r goto target".
func NewIf(op CondOp, l, r Value, target Stmt) *IfStmt {
	return &IfStmt{Cond: &ConditionExpr{Op: op, L: l, R: r}, Target: target}
}

// NewGoto returns "goto target".
func NewGoto(target Stmt) *GotoStmt { return &GotoStmt{Target: target} }

// NewNop returns a fresh nop, typically used as a label.
func NewNop() *NopStmt { return &NopStmt{} }

// NewReturn returns "return v".
func NewReturn(v Value) *ReturnStmt { return &ReturnStmt{Op: v} }

// NewReturnVoid returns "return".
func NewReturnVoid() *ReturnVoidStmt { return &ReturnVoidStmt{} }

// NewThrow returns "throw v".
func NewThrow(v Value) *ThrowStmt { return &ThrowStmt{Op: v} }

// LineOf returns the source line s was parsed from, or 0.
func LineOf(s Stmt) int { return s.stmt().Line }

// InvokeOf returns the call made by s, or nil if s makes none at top level.
func InvokeOf(s Stmt) *InvokeExpr {
	switch s := s.(type) {
	case *InvokeStmt:
		return s.Expr
	case *AssignStmt:
		if e, ok := s.Right.(*InvokeExpr); ok {
			return e
		}
	}
	return nil
}

// Def returns the local written by s, or nil.
func Def(s Stmt) *Local {
	switch s := s.(type) {
	case *IdentityStmt:
		return s.Left
	case *AssignStmt:
		if l, ok := s.Left.(*Local); ok {
			return l
		}
	}
	return nil
}

// UseSlots returns pointers to every operand s reads, outermost first.
// Writing through a slot rewrites the statement in place.
func UseSlots(s Stmt) []*Value {
	var slots []*Value
	switch s := s.(type) {
	case *AssignStmt:
		if _, ok := s.Left.(*Local); !ok {
			for _, sl := range valueSlots(s.Left) {
				slots = collectUseSlots(slots, sl)
			}
		}
		slots = collectUseSlots(slots, &s.Right)
	case *InvokeStmt:
		for _, sl := range valueSlots(s.Expr) {
			slots = collectUseSlots(slots, sl)
		}
	case *IfStmt:
		for _, sl := range valueSlots(s.Cond) {
			slots = collectUseSlots(slots, sl)
		}
	case *ReturnStmt:
		slots = collectUseSlots(slots, &s.Op)
	case *ThrowStmt:
		slots = collectUseSlots(slots, &s.Op)
	}
	return slots
}

// Uses returns the locals read by s, in operand order and possibly repeated.
func Uses(s Stmt) []*Local {
	var locals []*Local
	for _, sl := range UseSlots(s) {
		if l, ok := (*sl).(*Local); ok {
			locals = append(locals, l)
		}
	}
	return locals
}

// Targets returns the explicit branch targets of s.
func Targets(s Stmt) []Stmt {
	switch s := s.(type) {
	case *IfStmt:
		return []Stmt{s.Target}
	case *GotoStmt:
		return []Stmt{s.Target}
	}
	return nil
}

// FallsThrough reports whether control can continue to the statement after s.
func FallsThrough(s Stmt) bool {
	switch s.(type) {
	case *GotoStmt, *ReturnStmt, *ReturnVoidStmt, *ThrowStmt:
		return false
	}
	return true
}

func retarget(s, from, to Stmt) {
	switch s := s.(type) {
	case *IfStmt:
		if s.Target == from {
			s.Target = to
		}
	case *GotoStmt:
		if s.Target == from {
			s.Target = to
		}
	}
}
