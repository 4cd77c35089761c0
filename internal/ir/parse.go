package ir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var keywords = map[string]bool{
	"nop":             true,
	"return":          true,
	"throw":           true,
	"goto":            true,
	"if":              true,
	"staticinvoke":    true,
	"virtualinvoke":   true,
	"specialinvoke":   true,
	"interfaceinvoke": true,
}

var invokeKeywords = map[string]InvokeKind{
	"staticinvoke":    StaticInvoke,
	"virtualinvoke":   VirtualInvoke,
	"specialinvoke":   SpecialInvoke,
	"interfaceinvoke": InterfaceInvoke,
}

type fixup struct {
	line  int
	label string
	set   func(Stmt)
}

type bodyParser struct {
	body    *Body
	labels  map[string]Stmt
	pending []string
	fixups  []fixup
}

// Parse reads the text form of a method body: local declarations, then one
// statement per line terminated by ';', with "name:" lines labelling the
// statement that follows.
func Parse(text string) (*Body, error) {
	p := &bodyParser{body: NewBody(), labels: make(map[string]Stmt)}
	for n, raw := range strings.Split(text, "\n") {
		if err := p.line(n+1, strings.TrimSpace(raw)); err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
	}
	if len(p.pending) > 0 {
		return nil, fmt.Errorf("label %s does not precede a statement", p.pending[0])
	}
	for _, f := range p.fixups {
		target, ok := p.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("line %d: undefined label %q", f.line, f.label)
		}
		f.set(target)
	}
	return p.body, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(text string) *Body {
	b, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return b
}

func (p *bodyParser) line(n int, line string) error {
	if line == "" || strings.HasPrefix(line, "//") {
		return nil
	}
	if name, ok := strings.CutSuffix(line, ":"); ok && isIdent(name) {
		if _, dup := p.labels[name]; dup || p.pendingHas(name) {
			return fmt.Errorf("duplicate label %q", name)
		}
		p.pending = append(p.pending, name)
		return nil
	}
	line, ok := strings.CutSuffix(line, ";")
	if !ok {
		return fmt.Errorf("missing ';' in %q", line)
	}
	if p.isDecl(line) {
		return p.decl(line)
	}
	s, err := p.stmt(n, line)
	if err != nil {
		return err
	}
	s.stmt().Line = n
	p.body.Units.Append(s)
	for _, l := range p.pending {
		p.labels[l] = s
	}
	p.pending = p.pending[:0]
	return nil
}

func (p *bodyParser) pendingHas(name string) bool {
	for _, l := range p.pending {
		if l == name {
			return true
		}
	}
	return false
}

func (p *bodyParser) isDecl(line string) bool {
	f := strings.Fields(line)
	return len(f) >= 2 && !keywords[f[0]] && !strings.ContainsAny(line, "=:(<\"@")
}

func (p *bodyParser) decl(line string) error {
	f := strings.Fields(line)
	t, err := ParseType(f[0])
	if err != nil {
		return err
	}
	for _, name := range strings.Split(strings.Join(f[1:], ""), ",") {
		if !isIdent(name) {
			return fmt.Errorf("invalid local name %q", name)
		}
		if err := p.body.AddLocal(&Local{Name: name, T: t}); err != nil {
			return err
		}
	}
	return nil
}

func (p *bodyParser) stmt(n int, line string) (Stmt, error) {
	switch {
	case line == "nop":
		return NewNop(), nil
	case line == "return":
		return NewReturnVoid(), nil
	case strings.HasPrefix(line, "return "):
		v, err := p.whole(line[len("return "):], (*scanner).immediate)
		if err != nil {
			return nil, err
		}
		return NewReturn(v), nil
	case strings.HasPrefix(line, "throw "):
		v, err := p.whole(line[len("throw "):], (*scanner).immediate)
		if err != nil {
			return nil, err
		}
		return NewThrow(v), nil
	case strings.HasPrefix(line, "goto "):
		g := NewGoto(nil)
		p.fixup(n, line[len("goto "):], func(t Stmt) { g.Target = t })
		return g, nil
	case strings.HasPrefix(line, "if "):
		return p.ifStmt(n, line[len("if "):])
	}

	if kw, _, _ := strings.Cut(line, " "); isInvokeKeyword(kw) {
		v, err := p.whole(line, (*scanner).value)
		if err != nil {
			return nil, err
		}
		e, ok := v.(*InvokeExpr)
		if !ok {
			return nil, fmt.Errorf("expected invoke expression, got %q", v)
		}
		return NewInvokeStmt(e), nil
	}

	if left, right, ok := strings.Cut(line, " := "); ok && !strings.Contains(left, " = ") {
		l := p.body.Local(strings.TrimSpace(left))
		if l == nil {
			return nil, fmt.Errorf("undeclared local %q", left)
		}
		v, err := p.whole(right, (*scanner).value)
		if err != nil {
			return nil, err
		}
		switch v.(type) {
		case *ParameterRef, *ThisRef:
		default:
			return nil, fmt.Errorf("identity statement binds %q", v)
		}
		return NewIdentity(l, v), nil
	}

	if left, right, ok := strings.Cut(line, " = "); ok {
		l, err := p.whole(left, (*scanner).value)
		if err != nil {
			return nil, err
		}
		switch l.(type) {
		case *Local, *ArrayRef, *InstanceFieldRef, *StaticFieldRef:
		default:
			return nil, fmt.Errorf("cannot assign to %q", l)
		}
		r, err := p.whole(right, (*scanner).value)
		if err != nil {
			return nil, err
		}
		return NewAssign(l, r), nil
	}
	return nil, fmt.Errorf("unrecognized statement %q", line)
}

func isInvokeKeyword(s string) bool {
	_, ok := invokeKeywords[s]
	return ok
}

func (p *bodyParser) ifStmt(n int, rest string) (Stmt, error) {
	i := strings.LastIndex(rest, " goto ")
	if i < 0 {
		return nil, fmt.Errorf("if without goto")
	}
	sc := &scanner{s: rest[:i], body: p.body}
	l, err := sc.immediate()
	if err != nil {
		return nil, err
	}
	sc.space()
	var op CondOp
	for _, o := range []CondOp{Eq, Ne, Le, Ge, Lt, Gt} {
		if sc.accept(string(o)) {
			op = o
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("missing comparison operator in %q", rest[:i])
	}
	sc.space()
	r, err := sc.immediate()
	if err != nil {
		return nil, err
	}
	if err := sc.end(); err != nil {
		return nil, err
	}
	s := NewIf(op, l, r, nil)
	p.fixup(n, rest[i+len(" goto "):], func(t Stmt) { s.Target = t })
	return s, nil
}

func (p *bodyParser) fixup(n int, label string, set func(Stmt)) {
	p.fixups = append(p.fixups, fixup{line: n, label: strings.TrimSpace(label), set: set})
}

func (p *bodyParser) whole(s string, parse func(*scanner) (Value, error)) (Value, error) {
	sc := &scanner{s: strings.TrimSpace(s), body: p.body}
	v, err := parse(sc)
	if err != nil {
		return nil, err
	}
	if err := sc.end(); err != nil {
		return nil, err
	}
	return v, nil
}

// scanner is a cursor over one operand or expression.
type scanner struct {
	s    string
	i    int
	body *Body
}

func (sc *scanner) rest() string { return sc.s[sc.i:] }

func (sc *scanner) space() {
	for sc.i < len(sc.s) && sc.s[sc.i] == ' ' {
		sc.i++
	}
}

func (sc *scanner) accept(tok string) bool {
	if strings.HasPrefix(sc.rest(), tok) {
		sc.i += len(tok)
		return true
	}
	return false
}

func (sc *scanner) expect(tok string) error {
	if !sc.accept(tok) {
		return fmt.Errorf("expected %q at %q", tok, sc.rest())
	}
	return nil
}

func (sc *scanner) end() error {
	sc.space()
	if sc.i != len(sc.s) {
		return fmt.Errorf("unexpected %q", sc.rest())
	}
	return nil
}

func (sc *scanner) ident() string {
	start := sc.i
	for sc.i < len(sc.s) && isIdentRune(rune(sc.s[sc.i])) {
		sc.i++
	}
	return sc.s[start:sc.i]
}

func (sc *scanner) typ() (Type, error) {
	start := sc.i
	for sc.i < len(sc.s) {
		c := sc.s[sc.i]
		if !isIdentRune(rune(c)) && c != '.' && c != '[' && c != ']' {
			break
		}
		sc.i++
	}
	return ParseType(sc.s[start:sc.i])
}

// signature consumes a balanced "<...>" signature.
func (sc *scanner) signature() (string, error) {
	if sc.i >= len(sc.s) || sc.s[sc.i] != '<' {
		return "", fmt.Errorf("expected signature at %q", sc.rest())
	}
	depth := 0
	for j := sc.i; j < len(sc.s); j++ {
		switch sc.s[j] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				sig := sc.s[sc.i : j+1]
				sc.i = j + 1
				return sig, nil
			}
		}
	}
	return "", fmt.Errorf("unterminated signature %q", sc.rest())
}

func (sc *scanner) value() (Value, error) {
	sc.space()
	rest := sc.rest()
	for kw, kind := range invokeKeywords {
		if strings.HasPrefix(rest, kw+" ") {
			sc.i += len(kw) + 1
			return sc.invoke(kind)
		}
	}
	switch {
	case strings.HasPrefix(rest, "newarray "):
		sc.i += len("newarray ")
		if err := sc.expect("("); err != nil {
			return nil, err
		}
		elem, err := sc.typ()
		if err != nil {
			return nil, err
		}
		if err := sc.expect(")["); err != nil {
			return nil, err
		}
		size, err := sc.immediate()
		if err != nil {
			return nil, err
		}
		if err := sc.expect("]"); err != nil {
			return nil, err
		}
		return &NewArrayExpr{Elem: elem, Size: size}, nil
	case strings.HasPrefix(rest, "new "):
		sc.i += len("new ")
		t, err := sc.typ()
		if err != nil {
			return nil, err
		}
		rt, ok := t.(RefType)
		if !ok {
			return nil, fmt.Errorf("new of non-class type %s", t)
		}
		return &NewExpr{T: rt}, nil
	case strings.HasPrefix(rest, "@parameter"):
		sc.i += len("@parameter")
		start := sc.i
		for sc.i < len(sc.s) && sc.s[sc.i] >= '0' && sc.s[sc.i] <= '9' {
			sc.i++
		}
		idx, err := strconv.Atoi(sc.s[start:sc.i])
		if err != nil {
			return nil, fmt.Errorf("parameter index: %w", err)
		}
		if err := sc.expect(": "); err != nil {
			return nil, err
		}
		t, err := sc.typ()
		if err != nil {
			return nil, err
		}
		return &ParameterRef{Index: idx, T: t}, nil
	case strings.HasPrefix(rest, "@this: "):
		sc.i += len("@this: ")
		t, err := sc.typ()
		if err != nil {
			return nil, err
		}
		return &ThisRef{T: t}, nil
	case strings.HasPrefix(rest, "("):
		sc.i++
		t, err := sc.typ()
		if err != nil {
			return nil, err
		}
		if err := sc.expect(")"); err != nil {
			return nil, err
		}
		sc.space()
		op, err := sc.immediate()
		if err != nil {
			return nil, err
		}
		return &CastExpr{Op: op, To: t}, nil
	case strings.HasPrefix(rest, "<"):
		sig, err := sc.signature()
		if err != nil {
			return nil, err
		}
		f, err := ParseFieldRef(sig)
		if err != nil {
			return nil, err
		}
		f.Static = true
		return &StaticFieldRef{Field: f}, nil
	}

	v, err := sc.immediate()
	if err != nil {
		return nil, err
	}
	l, ok := v.(*Local)
	if !ok {
		return v, nil
	}
	switch {
	case sc.accept("["):
		idx, err := sc.immediate()
		if err != nil {
			return nil, err
		}
		if err := sc.expect("]"); err != nil {
			return nil, err
		}
		return &ArrayRef{Base: l, Index: idx}, nil
	case strings.HasPrefix(sc.rest(), ".<"):
		sc.i++
		sig, err := sc.signature()
		if err != nil {
			return nil, err
		}
		f, err := ParseFieldRef(sig)
		if err != nil {
			return nil, err
		}
		return &InstanceFieldRef{Base: l, Field: f}, nil
	}
	return l, nil
}

func (sc *scanner) invoke(kind InvokeKind) (Value, error) {
	var base Value
	if kind != StaticInvoke {
		name := sc.ident()
		base = sc.body.Local(name)
		if base == nil {
			return nil, fmt.Errorf("undeclared local %q", name)
		}
		if err := sc.expect("."); err != nil {
			return nil, err
		}
	}
	sig, err := sc.signature()
	if err != nil {
		return nil, err
	}
	m, err := ParseMethodRef(sig)
	if err != nil {
		return nil, err
	}
	m.Static = kind == StaticInvoke
	if err := sc.expect("("); err != nil {
		return nil, err
	}
	var args []Value
	for !sc.accept(")") {
		if len(args) > 0 {
			if err := sc.expect(","); err != nil {
				return nil, err
			}
		}
		sc.space()
		a, err := sc.immediate()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		sc.space()
	}
	return &InvokeExpr{Kind: kind, Method: m, Base: base, Args: args}, nil
}

// immediate parses a local or a constant.
func (sc *scanner) immediate() (Value, error) {
	sc.space()
	rest := sc.rest()
	if rest == "" {
		return nil, fmt.Errorf("missing operand")
	}
	switch c := rest[0]; {
	case c == '"':
		return sc.quoted(func(s string) Value { return StringConstant(s) })
	case strings.HasPrefix(rest, `class "`):
		sc.i += len("class ")
		return sc.quoted(func(s string) Value { return ClassConstant(s) })
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return sc.number()
	}
	name := sc.ident()
	if name == "" {
		return nil, fmt.Errorf("expected operand at %q", rest)
	}
	if name == "null" {
		return Null, nil
	}
	l := sc.body.Local(name)
	if l == nil {
		return nil, fmt.Errorf("undeclared local %q", name)
	}
	return l, nil
}

func (sc *scanner) quoted(mk func(string) Value) (Value, error) {
	q, err := strconv.QuotedPrefix(sc.rest())
	if err != nil {
		return nil, fmt.Errorf("string literal at %q: %w", sc.rest(), err)
	}
	sc.i += len(q)
	s, err := strconv.Unquote(q)
	if err != nil {
		return nil, err
	}
	return mk(s), nil
}

func (sc *scanner) number() (Value, error) {
	start := sc.i
	sc.i++
	for sc.i < len(sc.s) && !strings.ContainsRune(" ,)]", rune(sc.s[sc.i])) {
		sc.i++
	}
	tok := sc.s[start:sc.i]
	switch {
	case strings.HasSuffix(tok, "L"):
		n, err := strconv.ParseInt(strings.TrimSuffix(tok, "L"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("long literal %q: %w", tok, err)
		}
		return LongConstant(n), nil
	case strings.HasSuffix(tok, "F"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(tok, "F"), 32)
		if err != nil {
			return nil, fmt.Errorf("float literal %q: %w", tok, err)
		}
		return FloatConstant(f), nil
	case strings.ContainsAny(tok, ".eEI"):
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("double literal %q: %w", tok, err)
		}
		return DoubleConstant(f), nil
	}
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("int literal %q: %w", tok, err)
	}
	return IntConstant(n), nil
}

// ParseMethodRef parses "<C: R name(P1,P2)>". The result is not static;
// callers set Static from context.
func ParseMethodRef(sig string) (*MethodRef, error) {
	inner, ok := trimAngles(sig)
	if !ok {
		return nil, fmt.Errorf("malformed method signature %q", sig)
	}
	class, sub, ok := strings.Cut(inner, ": ")
	if !ok {
		return nil, fmt.Errorf("malformed method signature %q", sig)
	}
	ret, rest, ok := strings.Cut(sub, " ")
	if !ok {
		return nil, fmt.Errorf("malformed method signature %q", sig)
	}
	open := strings.IndexByte(rest, '(')
	if open <= 0 || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("malformed method signature %q", sig)
	}
	rt, err := ParseType(ret)
	if err != nil {
		return nil, fmt.Errorf("return type of %s: %w", sig, err)
	}
	m := &MethodRef{Class: class, Name: rest[:open], Return: rt}
	if params := rest[open+1 : len(rest)-1]; params != "" {
		for _, ps := range strings.Split(params, ",") {
			pt, err := ParseType(ps)
			if err != nil {
				return nil, fmt.Errorf("parameter of %s: %w", sig, err)
			}
			m.Params = append(m.Params, pt)
		}
	}
	return m, nil
}

// ParseFieldRef parses "<C: T name>".
func ParseFieldRef(sig string) (*FieldRef, error) {
	inner, ok := trimAngles(sig)
	if !ok {
		return nil, fmt.Errorf("malformed field signature %q", sig)
	}
	class, sub, ok := strings.Cut(inner, ": ")
	if !ok {
		return nil, fmt.Errorf("malformed field signature %q", sig)
	}
	typ, name, ok := strings.Cut(sub, " ")
	if !ok || !isIdent(name) {
		return nil, fmt.Errorf("malformed field signature %q", sig)
	}
	t, err := ParseType(typ)
	if err != nil {
		return nil, fmt.Errorf("type of %s: %w", sig, err)
	}
	return &FieldRef{Class: class, Name: name, T: t}, nil
}

func trimAngles(sig string) (string, bool) {
	if len(sig) < 2 || sig[0] != '<' || sig[len(sig)-1] != '>' {
		return "", false
	}
	return sig[1 : len(sig)-1], true
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isIdentRune(r) {
			return false
		}
	}
	return true
}
