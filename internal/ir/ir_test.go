package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleBody = `    a.B r0;
    int i0;
    java.lang.Object r1, r2;

    r0 := @this: a.B;
    i0 := @parameter0: int;
    if i0 == 0 goto label1;
    r1 = virtualinvoke r0.<a.B: java.lang.Object get(int)>(i0);
    goto label2;
  label1:
    r1 = null;
  label2:
    r2 = (java.lang.Object) r1;
    return r2;
`

func TestParse_RoundTrip(t *testing.T) {
	b, err := Parse(sampleBody)
	require.NoError(t, err)
	require.Equal(t, 8, b.Units.Len())
	require.Len(t, b.Locals, 4)
	require.Equal(t, sampleBody, b.String())

	// Branch targets resolve to the labelled statements.
	ifs, ok := b.Units.At(2).(*IfStmt)
	require.True(t, ok)
	require.Same(t, b.Units.At(5), ifs.Target)
	g, ok := b.Units.At(4).(*GotoStmt)
	require.True(t, ok)
	require.Same(t, b.Units.At(6), g.Target)
	require.Equal(t, 7, LineOf(b.Units.At(2)))
}

func TestParse_Values(t *testing.T) {
	tests := []struct {
		name string
		decl string
		stmt string
	}{
		{"int", "int i0", "i0 = -3"},
		{"long", "long l0", "l0 = 7L"},
		{"float", "float f0", "f0 = 1.5F"},
		{"double", "double d0", "d0 = 2.0"},
		{"string with separators", "java.lang.String r0", `r0 = "x = y, z;"`},
		{"class constant", "java.lang.Class r0", `r0 = class "a/B"`},
		{"static field", "java.util.Set r0", "r0 = <reflinline.rt.ReflectiveCalls: java.util.Set classForName>"},
		{"instance field", "java.lang.Class r0;\n    boolean z0", "z0 = r0.<java.lang.Class: boolean reflinline$alreadyChecked>"},
		{"field store", "java.lang.Class r0", "r0.<java.lang.Class: boolean reflinline$alreadyChecked> = 1"},
		{"array load", "java.lang.Object[] r0;\n    java.lang.Object r1", "r1 = r0[1]"},
		{"new array", "java.lang.Object[] r0", "r0 = newarray (java.lang.Object)[2]"},
		{"new", "a.B r0", "r0 = new a.B"},
		{"special invoke", "a.B r0", "specialinvoke r0.<a.B: void <init>(int,java.lang.String)>(1, \"s\")"},
		{"static invoke", "java.lang.Class r0", `r0 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>("a.B")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "    " + tt.decl + ";\n\n    " + tt.stmt + ";\n"
			b, err := Parse(text)
			require.NoError(t, err)
			require.Equal(t, 1, b.Units.Len())
			require.Equal(t, tt.stmt, b.Units.First().String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"undeclared local", "r0 = null;", "undeclared local"},
		{"undefined label", "goto nowhere;", "undefined label"},
		{"missing semicolon", "return", "missing ';'"},
		{"dangling label", "return;\nlabel1:", "does not precede"},
		{"bad identity", "int i0;\ni0 := 3;", "identity statement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseMethodRef(t *testing.T) {
	m, err := ParseMethodRef("<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>")
	require.NoError(t, err)
	require.Equal(t, "java.lang.reflect.Method", m.Class)
	require.Equal(t, "invoke", m.Name)
	require.Equal(t, []Type{ObjectType, ObjectArray}, m.Params)
	require.Equal(t, ObjectType, m.Return)
	require.Equal(t, "java.lang.Object invoke(java.lang.Object,java.lang.Object[])", m.SubSignature())

	ctor, err := ParseMethodRef("<a.B: void <init>()>")
	require.NoError(t, err)
	require.Equal(t, "<init>", ctor.Name)
	require.Empty(t, ctor.Params)

	_, err = ParseMethodRef("a.B: void f()")
	require.Error(t, err)
}

func TestPrimType_BoxMethods(t *testing.T) {
	require.Equal(t, "<java.lang.Integer: int intValue()>", Int.UnboxMethod().Signature())
	require.Equal(t, "<java.lang.Character: java.lang.Character valueOf(char)>", Char.BoxMethod().Signature())
	require.True(t, Int.BoxMethod().Static)
	require.Equal(t, Ref("java.lang.Boolean"), Boolean.Boxed())
}

func TestBody_NewLocal(t *testing.T) {
	b := MustParse("java.lang.Object $r0;\n\nreturn;")
	require.Equal(t, "$r1", b.NewLocal(ObjectType).Name)
	require.Equal(t, "$z0", b.NewLocal(Boolean).Name)
	require.Equal(t, "$z1", b.NewLocal(Boolean).Name)
	require.Equal(t, "$i0", b.NewLocal(Int).Name)
	require.Equal(t, "$r2", b.NewLocal(ObjectArray).Name)
	require.Len(t, b.Locals, 6)
}

func TestBody_IdentityLookups(t *testing.T) {
	b := MustParse(sampleBody)
	require.Equal(t, "r0", b.ThisLocal().Name)
	require.Equal(t, "i0", b.ParameterLocal(0).Name)
	require.Nil(t, b.ParameterLocal(1))
	require.Same(t, b.Units.At(2), b.FirstNonIdentity())
}

func TestBody_Clone(t *testing.T) {
	b := MustParse(sampleBody)
	c, err := b.Clone()
	require.NoError(t, err)
	require.Equal(t, b.String(), c.String())
	require.NotSame(t, b.Units.First(), c.Units.First())
}

func TestChain_Replace(t *testing.T) {
	b := MustParse(`    int i0;

    i0 := @parameter0: int;
    if i0 == 0 goto label1;
    return;
  label1:
    return;
`)
	orig := b.Units.At(3)
	head := NewNop()
	require.NoError(t, b.Units.Replace(orig, head, orig))
	require.Equal(t, 5, b.Units.Len())
	require.Same(t, head, b.Units.At(1).(*IfStmt).Target, "branches to the replaced statement move to the head")
	require.Same(t, orig, b.Units.Last())

	require.Error(t, b.Units.Replace(NewNop(), head))
}

func TestChain_Remove(t *testing.T) {
	b := MustParse(`    int i0;

    i0 := @parameter0: int;
    if i0 == 0 goto label1;
  label1:
    nop;
    return;
`)
	nop := b.Units.At(2)
	require.NoError(t, b.Units.Remove(nop))
	require.Same(t, b.Units.Last(), b.Units.At(1).(*IfStmt).Target)

	last := b.Units.Last()
	require.Error(t, b.Units.Remove(last), "the last statement is still a branch target")
}

func TestChain_Insert(t *testing.T) {
	c := NewChain(NewNop(), NewReturnVoid())
	ret := c.Last()
	a, z := NewNop(), NewNop()
	require.NoError(t, c.InsertBefore(ret, a))
	require.NoError(t, c.InsertAfter(ret, z))
	require.Equal(t, 4, c.Len())
	require.Same(t, a, c.Pred(ret))
	require.Same(t, z, c.Succ(ret))
	require.Nil(t, c.Succ(z))
	require.Nil(t, c.Pred(c.First()))

	snap := c.Snapshot()
	require.NoError(t, c.Remove(a))
	require.Len(t, snap, 4)
}

func TestBody_Validate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Body
		want  string
	}{
		{
			name:  "valid",
			build: func() *Body { return MustParse(sampleBody) },
		},
		{
			name:  "empty",
			build: NewBody,
			want:  "no statements",
		},
		{
			name: "falls off end",
			build: func() *Body {
				return MustParse("nop;")
			},
			want: "falls off the end",
		},
		{
			name: "undeclared local",
			build: func() *Body {
				b := MustParse("return;")
				ghost := &Local{Name: "$r9", T: ObjectType}
				require.NoError(t, b.Units.InsertBefore(b.Units.Last(), NewAssign(ghost, Null)))
				return b
			},
			want: "undeclared local $r9",
		},
		{
			name: "identity after body start",
			build: func() *Body {
				b := MustParse("int i0;\n\nnop;\nreturn;")
				id := NewIdentity(b.Local("i0"), &ParameterRef{Index: 0, T: Int})
				require.NoError(t, b.Units.InsertAfter(b.Units.First(), id))
				return b
			},
			want: "identity statement after",
		},
		{
			name: "dangling target",
			build: func() *Body {
				b := MustParse("return;")
				require.NoError(t, b.Units.InsertBefore(b.Units.Last(), NewGoto(NewNop())))
				return b
			},
			want: "branch target not in body",
		},
		{
			name: "arity",
			build: func() *Body {
				b := MustParse("return;")
				m := &MethodRef{Class: "a.B", Name: "f", Params: []Type{Int}, Return: Void, Static: true}
				require.NoError(t, b.Units.InsertBefore(b.Units.Last(), NewInvokeStmt(NewStaticInvoke(m))))
				return b
			},
			want: "0 arguments for 1 parameters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidBody))
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBody_CFG(t *testing.T) {
	cfg := MustParse(sampleBody).CFG("a.B.m")
	require.Equal(t, "a.B.m", cfg.Name)
	require.Len(t, cfg.Blocks, 4)

	entry := cfg.Blocks[0]
	require.Equal(t, 0, entry.Start)
	require.Equal(t, 3, entry.End)
	require.Len(t, entry.Succs, 2)
	require.Equal(t, 2, entry.Succs[0].BlockID)
	require.Equal(t, "T", entry.Succs[0].Cond)
	require.Equal(t, 1, entry.Succs[1].BlockID)
	require.Equal(t, "F", entry.Succs[1].Cond)

	call := cfg.Blocks[1]
	require.Len(t, call.Calls, 1)
	require.Equal(t, "<a.B: java.lang.Object get(int)>", call.Calls[0].Callee)
	require.Equal(t, 3, call.Succs[0].BlockID)

	require.True(t, cfg.Blocks[3].Term)
	require.NotEmpty(t, MustParse(sampleBody).DOT("a.B.m"))
}
