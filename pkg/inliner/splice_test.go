package inliner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/trace"
)

func TestSplice_Golden(t *testing.T) {
	tests := []struct {
		name    string
		kind    trace.Kind
		id      int
		targets []string
		body    string
		want    string
	}{
		{
			name:    "forName with two targets",
			kind:    trace.ClassForName,
			id:      0,
			targets: []string{"a.B", "a.C"},
			body: `    java.lang.String r0;
    java.lang.Class r1;

    r0 := @parameter0: java.lang.String;
    r1 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>(r0);
    return r1;
`,
			want: `    java.lang.String r0;
    java.lang.Class r1, $r0, $r1;
    boolean $z0, $z1;

    r0 := @parameter0: java.lang.String;
    staticinvoke <reflinline.rt.ReflectiveCalls: void knownClassForName(int,java.lang.String)>(0, r0);
    $z0 = staticinvoke <reflinline.rt.OpaquePredicate: boolean getFalse()>();
    if $z0 == 0 goto label1;
    $r0 = class "a/B";
    r1 = $r0;
    goto label3;
  label1:
    nop;
    $z1 = staticinvoke <reflinline.rt.OpaquePredicate: boolean getFalse()>();
    if $z1 == 0 goto label2;
    $r1 = class "a/C";
    r1 = $r1;
    goto label3;
  label2:
    nop;
    r1 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>(r0);
  label3:
    nop;
    return r1;
`,
		},
		{
			name:    "newInstance with one target",
			kind:    trace.ClassNewInstance,
			id:      1,
			targets: []string{"a.D"},
			body: `    java.lang.Class r0;
    java.lang.Object r1;

    r0 := @parameter0: java.lang.Class;
    r1 = virtualinvoke r0.<java.lang.Class: java.lang.Object newInstance()>();
    return r1;
`,
			want: `    java.lang.Class r0;
    java.lang.Object r1;
    boolean $z0;
    a.D $r0;

    r0 := @parameter0: java.lang.Class;
    staticinvoke <reflinline.rt.ReflectiveCalls: void knownClassNewInstance(int,java.lang.Class)>(1, r0);
    $z0 = staticinvoke <reflinline.rt.OpaquePredicate: boolean getFalse()>();
    if $z0 == 0 goto label1;
    $r0 = new a.D;
    specialinvoke $r0.<a.D: void <init>()>();
    r1 = $r0;
    goto label2;
  label1:
    nop;
    r1 = virtualinvoke r0.<java.lang.Class: java.lang.Object newInstance()>();
  label2:
    nop;
    return r1;
`,
		},
		{
			name:    "invoke of an instance method returning int",
			kind:    trace.MethodInvoke,
			id:      2,
			targets: []string{getB},
			body: `    java.lang.reflect.Method r0;
    java.lang.Object r1, r3;
    java.lang.Object[] r2;

    r0 := @parameter0: java.lang.reflect.Method;
    r1 := @parameter1: java.lang.Object;
    r2 := @parameter2: java.lang.Object[];
    r3 = virtualinvoke r0.<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>(r1, r2);
    return r3;
`,
			want: `    java.lang.reflect.Method r0;
    java.lang.Object r1, r3;
    java.lang.Object[] r2;
    boolean $z0;
    a.B $r0;
    int $i0;
    java.lang.Integer $r1;

    r0 := @parameter0: java.lang.reflect.Method;
    r1 := @parameter1: java.lang.Object;
    r2 := @parameter2: java.lang.Object[];
    staticinvoke <reflinline.rt.ReflectiveCalls: void knownMethodInvoke(int,java.lang.Object,java.lang.reflect.Method)>(2, r1, r0);
    $z0 = staticinvoke <reflinline.rt.OpaquePredicate: boolean getFalse()>();
    if $z0 == 0 goto label1;
    $r0 = (a.B) r1;
    $i0 = virtualinvoke $r0.<a.B: int get()>();
    $r1 = staticinvoke <java.lang.Integer: java.lang.Integer valueOf(int)>($i0);
    r3 = $r1;
    goto label2;
  label1:
    nop;
    r3 = virtualinvoke r0.<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>(r1, r2);
  label2:
    nop;
    return r3;
`,
		},
		{
			name:    "invoke of a static void method as a statement",
			kind:    trace.MethodInvoke,
			id:      3,
			targets: []string{calcPoke},
			body: `    java.lang.reflect.Method r0;

    r0 := @parameter0: java.lang.reflect.Method;
    virtualinvoke r0.<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>(null, null);
    return;
`,
			want: `    java.lang.reflect.Method r0;
    boolean $z0;

    r0 := @parameter0: java.lang.reflect.Method;
    staticinvoke <reflinline.rt.ReflectiveCalls: void knownMethodInvoke(int,java.lang.Object,java.lang.reflect.Method)>(3, null, r0);
    $z0 = staticinvoke <reflinline.rt.OpaquePredicate: boolean getFalse()>();
    if $z0 == 0 goto label1;
    staticinvoke <a.Calc: void poke()>();
    goto label2;
  label1:
    nop;
    virtualinvoke r0.<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>(null, null);
  label2:
    nop;
    return;
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := load(t)
			e := New(s, Options{})
			body := ir.MustParse(tt.body)
			g := &Group{Method: mustMethod(t, s, forNameSig), Kind: tt.kind, ID: tt.id, Targets: tt.targets}

			sites, err := e.splice(body, g)
			require.NoError(t, err)
			require.Equal(t, 1, sites)
			require.Equal(t, tt.want, body.String())
			require.NoError(t, body.Validate())
		})
	}
}

const forNameBody = `    java.lang.String r0;
    java.lang.Class r1;

    r0 := @parameter0: java.lang.String;
    r1 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>(r0);
    return r1;
`

func TestSplice_PathsToEnd(t *testing.T) {
	tests := []struct {
		name    string
		targets []string
	}{
		{"one target", []string{"a.B"}},
		{"two targets", []string{"a.B", "a.C"}},
		{"duplicates are kept", []string{"a.B", "a.B", "a.D"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := load(t)
			body := ir.MustParse(forNameBody)
			orig := body.Units.At(1)
			g := &Group{Method: mustMethod(t, s, forNameSig), Kind: trace.ClassForName, Targets: tt.targets}

			_, err := New(s, Options{}).splice(body, g)
			require.NoError(t, err)

			// The original call is still there, and falls through to the
			// end label that every attempt jumps to.
			require.True(t, body.Units.Contains(orig))
			end := body.Units.Succ(orig)
			require.IsType(t, &ir.NopStmt{}, end)
			require.True(t, ir.FallsThrough(orig))

			var ifs, gotos int
			for _, s := range body.Units.Snapshot() {
				switch s := s.(type) {
				case *ir.IfStmt:
					ifs++
				case *ir.GotoStmt:
					require.Same(t, end, s.Target)
					gotos++
				}
			}
			require.Equal(t, len(tt.targets), ifs)
			require.Equal(t, len(tt.targets), gotos)
		})
	}
}

func TestSplice_RedirectsBranches(t *testing.T) {
	s := load(t)
	body := ir.MustParse(`    java.lang.String r0;
    java.lang.Class r1;

    r0 := @parameter0: java.lang.String;
    goto label1;
  label1:
    r1 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>(r0);
    return r1;
`)
	jump := body.Units.At(1).(*ir.GotoStmt)
	g := &Group{Method: mustMethod(t, s, forNameSig), Kind: trace.ClassForName, Targets: []string{"a.B"}}

	_, err := New(s, Options{}).splice(body, g)
	require.NoError(t, err)
	require.Same(t, body.Units.At(2), jump.Target)
	require.Equal(t, "knownClassForName", ir.InvokeOf(jump.Target).Method.Name)
}

func TestSplice_EverySiteInBody(t *testing.T) {
	s := load(t)
	body := ir.MustParse(`    java.lang.String r0;
    java.lang.Class r1, r2;

    r0 := @parameter0: java.lang.String;
    r1 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>(r0);
    r2 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>("a.C");
    return r2;
`)
	g := &Group{Method: mustMethod(t, s, forNameSig), Kind: trace.ClassForName, ID: 4, Targets: []string{"a.B"}}

	sites, err := New(s, Options{}).splice(body, g)
	require.NoError(t, err)
	require.Equal(t, 2, sites)
	require.Equal(t, []int{4, 4}, reportedIDs(body))
	require.NoError(t, body.Validate())
}

func TestSplice_UnresolvedTarget(t *testing.T) {
	s := load(t)
	body := ir.MustParse(forNameBody)
	g := &Group{Method: mustMethod(t, s, forNameSig), Kind: trace.ClassForName, Targets: []string{"a.B", "a.Nope"}}

	sites, err := New(s, Options{}).splice(body, g)
	require.ErrorIs(t, err, ErrUnresolvedTarget)
	require.ErrorContains(t, err, `"a.Nope"`)
	require.Zero(t, sites)

	// The chain is untouched when a site fails.
	require.Equal(t, 3, body.Units.Len())
}

func TestSkeleton_Matches(t *testing.T) {
	forName := skeletons[trace.ClassForName]
	ref, err := ir.ParseMethodRef(forName.sig)
	require.NoError(t, err)
	ref.Static = true

	tests := []struct {
		name string
		expr *ir.InvokeExpr
		want bool
	}{
		{"exact signature", ir.NewStaticInvoke(ref, ir.StringConstant("a.B")), true},
		{"instance shape", &ir.InvokeExpr{Kind: ir.VirtualInvoke, Base: ir.Null, Method: ref, Args: []ir.Value{ir.StringConstant("a.B")}}, false},
		{"other class", ir.NewStaticInvoke(&ir.MethodRef{Class: "a.Main", Name: "forName", Params: ref.Params, Return: ref.Return, Static: true}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, forName.matches(tt.expr))
		})
	}
}
