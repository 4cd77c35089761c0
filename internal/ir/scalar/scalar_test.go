package scalar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/ir"
)

func TestDeadAssignments(t *testing.T) {
	b := ir.MustParse(`    int i0, i1;
    java.lang.Object r0;

    i0 := @parameter0: int;
    i1 = 5;
    r0 = staticinvoke <a.B: java.lang.Object make()>();
    return;
`)
	n, err := DeadAssignments(b)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, `    int i0, i1;
    java.lang.Object r0;

    i0 := @parameter0: int;
    staticinvoke <a.B: java.lang.Object make()>();
    return;
`, b.String())
}

func TestDeadAssignments_KeepsEffects(t *testing.T) {
	b := ir.MustParse(`    java.lang.Object r0;
    java.lang.Object[] r1;
    java.lang.Integer r2;

    r1 := @parameter0: java.lang.Object[];
    r0 = r1[0];
    r2 = (java.lang.Integer) r0;
    return;
`)
	n, err := DeadAssignments(b)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 4, b.Units.Len())
}

func TestCopyPropagation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "local copy without loops",
			body: `    int i0, i1, i2;

    i0 := @parameter0: int;
    i1 = staticinvoke <a.B: int next(int)>(i0);
    i2 = i1;
    staticinvoke <a.B: void use(int)>(i2);
    return;
`,
			want: 1,
		},
		{
			name: "local copy inside a loop",
			body: `    int i0, i1, i2;

    i0 := @parameter0: int;
  label1:
    i1 = staticinvoke <a.B: int next(int)>(i0);
    i2 = i1;
    if i2 != 0 goto label1;
    return;
`,
			want: 0,
		},
		{
			name: "identity source inside a loop",
			body: `    int i0, i2;

    i0 := @parameter0: int;
  label1:
    i2 = i0;
    if i2 != 0 goto label1;
    return;
`,
			want: 1,
		},
		{
			name: "constant into argument",
			body: `    java.lang.Object r0;

    r0 = null;
    staticinvoke <a.B: void f(java.lang.Object)>(r0);
    return;
`,
			want: 1,
		},
		{
			name: "constant never becomes a base",
			body: `    java.lang.Object r0;
    java.lang.String r1;

    r0 = null;
    r1 = virtualinvoke r0.<java.lang.Object: java.lang.String toString()>();
    return;
`,
			want: 0,
		},
		{
			name: "two definitions",
			body: `    int i0, i1;

    i0 := @parameter0: int;
    i1 = 1;
    if i0 == 0 goto label1;
    i1 = 2;
  label1:
    staticinvoke <a.B: void use(int)>(i1);
    return;
`,
			want: 0,
		},
		{
			name: "copy of different type",
			body: `    a.B r0;
    java.lang.Object r1;

    r0 := @parameter0: a.B;
    r1 = r0;
    staticinvoke <a.B: void f(java.lang.Object)>(r1);
    return;
`,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ir.MustParse(tt.body)
			require.Equal(t, tt.want, CopyPropagation(b))
			require.NoError(t, b.Validate())
		})
	}
}

func TestNops(t *testing.T) {
	b := ir.MustParse(`    int i0;

    i0 := @parameter0: int;
    if i0 == 0 goto label1;
    nop;
    return;
  label1:
    nop;
`)
	n, err := Nops(b)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 4, b.Units.Len())
	_, lastIsNop := b.Units.Last().(*ir.NopStmt)
	require.True(t, lastIsNop)
}

func TestUnusedLocals(t *testing.T) {
	b := ir.MustParse(`    int i0, i1;
    boolean $z0;

    i0 := @parameter0: int;
    return;
`)
	require.Equal(t, 2, UnusedLocals(b))
	require.Len(t, b.Locals, 1)
	require.Nil(t, b.Local("$z0"))
}

func TestNormalize_GuardedAlternative(t *testing.T) {
	b := ir.MustParse(`    java.lang.String r0;
    java.lang.Class r1, $r2;
    boolean $z0;

    r0 := @parameter0: java.lang.String;
    $z0 = staticinvoke <reflinline.rt.OpaquePredicate: boolean getFalse()>();
    if $z0 == 0 goto label1;
    $r2 = class "a/B";
    r1 = $r2;
    goto label2;
  label1:
    nop;
    r1 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>(r0);
  label2:
    nop;
    return r1;
`)
	require.NoError(t, Normalize(b))
	require.Equal(t, `    java.lang.String r0;
    java.lang.Class r1;
    boolean $z0;

    r0 := @parameter0: java.lang.String;
    $z0 = staticinvoke <reflinline.rt.OpaquePredicate: boolean getFalse()>();
    if $z0 == 0 goto label1;
    r1 = class "a/B";
    goto label2;
  label1:
    r1 = staticinvoke <java.lang.Class: java.lang.Class forName(java.lang.String)>(r0);
  label2:
    return r1;
`, b.String())
	require.NoError(t, b.Validate())
}
