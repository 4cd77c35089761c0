package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/scene"
)

const program = `
classes:
  - name: a.Main
    methods:
      - {name: main, params: ["java.lang.String[]"], static: true, lines: [1, 20]}
      - {name: run, lines: [21, 25]}
      - {name: run, params: [int], lines: [26, 30]}
`

func newScene(t *testing.T) *scene.Scene {
	t.Helper()
	s := scene.New()
	require.NoError(t, s.Load([]byte(program)))
	return s
}

func TestKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"Class.forName", ClassForName},
		{"ClassForName", ClassForName},
		{"Class.newInstance", ClassNewInstance},
		{"Constructor.newInstance", ConstructorNewInstance},
		{"Method.invoke", MethodInvoke},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := ParseKind(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, k)
		})
	}
	_, err := ParseKind("Field.set")
	require.Error(t, err)

	require.Len(t, Kinds(), NumKinds)
	require.Equal(t, "Method.invoke", MethodInvoke.LogName())
	require.Equal(t, "Kind(9)", Kind(9).String())

	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("ConstructorNewInstance")))
	require.Equal(t, ConstructorNewInstance, k)
}

func TestRead(t *testing.T) {
	s := newScene(t)
	log := `# recorded by the tracing agent
Class.forName;a.B;a.Main.main;5;;
Class.forName;a.C;a.Main.main;6

Class.forName;a.B;a.Main.main;7
Method.invoke;<a.B: void f()>;a.Main.run;27
Field.set;<a.B: int x>;a.Main.main;8
Class.newInstance;a.D;java.util.Foo.bar;1
Class.newInstance;a.D;a.Main.main;
`
	o, err := Read(strings.NewReader(log), s)
	require.NoError(t, err)

	main, err := s.Method("<a.Main: void main(java.lang.String[])>")
	require.NoError(t, err)
	run, err := s.Method("<a.Main: void run(int)>")
	require.NoError(t, err)

	require.Equal(t, []*scene.Method{main, run}, o.Methods())
	require.Equal(t, []string{"a.B", "a.C"}, o.Targets(main, ClassForName))
	require.Equal(t, []string{"a.D"}, o.Targets(main, ClassNewInstance))
	require.Empty(t, o.Targets(main, MethodInvoke))
	require.Equal(t, []string{"<a.B: void f()>"}, o.Targets(run, MethodInvoke))

	other, err := s.Method("<a.Main: void run()>")
	require.NoError(t, err)
	require.Empty(t, o.Targets(other, MethodInvoke))
}

func TestRead_Errors(t *testing.T) {
	s := newScene(t)
	tests := []struct {
		name string
		log  string
		want string
	}{
		{"too few fields", "Class.forName;a.B", "line 1: malformed entry"},
		{"bad line number", "\nClass.forName;a.B;a.Main.main;x", "line 2: malformed line number"},
		{"bad source", "Class.forName;a.B;Main;1", "malformed source method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.log), s)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOracle_Add(t *testing.T) {
	s := newScene(t)
	m, err := s.Method("<a.Main: void run()>")
	require.NoError(t, err)

	o := NewOracle()
	require.True(t, o.Add(m, ClassForName, "a.B"))
	require.False(t, o.Add(m, ClassForName, "a.B"))
	require.True(t, o.Add(m, ClassNewInstance, "a.B"))

	// Returned slices are copies.
	got := o.Targets(m, ClassForName)
	got[0] = "x"
	require.Equal(t, []string{"a.B"}, o.Targets(m, ClassForName))
}
