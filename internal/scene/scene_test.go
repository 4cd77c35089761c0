package scene

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reflinline/internal/ir"
)

const shapes = `
classes:
  - name: a.Shape
    interface: true
    methods:
      - {name: area, returns: int, abstract: true}
  - name: a.Base
    abstract: true
    interfaces: [a.Shape]
    methods:
      - name: <init>
        body: |
          a.Base r0;
          r0 := @this: a.Base;
          specialinvoke r0.<java.lang.Object: void <init>()>();
          return;
      - name: describe
        returns: java.lang.String
        body: |
          a.Base r0;
          r0 := @this: a.Base;
          return "shape";
  - name: a.Square
    super: a.Base
    fields:
      - {name: side, type: int}
    methods:
      - name: area
        returns: int
        lines: [10, 14]
        body: |
          a.Square r0;
          r0 := @this: a.Square;
          return 4;
  - name: a.Circle
    super: a.Base
    methods:
      - name: area
        returns: int
        lines: [20, 22]
        body: |
          a.Circle r0;
          r0 := @this: a.Circle;
          return 3;
      - name: area
        params: [int]
        returns: int
        lines: [23, 25]
        body: |
          a.Circle r0;
          int i0;
          r0 := @this: a.Circle;
          i0 := @parameter0: int;
          return i0;
`

func loadShapes(t *testing.T) *Scene {
	t.Helper()
	s := New()
	require.NoError(t, s.Load([]byte(shapes)))
	return s
}

func TestNew_LibraryModel(t *testing.T) {
	s := New()
	for _, sig := range []string{
		"<java.lang.Class: java.lang.Class forName(java.lang.String)>",
		"<java.lang.Class: java.lang.Object newInstance()>",
		"<java.lang.reflect.Constructor: java.lang.Object newInstance(java.lang.Object[])>",
		"<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>",
		"<java.util.Set: boolean add(java.lang.Object)>",
		"<java.lang.Integer: int intValue()>",
		"<java.lang.Character: java.lang.Character valueOf(char)>",
	} {
		m, err := s.Method(sig)
		require.NoError(t, err, sig)
		require.Equal(t, sig, m.Signature())
	}
	require.Empty(t, s.ApplicationClasses())
	require.True(t, s.IsSubtype("java.util.HashSet", "java.util.Collection"))
	require.True(t, s.IsSubtype("java.lang.ClassNotFoundException", "java.lang.Throwable"))

	// Scenes do not share mutable classes.
	_, err := New().AddField("java.lang.Class", &Field{Name: "x", Type: ir.Boolean})
	require.NoError(t, err)
	c, err := s.Class("java.lang.Class")
	require.NoError(t, err)
	require.Nil(t, c.Field("x"))
}

func TestScene_Method(t *testing.T) {
	s := loadShapes(t)
	tests := []struct {
		name    string
		sig     string
		wantErr bool
	}{
		{name: "declared", sig: "<a.Square: int area()>"},
		{name: "overload", sig: "<a.Circle: int area(int)>"},
		{name: "constructor", sig: "<a.Base: void <init>()>"},
		{name: "inherited is not declared", sig: "<a.Square: java.lang.String describe()>", wantErr: true},
		{name: "unknown class", sig: "<a.Nope: void f()>", wantErr: true},
		{name: "malformed", sig: "a.Square.area", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := s.Method(tt.sig)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.sig, m.Signature())

			// Second lookup hits the cache.
			again, err := s.Method(tt.sig)
			require.NoError(t, err)
			require.Same(t, m, again)
		})
	}

	_, err := s.Method("<a.Square: void missing()>")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestScene_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "classes: [ {"},
		{"bad type", "classes:\n  - name: a.B\n    fields:\n      - {name: f, type: 'a b'}\n"},
		{"bad lines", "classes:\n  - name: a.B\n    methods:\n      - {name: f, lines: [1]}\n"},
		{"duplicate class", "classes:\n  - name: java.lang.Object\n"},
		{"missing name", "classes:\n  - super: a.B\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, New().Load([]byte(tt.yaml)))
		})
	}
}

func TestMethod_RetrieveBody(t *testing.T) {
	s := loadShapes(t)
	m, err := s.Method("<a.Square: int area()>")
	require.NoError(t, err)
	require.True(t, m.HasBody())

	b1, err := m.RetrieveBody()
	require.NoError(t, err)
	b2, err := m.RetrieveBody()
	require.NoError(t, err)
	require.Same(t, b1, b2)
	require.Equal(t, 2, b1.Units.Len())

	abstract, err := s.Method("<a.Shape: int area()>")
	require.NoError(t, err)
	require.False(t, abstract.HasBody())
	_, err = abstract.RetrieveBody()
	require.True(t, errors.Is(err, ErrNotFound))

	require.True(t, m.ContainsLine(12))
	require.False(t, m.ContainsLine(20))
	require.True(t, m.ContainsLine(0))
}

func TestScene_AddField(t *testing.T) {
	s := loadShapes(t)
	f, err := s.AddField("a.Square", &Field{Name: "flag", Type: ir.Boolean})
	require.NoError(t, err)
	again, err := s.AddField("a.Square", &Field{Name: "flag", Type: ir.Boolean})
	require.NoError(t, err)
	require.Same(t, f, again)

	_, err = s.AddField("a.Square", &Field{Name: "side", Type: ir.Long})
	require.Error(t, err)
	_, err = s.AddField("a.Nope", &Field{Name: "flag", Type: ir.Boolean})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestScene_Dispatch(t *testing.T) {
	s := loadShapes(t)
	area := &ir.MethodRef{Class: "a.Shape", Name: "area", Return: ir.Int}
	describe := &ir.MethodRef{Class: "a.Base", Name: "describe", Return: ir.StringType}

	m, err := s.ResolveConcreteDispatch("a.Square", area)
	require.NoError(t, err)
	require.Equal(t, "<a.Square: int area()>", m.Signature())

	m, err = s.ResolveConcreteDispatch("a.Circle", describe)
	require.NoError(t, err)
	require.Equal(t, "<a.Base: java.lang.String describe()>", m.Signature())

	_, err = s.ResolveConcreteDispatch("a.Base", describe)
	require.Error(t, err, "abstract receivers never dispatch")

	targets := s.ResolveDispatch([]string{"a.Square", "a.Circle", "a.Square", "java.lang.String"}, area)
	require.Len(t, targets, 2)
	require.Equal(t, "<a.Square: int area()>", targets[0].Signature())
	require.Equal(t, "<a.Circle: int area()>", targets[1].Signature())

	var names []string
	for _, c := range s.ConcreteSubtypes("a.Shape") {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"a.Square", "a.Circle"}, names)
	require.True(t, s.IsSubtypeOf(ir.Ref("a.Square"), ir.Ref("a.Shape")))
	require.True(t, s.IsSubtypeOf(ir.ArrayType{Elem: ir.Ref("a.Square")}, ir.ArrayType{Elem: ir.Ref("a.Base")}))
	require.False(t, s.IsSubtypeOf(ir.Ref("a.Shape"), ir.Ref("a.Square")))
}

func TestScene_WriteRoundTrip(t *testing.T) {
	s := loadShapes(t)
	m, err := s.Method("<a.Square: int area()>")
	require.NoError(t, err)
	b, err := m.RetrieveBody()
	require.NoError(t, err)
	require.NoError(t, b.Units.InsertBefore(b.Units.Last(), ir.NewNop()))

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))

	reloaded := New()
	require.NoError(t, reloaded.Load(buf.Bytes()))
	require.Len(t, reloaded.ApplicationClasses(), 4)
	m2, err := reloaded.Method("<a.Square: int area()>")
	require.NoError(t, err)
	require.Equal(t, [2]int{10, 14}, m2.Lines)
	b2, err := m2.RetrieveBody()
	require.NoError(t, err)
	require.Equal(t, b.String(), b2.String())
}
