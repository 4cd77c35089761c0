package trimmer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"github.com/715d/reflinline/internal/scene"
)

const program = `
classes:
  - name: a.Shape
    interface: true
    methods:
      - {name: area, returns: int, abstract: true}
  - name: a.Square
    interfaces: [a.Shape]
    methods:
      - name: <init>
        body: |
          a.Square r0;
          r0 := @this: a.Square;
          specialinvoke r0.<java.lang.Object: void <init>()>();
          return;
      - name: area
        returns: int
        body: |
          a.Square r0;
          r0 := @this: a.Square;
          return 4;
  - name: a.Circle
    interfaces: [a.Shape]
    methods:
      - name: <init>
        body: |
          a.Circle r0;
          r0 := @this: a.Circle;
          specialinvoke r0.<java.lang.Object: void <init>()>();
          return;
      - name: area
        returns: int
        body: |
          a.Circle r0;
          r0 := @this: a.Circle;
          return 3;
  - name: a.Main
    methods:
      - name: main
        params: ["java.lang.String[]"]
        static: true
        body: |
          java.lang.String[] r0;
          a.Square r1;
          int i0;
          r0 := @parameter0: java.lang.String[];
          r1 = new a.Square;
          specialinvoke r1.<a.Square: void <init>()>();
          i0 = staticinvoke <a.Main: int measure(a.Shape)>(r1);
          return;
      - name: measure
        params: [a.Shape]
        returns: int
        static: true
        body: |
          a.Shape r0;
          int i0;
          r0 := @parameter0: a.Shape;
          i0 = interfaceinvoke r0.<a.Shape: int area()>();
          return i0;
      - name: unused
        static: true
        body: |
          a.Circle r0;
          r0 = new a.Circle;
          specialinvoke r0.<a.Circle: void <init>()>();
          return;
`

const (
	mainSig    = "<a.Main: void main(java.lang.String[])>"
	measureSig = "<a.Main: int measure(a.Shape)>"
	unusedSig  = "<a.Main: void unused()>"
	squareArea = "<a.Square: int area()>"
	circleArea = "<a.Circle: int area()>"
	circleInit = "<a.Circle: void <init>()>"
)

func build(t *testing.T) (*scene.Scene, *CallGraph) {
	t.Helper()
	s := scene.New()
	require.NoError(t, s.Load([]byte(program)))
	cg, err := Build(s)
	require.NoError(t, err)
	return s, cg
}

func targets(t *testing.T, s *scene.Scene, cg *CallGraph, sig string) []string {
	t.Helper()
	m, err := s.Method(sig)
	require.NoError(t, err)
	var out []string
	for _, site := range cg.Sites(m) {
		for _, target := range site.Targets {
			out = append(out, target.Signature())
		}
	}
	return out
}

func TestBuild(t *testing.T) {
	s, cg := build(t)

	require.Equal(t, []string{squareArea, circleArea}, targets(t, s, cg, measureSig))
	require.Equal(t, []string{"<a.Square: void <init>()>", measureSig}, targets(t, s, cg, mainSig))

	var entries []string
	for _, m := range cg.Entries() {
		entries = append(entries, m.Signature())
	}
	require.Equal(t, []string{mainSig}, entries)

	reachable := cg.Reachable()
	for _, tt := range []struct {
		sig  string
		want bool
	}{
		{mainSig, true},
		{measureSig, true},
		{squareArea, true},
		{circleArea, true},
		{unusedSig, false},
		{circleInit, false},
	} {
		m, err := s.Method(tt.sig)
		require.NoError(t, err)
		require.Equal(t, tt.want, reachable[m], tt.sig)
	}
}

func TestTrim(t *testing.T) {
	tests := []struct {
		name            string
		pointsTo        string
		wantTargets     []string
		wantRetargeted  int
		wantDiagnostics []Diagnostic
	}{
		{
			name:        "no points-to facts keeps hierarchy targets",
			pointsTo:    "methods: {}\n",
			wantTargets: []string{squareArea, circleArea},
		},
		{
			name: "reaching types narrow the dispatch",
			pointsTo: `
methods:
  "<a.Main: int measure(a.Shape)>":
    r0: [a.Square]
`,
			wantTargets:    []string{squareArea},
			wantRetargeted: 1,
		},
		{
			name: "no reaching type dispatches",
			pointsTo: `
methods:
  "<a.Main: int measure(a.Shape)>":
    r0: [java.lang.String]
`,
			wantRetargeted: 1,
			wantDiagnostics: []Diagnostic{{
				Method:        measureSig,
				Site:          "i0 = interfaceinvoke r0.<a.Shape: int area()>()",
				ReachingTypes: []string{"java.lang.String"},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, cg := build(t)
			pts, err := ParsePointsTo([]byte(tt.pointsTo))
			require.NoError(t, err)

			report, err := Trim(cg, pts)
			require.NoError(t, err)
			require.Equal(t, 2, report.Removed)
			require.Equal(t, tt.wantRetargeted, report.Retargeted)
			require.Equal(t, tt.wantDiagnostics, report.Diagnostics)
			require.Equal(t, tt.wantTargets, targets(t, s, cg, measureSig))
			require.Empty(t, targets(t, s, cg, unusedSig))
			require.Empty(t, targets(t, s, cg, circleInit))
		})
	}
}

func TestCallGraph_Graph(t *testing.T) {
	_, cg := build(t)
	pts, err := ParsePointsTo([]byte("methods:\n  \"" + measureSig + "\":\n    r0: [a.Square]\n"))
	require.NoError(t, err)
	_, err = Trim(cg, pts)
	require.NoError(t, err)

	g := cg.Graph()
	require.Contains(t, g.Nodes, unusedSig)
	require.Contains(t, g.Edges, lattice.Edge{Caller: measureSig, Callee: squareArea})
	require.NotContains(t, g.Edges, lattice.Edge{Caller: measureSig, Callee: circleArea})
	require.NotContains(t, g.Edges, lattice.Edge{Caller: unusedSig, Callee: circleInit})
	require.NotEmpty(t, render.DOT(g, "call graph"))
}

func TestParsePointsTo_Error(t *testing.T) {
	_, err := ParsePointsTo([]byte("methods: [1, 2"))
	require.ErrorContains(t, err, "parsing points-to")
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Method: measureSig, Site: "i0 = x", ReachingTypes: []string{"a.B", "a.C"}}
	require.Equal(t, "couldn't resolve dispatch i0 = x in method "+measureSig+"; reaching types: [a.B, a.C]", d.String())
}

func TestAnalyzeRTA(t *testing.T) {
	s, cg := build(t)
	r, err := AnalyzeRTA(cg)
	require.NoError(t, err)
	require.Equal(t, []string{"a.Square"}, r.Types())

	for _, tt := range []struct {
		sig  string
		want bool
	}{
		{mainSig, true},
		{measureSig, true},
		{squareArea, true},
		{"<a.Square: void <init>()>", true},
		{circleArea, false},
		{circleInit, false},
		{unusedSig, false},
	} {
		t.Run(tt.sig, func(t *testing.T) {
			m, err := s.Method(tt.sig)
			require.NoError(t, err)
			require.Equal(t, tt.want, r.Reachable(m))
		})
	}

	measure, err := s.Method(measureSig)
	require.NoError(t, err)
	body, err := measure.RetrieveBody()
	require.NoError(t, err)
	types, ok := r.ReachingTypes(measure, nil, body.Local("r0"))
	require.True(t, ok)
	require.Equal(t, []string{"a.Square"}, types)
	_, ok = r.ReachingTypes(measure, nil, body.Local("i0"))
	require.False(t, ok)

	unused, err := s.Method(unusedSig)
	require.NoError(t, err)
	unusedBody, err := unused.RetrieveBody()
	require.NoError(t, err)
	_, ok = r.ReachingTypes(unused, nil, unusedBody.Local("r0"))
	require.False(t, ok)
}

func TestTrim_RTA(t *testing.T) {
	s, cg := build(t)
	r, err := AnalyzeRTA(cg)
	require.NoError(t, err)

	report, err := Trim(cg, r)
	require.NoError(t, err)
	require.Equal(t, 2, report.Removed)
	require.Equal(t, 1, report.Retargeted)
	require.Empty(t, report.Diagnostics)
	require.Equal(t, []string{squareArea}, targets(t, s, cg, measureSig))
}
