package trimmer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/scene"
)

// PointsTo reports the runtime classes that may reach a local at a statement.
// ok is false when the analysis has no answer for the local.
type PointsTo interface {
	ReachingTypes(m *scene.Method, s ir.Stmt, l *ir.Local) (types []string, ok bool)
}

// StaticPointsTo is a flow-insensitive points-to result: per method, the
// classes each local may hold anywhere in the body.
type StaticPointsTo struct {
	Methods map[string]map[string][]string `yaml:"methods"`
}

// ParsePointsTo reads a points-to file of the form
//
//	methods:
//	  "<a.Main: void main(java.lang.String[])>":
//	    r1: [a.B, a.C]
func ParsePointsTo(data []byte) (*StaticPointsTo, error) {
	var p StaticPointsTo
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing points-to: %w", err)
	}
	return &p, nil
}

// LoadPointsTo reads a points-to file from path.
func LoadPointsTo(path string) (*StaticPointsTo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading points-to: %w", err)
	}
	return ParsePointsTo(data)
}

func (p *StaticPointsTo) ReachingTypes(m *scene.Method, _ ir.Stmt, l *ir.Local) ([]string, bool) {
	locals, ok := p.Methods[m.Signature()]
	if !ok {
		return nil, false
	}
	types, ok := locals[l.Name]
	return types, ok
}
