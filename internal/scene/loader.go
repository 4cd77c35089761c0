package scene

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/reflinline/internal/ir"
)

// ProgramFile is the on-disk form of a program: its classes with their
// fields, methods and textual bodies.
type ProgramFile struct {
	Classes []ClassSpec `yaml:"classes"`
}

// ClassSpec describes one class.
type ClassSpec struct {
	Name       string       `yaml:"name"`
	Super      string       `yaml:"super,omitempty"`
	Interfaces []string     `yaml:"interfaces,omitempty"`
	Interface  bool         `yaml:"interface,omitempty"`
	Abstract   bool         `yaml:"abstract,omitempty"`
	Library    bool         `yaml:"library,omitempty"`
	Fields     []FieldSpec  `yaml:"fields,omitempty"`
	Methods    []MethodSpec `yaml:"methods,omitempty"`
}

// FieldSpec describes one field.
type FieldSpec struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static,omitempty"`
}

// MethodSpec describes one method. Body is the text form parsed by ir.Parse.
type MethodSpec struct {
	Name     string   `yaml:"name"`
	Params   []string `yaml:"params,omitempty"`
	Returns  string   `yaml:"returns,omitempty"`
	Static   bool     `yaml:"static,omitempty"`
	Abstract bool     `yaml:"abstract,omitempty"`
	Native   bool     `yaml:"native,omitempty"`
	Lines    []int    `yaml:"lines,omitempty,flow"`
	Body     string   `yaml:"body,omitempty"`
}

//go:embed library.yaml
var libraryYAML []byte

var libraryFile = sync.OnceValues(func() (*ProgramFile, error) {
	var pf ProgramFile
	if err := yaml.Unmarshal(libraryYAML, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
})

// LoadFile reads a program file into a new scene that already holds the
// library model.
func LoadFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	s := New()
	if err := s.Load(data); err != nil {
		return nil, fmt.Errorf("loading program %s: %w", path, err)
	}
	return s, nil
}

// Load adds the classes of a YAML program file to s. Classes are application
// classes unless marked as library.
func (s *Scene) Load(data []byte) error {
	var pf ProgramFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("decoding program: %w", err)
	}
	return s.add(&pf, true)
}

func (s *Scene) add(pf *ProgramFile, application bool) error {
	for _, cs := range pf.Classes {
		c, err := cs.build()
		if err != nil {
			return fmt.Errorf("class %s: %w", cs.Name, err)
		}
		c.Application = application && !cs.Library
		if err := s.AddClass(c); err != nil {
			return err
		}
	}
	return nil
}

func (cs *ClassSpec) build() (*Class, error) {
	if cs.Name == "" {
		return nil, fmt.Errorf("missing class name")
	}
	c := &Class{
		Name:       cs.Name,
		Super:      cs.Super,
		Interfaces: cs.Interfaces,
		Interface:  cs.Interface,
		Abstract:   cs.Abstract || cs.Interface,
	}
	for _, fs := range cs.Fields {
		t, err := ir.ParseType(fs.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		c.Fields = append(c.Fields, &Field{Name: fs.Name, Type: t, Static: fs.Static})
	}
	for _, ms := range cs.Methods {
		m, err := ms.build()
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", ms.Name, err)
		}
		c.Methods = append(c.Methods, m)
	}
	return c, nil
}

func (ms *MethodSpec) build() (*Method, error) {
	m := &Method{
		Name:     ms.Name,
		Static:   ms.Static,
		Abstract: ms.Abstract,
		Native:   ms.Native,
		source:   ms.Body,
		Return:   ir.Void,
	}
	for _, p := range ms.Params {
		t, err := ir.ParseType(p)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, t)
	}
	if ms.Returns != "" {
		t, err := ir.ParseType(ms.Returns)
		if err != nil {
			return nil, err
		}
		m.Return = t
	}
	switch len(ms.Lines) {
	case 0:
	case 2:
		m.Lines = [2]int{ms.Lines[0], ms.Lines[1]}
	default:
		return nil, fmt.Errorf("lines must be [first, last]")
	}
	return m, nil
}

// Spec returns the file form of c, with current method bodies.
func (c *Class) Spec() ClassSpec {
	cs := ClassSpec{
		Name:       c.Name,
		Interfaces: c.Interfaces,
		Interface:  c.Interface,
		Abstract:   c.Abstract && !c.Interface,
		Library:    !c.Application,
	}
	if c.Super != ObjectClass {
		cs.Super = c.Super
	}
	for _, f := range c.Fields {
		cs.Fields = append(cs.Fields, FieldSpec{Name: f.Name, Type: f.Type.String(), Static: f.Static})
	}
	for _, m := range c.Methods {
		ms := MethodSpec{
			Name:     m.Name,
			Static:   m.Static,
			Abstract: m.Abstract,
			Native:   m.Native,
			Body:     m.Source(),
		}
		for _, p := range m.Params {
			ms.Params = append(ms.Params, p.String())
		}
		if m.Return != ir.Void {
			ms.Returns = m.Return.String()
		}
		if m.Lines != [2]int{} {
			ms.Lines = m.Lines[:]
		}
		cs.Methods = append(cs.Methods, ms)
	}
	return cs
}

// Write encodes the application classes of s as a program file.
func (s *Scene) Write(w io.Writer) error {
	var pf ProgramFile
	for _, c := range s.ApplicationClasses() {
		pf.Classes = append(pf.Classes, c.Spec())
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&pf); err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}
	return enc.Close()
}
