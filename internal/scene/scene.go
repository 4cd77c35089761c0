// Package scene holds the program database the inliner works against: the
// classes of the program and its library, their fields and methods, and the
// lazily parsed method bodies.
package scene

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/reflinline/internal/ir"
)

// ErrNotFound is returned when a class, field or method is not in the scene.
var ErrNotFound = errors.New("not found")

// ObjectClass is the root of the class hierarchy.
const ObjectClass = "java.lang.Object"

// Class is a class or interface.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Interface  bool
	Abstract   bool

	// Application classes are part of the analyzed program; the others
	// come from the library model.
	Application bool

	Fields  []*Field
	Methods []*Method
}

// Field returns the field with the given name, or nil.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Concrete reports whether c can be instantiated.
func (c *Class) Concrete() bool { return !c.Interface && !c.Abstract }

func (c *Class) String() string { return c.Name }

// Field is a static or instance field.
type Field struct {
	Class  *Class
	Name   string
	Type   ir.Type
	Static bool
}

// Ref returns the symbolic reference to f.
func (f *Field) Ref() *ir.FieldRef {
	return &ir.FieldRef{Class: f.Class.Name, Name: f.Name, T: f.Type, Static: f.Static}
}

// Method is a method or constructor. Its body is kept in text form until
// first requested.
type Method struct {
	Class    *Class
	Name     string
	Params   []ir.Type
	Return   ir.Type
	Static   bool
	Abstract bool
	Native   bool

	// Lines is the inclusive source line range, or zero if unknown.
	Lines [2]int

	mu     sync.Mutex
	source string
	body   *ir.Body
}

// NewMethod returns a method with a textual body. An empty source leaves the
// method without a body.
func NewMethod(name string, params []ir.Type, ret ir.Type, static bool, source string) *Method {
	return &Method{Name: name, Params: params, Return: ret, Static: static, source: source}
}

// Ref returns the symbolic reference to m.
func (m *Method) Ref() *ir.MethodRef {
	return &ir.MethodRef{Class: m.Class.Name, Name: m.Name, Params: m.Params, Return: m.Return, Static: m.Static}
}

// Signature returns "<C: R name(P1,P2)>".
func (m *Method) Signature() string { return m.Ref().Signature() }

// SubSignature returns "R name(P1,P2)".
func (m *Method) SubSignature() string { return m.Ref().SubSignature() }

func (m *Method) String() string { return m.Signature() }

// IsConstructor reports whether m is an instance initializer.
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// IsStaticInitializer reports whether m is a class initializer.
func (m *Method) IsStaticInitializer() bool { return m.Name == "<clinit>" }

// Concrete reports whether m can be executed.
func (m *Method) Concrete() bool { return !m.Abstract }

// ContainsLine reports whether line falls within the method's source range.
// A method without a known range contains every line.
func (m *Method) ContainsLine(line int) bool {
	if m.Lines == [2]int{} || line <= 0 {
		return true
	}
	return line >= m.Lines[0] && line <= m.Lines[1]
}

// HasBody reports whether m has a body, parsed or not.
func (m *Method) HasBody() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.body != nil || m.source != ""
}

// RetrieveBody returns the body of m, parsing it on first use.
func (m *Method) RetrieveBody() (*ir.Body, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.body != nil {
		return m.body, nil
	}
	if m.source == "" {
		return nil, fmt.Errorf("method %s has no body: %w", m, ErrNotFound)
	}
	b, err := ir.Parse(m.source)
	if err != nil {
		return nil, fmt.Errorf("parsing body of %s: %w", m, err)
	}
	m.body = b
	return b, nil
}

// SetBody replaces the body of m.
func (m *Method) SetBody(b *ir.Body) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = b
	m.source = ""
}

// Source returns the text form of the body, or "" if m has none.
func (m *Method) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.body != nil {
		return m.body.String()
	}
	return m.source
}

// Scene is the set of classes under analysis. Lookups by signature are cached.
type Scene struct {
	classes map[string]*Class
	order   []*Class
	sigs    *xsync.Map[string, *Method]
}

// NewEmpty returns a scene without any classes.
func NewEmpty() *Scene {
	return &Scene{
		classes: make(map[string]*Class),
		sigs:    xsync.NewMap[string, *Method](),
	}
}

// New returns a scene preloaded with the library model of java.lang,
// java.lang.reflect and java.util.
func New() *Scene {
	s := NewEmpty()
	lib, err := libraryFile()
	if err == nil {
		err = s.add(lib, false)
	}
	if err != nil {
		panic(fmt.Sprintf("scene: embedded library model: %v", err))
	}
	return s
}

// AddClass adds c to the scene.
func (s *Scene) AddClass(c *Class) error {
	if _, dup := s.classes[c.Name]; dup {
		return fmt.Errorf("class %s already defined", c.Name)
	}
	if c.Super == "" && c.Name != ObjectClass {
		c.Super = ObjectClass
	}
	for _, f := range c.Fields {
		f.Class = c
	}
	for _, m := range c.Methods {
		m.Class = c
	}
	s.classes[c.Name] = c
	s.order = append(s.order, c)
	return nil
}

// Class returns the class with the given name.
func (s *Scene) Class(name string) (*Class, error) {
	c, ok := s.classes[name]
	if !ok {
		return nil, fmt.Errorf("class %s: %w", name, ErrNotFound)
	}
	return c, nil
}

// HasClass reports whether the scene has a class with the given name.
func (s *Scene) HasClass(name string) bool {
	_, ok := s.classes[name]
	return ok
}

// Classes returns all classes in the order they were added.
func (s *Scene) Classes() []*Class { return slices.Clone(s.order) }

// ApplicationClasses returns the application classes in the order they were added.
func (s *Scene) ApplicationClasses() []*Class {
	var out []*Class
	for _, c := range s.order {
		if c.Application {
			out = append(out, c)
		}
	}
	return out
}

// SetApplication marks the named class as an application class.
func (s *Scene) SetApplication(name string) error {
	c, err := s.Class(name)
	if err != nil {
		return err
	}
	c.Application = true
	return nil
}

// Method returns the method with the given signature.
func (s *Scene) Method(sig string) (*Method, error) {
	if m, ok := s.sigs.Load(sig); ok {
		return m, nil
	}
	ref, err := ir.ParseMethodRef(sig)
	if err != nil {
		return nil, err
	}
	c, err := s.Class(ref.Class)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", sig, err)
	}
	sub := ref.SubSignature()
	for _, m := range c.Methods {
		if m.Name == ref.Name && m.SubSignature() == sub {
			s.sigs.Store(sig, m)
			return m, nil
		}
	}
	return nil, fmt.Errorf("method %s: %w", sig, ErrNotFound)
}

// MethodsByName returns the methods called name declared by class, in
// declaration order.
func (s *Scene) MethodsByName(class, name string) ([]*Method, error) {
	c, err := s.Class(class)
	if err != nil {
		return nil, err
	}
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("method %s.%s: %w", class, name, ErrNotFound)
	}
	return out, nil
}

// AddField adds f to the named class. Adding a field that already exists with
// the same type and staticness returns the existing field.
func (s *Scene) AddField(class string, f *Field) (*Field, error) {
	c, err := s.Class(class)
	if err != nil {
		return nil, err
	}
	if old := c.Field(f.Name); old != nil {
		if old.Type.String() != f.Type.String() || old.Static != f.Static {
			return nil, fmt.Errorf("field %s.%s already defined as %s", class, f.Name, old.Type)
		}
		return old, nil
	}
	f.Class = c
	c.Fields = append(c.Fields, f)
	return f, nil
}

// AddMethod adds m to the named class.
func (s *Scene) AddMethod(class string, m *Method) error {
	c, err := s.Class(class)
	if err != nil {
		return err
	}
	m.Class = c
	sub := m.SubSignature()
	for _, old := range c.Methods {
		if old.Name == m.Name && old.SubSignature() == sub {
			return fmt.Errorf("method %s already defined", m)
		}
	}
	c.Methods = append(c.Methods, m)
	return nil
}

// Methods returns every method of every class, in class order.
func (s *Scene) Methods() []*Method {
	var out []*Method
	for _, c := range s.order {
		out = append(out, c.Methods...)
	}
	return out
}
