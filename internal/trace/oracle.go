package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/715d/reflinline/internal/scene"
)

// Oracle answers, per method and kind, which targets were observed. Methods
// are kept in order of first appearance and targets in order of first
// appearance per (method, kind), without duplicates.
type Oracle struct {
	methods []*scene.Method
	targets map[*scene.Method]*[NumKinds][]string
	seen    map[entry]bool
}

type entry struct {
	m      *scene.Method
	k      Kind
	target string
}

// NewOracle returns an empty oracle.
func NewOracle() *Oracle {
	return &Oracle{
		targets: make(map[*scene.Method]*[NumKinds][]string),
		seen:    make(map[entry]bool),
	}
}

// Add records that a k call in m reached target. It reports whether the
// target was new.
func (o *Oracle) Add(m *scene.Method, k Kind, target string) bool {
	e := entry{m: m, k: k, target: target}
	if o.seen[e] {
		return false
	}
	o.seen[e] = true
	t, ok := o.targets[m]
	if !ok {
		t = new([NumKinds][]string)
		o.targets[m] = t
		o.methods = append(o.methods, m)
	}
	t[k] = append(t[k], target)
	return true
}

// Methods returns the methods containing reflective calls.
func (o *Oracle) Methods() []*scene.Method {
	return append([]*scene.Method(nil), o.methods...)
}

// Targets returns the observed targets of k calls in m.
func (o *Oracle) Targets(m *scene.Method, k Kind) []string {
	t, ok := o.targets[m]
	if !ok {
		return nil
	}
	return append([]string(nil), t[k]...)
}

// ReadFile reads a trace file, resolving source methods against s.
func ReadFile(path string, s *scene.Scene) (*Oracle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()
	o, err := Read(f, s)
	if err != nil {
		return nil, fmt.Errorf("reading trace %s: %w", path, err)
	}
	return o, nil
}

// Read parses a trace. Each line has the form
//
//	kind;target;sourceMethod;line[;...]
//
// where kind is a trace name such as "Class.forName", sourceMethod is the
// dotted class name followed by the method name, and line is the source
// line of the call, possibly empty. Blank lines and lines starting with '#'
// are ignored, as are kinds the inliner does not handle. Sources that are
// not in s are skipped.
func Read(r io.Reader, s *scene.Scene) (*Oracle, error) {
	o := NewOracle()
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := o.readLine(s, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Oracle) readLine(s *scene.Scene, line string) error {
	fields := strings.Split(line, ";")
	if len(fields) < 3 || fields[1] == "" || fields[2] == "" {
		return fmt.Errorf("malformed entry %q", line)
	}
	lineNo := 0
	if len(fields) > 3 && fields[3] != "" {
		v, err := strconv.Atoi(fields[3])
		if err != nil {
			return fmt.Errorf("malformed line number %q", fields[3])
		}
		lineNo = v
	}

	kind, err := ParseKind(fields[0])
	if err != nil {
		slog.Debug("skipping unhandled reflective call kind", "kind", fields[0], "target", fields[1])
		return nil
	}

	methods, err := sourceMethods(s, fields[2], lineNo)
	if err != nil {
		if errors.Is(err, scene.ErrNotFound) {
			slog.Debug("skipping trace entry outside the program", "source", fields[2], "error", err)
			return nil
		}
		return err
	}
	for _, m := range methods {
		o.Add(m, kind, fields[1])
	}
	return nil
}

// sourceMethods resolves "pkg.Class.method" to the methods of that name
// whose line range contains line.
func sourceMethods(s *scene.Scene, source string, line int) ([]*scene.Method, error) {
	dot := strings.LastIndexByte(source, '.')
	if dot <= 0 || dot == len(source)-1 {
		return nil, fmt.Errorf("malformed source method %q", source)
	}
	all, err := s.MethodsByName(source[:dot], source[dot+1:])
	if err != nil {
		return nil, err
	}
	var out []*scene.Method
	for _, m := range all {
		if m.ContainsLine(line) {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no method %s contains line %d: %w", source, line, scene.ErrNotFound)
	}
	return out, nil
}
