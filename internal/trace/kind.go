// Package trace reads reflection traces: logs of the concrete classes,
// constructors and methods that reflective call sites reached while the
// program ran.
package trace

import "fmt"

// Kind is a kind of reflective call.
type Kind int

// Reflective call kinds, in the order the inliner processes them.
const (
	ClassForName Kind = iota
	ClassNewInstance
	ConstructorNewInstance
	MethodInvoke
)

// NumKinds is the number of reflective call kinds.
const NumKinds = int(MethodInvoke) + 1

var kindNames = [NumKinds]string{"ClassForName", "ClassNewInstance", "ConstructorNewInstance", "MethodInvoke"}

var logNames = [NumKinds]string{"Class.forName", "Class.newInstance", "Constructor.newInstance", "Method.invoke"}

// Kinds returns every kind in processing order.
func Kinds() []Kind {
	return []Kind{ClassForName, ClassNewInstance, ConstructorNewInstance, MethodInvoke}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= NumKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// LogName returns the name used for k in trace files, e.g. "Class.forName".
func (k Kind) LogName() string { return logNames[k] }

// ParseKind accepts either the Go name or the trace name of a kind.
func ParseKind(s string) (Kind, error) {
	for i := range NumKinds {
		if s == kindNames[i] || s == logNames[i] {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown reflective call kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
