// Package rtlib provides the run-time support classes that rewritten programs
// call into, and the Go-side contracts that bind their behaviour.
//
// The support classes are:
//   - ReflectiveCalls: one static set of "<id><target>" keys per kind, filled
//     in by its static initializer, and the known* routines that each
//     rewritten call site invokes to report the handle it was given;
//   - OpaquePredicate: the decision routine guarding every speculative
//     alternative;
//   - Signatures: builds the lookup key for a reflective handle;
//   - UnexpectedReflectiveCall: reports a handle that no registry entry
//     matches to the installed Handler.
package rtlib

import (
	"fmt"
	"strings"

	"github.com/715d/reflinline/internal/ir"
	"github.com/715d/reflinline/internal/scene"
	"github.com/715d/reflinline/internal/trace"
)

// Support class names.
const (
	ReflectiveCallsClass = "reflinline.rt.ReflectiveCalls"
	OpaquePredicateClass = "reflinline.rt.OpaquePredicate"
	SignaturesClass      = "reflinline.rt.Signatures"
	UnexpectedCallClass  = "reflinline.rt.UnexpectedReflectiveCall"
)

var (
	setType         = ir.Ref("java.util.Set")
	constructorType = ir.Ref("java.lang.reflect.Constructor")
	methodType      = ir.Ref("java.lang.reflect.Method")
)

// Decision is the default decision routine. It returns false unless a Guard
// says otherwise, so by default every speculative alternative is skipped.
var Decision = &ir.MethodRef{Class: OpaquePredicateClass, Name: "getFalse", Return: ir.Boolean, Static: true}

// KeyMethod builds "<id><signature>" from a call-site id and a handle.
var KeyMethod = &ir.MethodRef{
	Class:  SignaturesClass,
	Name:   "key",
	Params: []ir.Type{ir.Int, ir.ObjectType},
	Return: ir.StringType,
	Static: true,
}

// SetAdd and SetContains are the java.util.Set operations on the registry.
var (
	SetAdd      = &ir.MethodRef{Class: "java.util.Set", Name: "add", Params: []ir.Type{ir.ObjectType}, Return: ir.Boolean}
	SetContains = &ir.MethodRef{Class: "java.util.Set", Name: "contains", Params: []ir.Type{ir.ObjectType}, Return: ir.Boolean}
)

var setFields = [trace.NumKinds]string{"classForName", "classNewInstance", "constructorNewInstance", "methodInvoke"}

// handleParams lists, per kind, the parameters that identify the reflective
// handle; the last one is the handle itself.
var handleParams = [trace.NumKinds][]ir.Type{
	{ir.StringType},
	{ir.ClassType},
	{constructorType},
	{ir.ObjectType, methodType},
}

// HandleType returns the type of the reflective handle of kind k: the class
// name string, the Class, the Constructor or the Method.
func HandleType(k trace.Kind) ir.Type {
	p := handleParams[k]
	return p[len(p)-1]
}

// SetField returns the static registry set for kind k.
func SetField(k trace.Kind) *ir.FieldRef {
	return &ir.FieldRef{Class: ReflectiveCallsClass, Name: setFields[k], T: setType, Static: true}
}

// KnownCall returns ReflectiveCalls.known<Kind>(int, handle...).
func KnownCall(k trace.Kind) *ir.MethodRef {
	return &ir.MethodRef{
		Class:  ReflectiveCallsClass,
		Name:   "known" + k.String(),
		Params: append([]ir.Type{ir.Int}, handleParams[k]...),
		Return: ir.Void,
		Static: true,
	}
}

// UnexpectedCall returns UnexpectedReflectiveCall.<kind>(handle...).
func UnexpectedCall(k trace.Kind) *ir.MethodRef {
	return &ir.MethodRef{
		Class:  UnexpectedCallClass,
		Name:   setFields[k],
		Params: handleParams[k],
		Return: ir.Void,
		Static: true,
	}
}

// Clinit returns the signature of the static initializer that holds the registry.
func Clinit() string {
	return (&ir.MethodRef{Class: ReflectiveCallsClass, Name: "<clinit>", Return: ir.Void, Static: true}).Signature()
}

// Install adds the support classes to s and marks them as application
// classes. Installing twice only re-marks them.
func Install(s *scene.Scene) error {
	if !s.HasClass(ReflectiveCallsClass) {
		for _, c := range supportClasses() {
			if err := s.AddClass(c); err != nil {
				return fmt.Errorf("installing %s: %w", c.Name, err)
			}
		}
	}
	for _, name := range []string{ReflectiveCallsClass, OpaquePredicateClass, SignaturesClass, UnexpectedCallClass} {
		if err := s.SetApplication(name); err != nil {
			return fmt.Errorf("installing support classes: %w", err)
		}
	}
	return nil
}

func supportClasses() []*scene.Class {
	calls := &scene.Class{Name: ReflectiveCallsClass}
	for k := range trace.NumKinds {
		calls.Fields = append(calls.Fields, &scene.Field{Name: setFields[k], Type: setType, Static: true})
	}
	calls.Methods = append(calls.Methods, scene.NewMethod("<clinit>", nil, ir.Void, true, clinitSource()))
	for _, k := range trace.Kinds() {
		ref := KnownCall(k)
		calls.Methods = append(calls.Methods, scene.NewMethod(ref.Name, ref.Params, ir.Void, true, knownSource(k)))
	}

	predicate := &scene.Class{Name: OpaquePredicateClass}
	predicate.Methods = append(predicate.Methods,
		scene.NewMethod(Decision.Name, nil, ir.Boolean, true, "return 0;\n"))

	sigs := &scene.Class{Name: SignaturesClass}
	key := scene.NewMethod(KeyMethod.Name, KeyMethod.Params, KeyMethod.Return, true, "")
	key.Native = true
	sigs.Methods = append(sigs.Methods, key)

	unexpected := &scene.Class{Name: UnexpectedCallClass}
	for _, k := range trace.Kinds() {
		ref := UnexpectedCall(k)
		m := scene.NewMethod(ref.Name, ref.Params, ir.Void, true, "")
		m.Native = true
		unexpected.Methods = append(unexpected.Methods, m)
	}
	return []*scene.Class{calls, predicate, sigs, unexpected}
}

func clinitSource() string {
	var sb strings.Builder
	sb.WriteString("    java.util.HashSet $r0;\n\n")
	for _, k := range trace.Kinds() {
		sb.WriteString("    $r0 = new java.util.HashSet;\n")
		sb.WriteString("    specialinvoke $r0.<java.util.HashSet: void <init>()>();\n")
		fmt.Fprintf(&sb, "    %s = $r0;\n", SetField(k).Signature())
	}
	sb.WriteString("    return;\n")
	return sb.String()
}

func knownSource(k trace.Kind) string {
	params := handleParams[k]
	var sb strings.Builder
	sb.WriteString("    int i0;\n")
	for i, p := range params {
		fmt.Fprintf(&sb, "    %s r%d;\n", p, i)
	}
	sb.WriteString("    java.util.Set $r0;\n    java.lang.String $r1;\n    boolean $z0;\n\n")
	sb.WriteString("    i0 := @parameter0: int;\n")
	handles := make([]string, len(params))
	for i, p := range params {
		fmt.Fprintf(&sb, "    r%d := @parameter%d: %s;\n", i, i+1, p)
		handles[i] = fmt.Sprintf("r%d", i)
	}
	fmt.Fprintf(&sb, "    $r0 = %s;\n", SetField(k).Signature())
	fmt.Fprintf(&sb, "    $r1 = staticinvoke %s(i0, %s);\n", KeyMethod.Signature(), handles[len(handles)-1])
	fmt.Fprintf(&sb, "    $z0 = interfaceinvoke $r0.%s($r1);\n", SetContains.Signature())
	sb.WriteString("    if $z0 != 0 goto label1;\n")
	fmt.Fprintf(&sb, "    staticinvoke %s(%s);\n", UnexpectedCall(k).Signature(), strings.Join(handles, ", "))
	sb.WriteString("  label1:\n    return;\n")
	return sb.String()
}
