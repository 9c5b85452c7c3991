// Package golang emits a Go package wrapping a module in a typed facade
// over session.Module, in the form of the hand-written modules/led.
//
// Scalar functions become methods returning the typed result. Bulk
// functions become a Push and a Pull method, since the descriptor does not
// record the direction.
package golang

import (
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"io"
	"strings"

	"github.com/evelyndooley/flipper/fmr"
)

// SessionImport is the import path of the session package generated code
// depends on.
const SessionImport = "github.com/evelyndooley/flipper/session"

// ErrDuplicateMethod is returned when two functions of a module map to the
// same Go method name, as set_a and setA do.
var ErrDuplicateMethod = errors.New("golang: duplicate method name")

type Backend struct{}

var gotypes = map[fmr.Type]string{
	fmr.TypeU8:  "uint8",
	fmr.TypeI8:  "int8",
	fmr.TypeU16: "uint16",
	fmr.TypeI16: "int16",
	fmr.TypeU32: "uint32",
	fmr.TypeI32: "int32",
}

// accessors maps a return type to the codec.Value method that reads it.
var accessors = map[fmr.Type]string{
	fmr.TypeU8:  "Uint8",
	fmr.TypeI8:  "Int8",
	fmr.TypeU16: "Uint16",
	fmr.TypeI16: "Int16",
	fmr.TypeU32: "Uint32",
	fmr.TypeI32: "Int32",
}

// Exported turns a snake_case name into an exported Go identifier.
func Exported(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if r == '_' {
			upper = true
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "X"
	}
	return b.String()
}

// PackageName returns the generated package name for a module.
func PackageName(module string) string {
	name := strings.ToLower(strings.ReplaceAll(module, "_", ""))
	if name == "" || token.IsKeyword(name) {
		name += "mod"
	}
	return name
}

// methods returns the Go method names generated for fn.
func methods(fn fmr.Function) []string {
	name := Exported(fn.Name)
	if fn.Bulk() {
		return []string{"Push" + name, "Pull" + name}
	}
	return []string{name}
}

func checkMethods(m *fmr.Module) error {
	owner := make(map[string]string)
	for _, fn := range m.Functions {
		for _, name := range methods(fn) {
			if prev, ok := owner[name]; ok {
				return fmt.Errorf("%w: %s.%s and %s.%s both become %s",
					ErrDuplicateMethod, m.Name, prev, m.Name, fn.Name, name)
			}
			owner[name] = fn.Name
		}
	}
	return nil
}

func (Backend) Prologue(w io.Writer, m *fmr.Module) error {
	if err := checkMethods(m); err != nil {
		return err
	}
	typ := Exported(m.Name)
	_, err := fmt.Fprintf(w, `// Code generated by flipper generate. DO NOT EDIT.

// Package %[1]s drives the %[2]s module.
package %[1]s

import (
	"context"

	%[4]q
)

// Name is the module name.
const Name = %[2]q

// %[3]s is the host-side handle to a device's %[2]s module.
type %[3]s struct {
	m *session.Module
}

func New(s *session.Session) *%[3]s {
	return &%[3]s{m: s.Module(Name)}
}
`, PackageName(m.Name), m.Name, typ, SessionImport)
	return err
}

// EmitFunction writes the method(s) for fn.
func (Backend) EmitFunction(w io.Writer, m *fmr.Module, fn fmr.Function) error {
	typ := Exported(m.Name)
	method := Exported(fn.Name)

	var params, appends []string
	for i, t := range fn.ScalarArgs() {
		params = append(params, fmt.Sprintf("a%d %s", i, gotypes[t]))
		appends = append(appends, fmt.Sprintf(".Append(a%d)", i))
	}
	args := "nil"
	if len(appends) > 0 {
		args = "x.m.Args()" + strings.Join(appends, "")
	}

	var b strings.Builder
	if fn.Bulk() {
		ps := strings.Join(append([]string{"ctx context.Context", "buf []byte"}, params...), ", ")
		fmt.Fprintf(&b, "\n// Push%s sends buf to %s.%s.\n", method, m.Name, fn.Name)
		fmt.Fprintf(&b, "func (x *%s) Push%s(%s) error {\n", typ, method, ps)
		fmt.Fprintf(&b, "\treturn x.m.Push(ctx, %d, buf, %s)\n}\n", fn.Index, args)
		fmt.Fprintf(&b, "\n// Pull%s fills buf from %s.%s.\n", method, m.Name, fn.Name)
		fmt.Fprintf(&b, "func (x *%s) Pull%s(%s) error {\n", typ, method, ps)
		fmt.Fprintf(&b, "\treturn x.m.Pull(ctx, %d, buf, %s)\n}\n", fn.Index, args)
	} else {
		ps := strings.Join(append([]string{"ctx context.Context"}, params...), ", ")
		fmt.Fprintf(&b, "\n// %s invokes %s.%s.\n", method, m.Name, fn.Name)
		if fn.Return == fmr.TypeVoid {
			fmt.Fprintf(&b, "func (x *%s) %s(%s) error {\n", typ, method, ps)
			fmt.Fprintf(&b, "\t_, err := x.m.Invoke(ctx, %d, %s)\n\treturn err\n}\n", fn.Index, args)
		} else {
			fmt.Fprintf(&b, "func (x *%s) %s(%s) (%s, error) {\n", typ, method, ps, gotypes[fn.Return])
			fmt.Fprintf(&b, "\tv, err := x.m.Invoke(ctx, %d, %s)\n\treturn v.%s(), err\n}\n",
				fn.Index, args, accessors[fn.Return])
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Format runs gofmt over the generated package.
func (Backend) Format(src []byte) ([]byte, error) {
	out, err := format.Source(src)
	if err != nil {
		return nil, fmt.Errorf("golang: generated code does not parse: %w", err)
	}
	return out, nil
}
