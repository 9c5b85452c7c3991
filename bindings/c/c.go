// Package c emits C bindings that forward each module function to
// libflipper's lf_invoke, lf_push and lf_pull.
//
// Bulk functions cannot tell from their descriptor which way data flows, so
// each gets a _push and a _pull wrapper. The interface table points bulk
// entries at the _push wrapper.
package c

import (
	"fmt"
	"io"
	"strings"

	"github.com/evelyndooley/flipper/fmr"
)

// Backend implements the C language backend.
type Backend struct{}

var ctypes = map[fmr.Type]string{
	fmr.TypeVoid: "void",
	fmr.TypeU8:   "uint8_t",
	fmr.TypeI8:   "int8_t",
	fmr.TypeU16:  "uint16_t",
	fmr.TypeI16:  "int16_t",
	fmr.TypeU32:  "uint32_t",
	fmr.TypeI32:  "int32_t",
}

func lfType(t fmr.Type) string {
	if t == fmr.TypeVoid {
		return "lf_void_t"
	}
	return "lf_" + ctypes[t]
}

func symbol(m *fmr.Module, fn fmr.Function) string {
	return m.Name + "_" + fn.Name
}

func enumerator(m *fmr.Module, fn fmr.Function) string {
	return "_" + symbol(m, fn)
}

// params renders the parameter list. Bulk functions take the buffer first.
func params(fn fmr.Function, buffer string) string {
	var ps []string
	if fn.Bulk() {
		ps = append(ps, buffer, "uint32_t length")
	}
	for i, t := range fn.ScalarArgs() {
		ps = append(ps, fmt.Sprintf("%s a%d", ctypes[t], i))
	}
	if len(ps) == 0 {
		return "void"
	}
	return strings.Join(ps, ", ")
}

func args(fn fmr.Function) string {
	scalars := fn.ScalarArgs()
	if len(scalars) == 0 {
		return "NULL"
	}
	infer := make([]string, len(scalars))
	for i := range scalars {
		infer[i] = fmt.Sprintf("lf_infer(a%d)", i)
	}
	return "lf_args(" + strings.Join(infer, ", ") + ")"
}

type prototype struct {
	ret, name, params string
}

func prototypes(m *fmr.Module, fn fmr.Function) []prototype {
	if fn.Bulk() {
		return []prototype{
			{"int", symbol(m, fn) + "_push", params(fn, "const void *src")},
			{"int", symbol(m, fn) + "_pull", params(fn, "void *dst")},
		}
	}
	return []prototype{{ctypes[fn.Return], symbol(m, fn), params(fn, "")}}
}

func (Backend) Prologue(w io.Writer, m *fmr.Module) error {
	var b strings.Builder
	fmt.Fprintf(&b, "/* Bindings for the %s module. Generated by flipper; do not edit. */\n\n", m.Name)
	b.WriteString("#include <flipper.h>\n\n")

	b.WriteString("enum {\n")
	for _, fn := range m.Functions {
		fmt.Fprintf(&b, "\t%s = %d,\n", enumerator(m, fn), fn.Index)
	}
	b.WriteString("};\n\n")

	for _, fn := range m.Functions {
		for _, p := range prototypes(m, fn) {
			fmt.Fprintf(&b, "%s %s(%s);\n", p.ret, p.name, p.params)
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "void *%s_interface[] = {\n", m.Name)
	for _, fn := range m.Functions {
		fmt.Fprintf(&b, "\t[%s] = &%s,\n", enumerator(m, fn), prototypes(m, fn)[0].name)
	}
	b.WriteString("};\n\n")

	fmt.Fprintf(&b, "LF_MODULE(%s, %q, %s_interface);\n", m.Name, m.Name, m.Name)
	_, err := io.WriteString(w, b.String())
	return err
}

// EmitFunction writes the LF_WEAK wrapper(s) for fn.
func (Backend) EmitFunction(w io.Writer, m *fmr.Module, fn fmr.Function) error {
	var b strings.Builder
	ps := prototypes(m, fn)
	if fn.Bulk() {
		fmt.Fprintf(&b, "\nLF_WEAK %s %s(%s) {\n", ps[0].ret, ps[0].name, ps[0].params)
		fmt.Fprintf(&b, "\treturn lf_push(lf_get_current_device(), %q, %s, src, length, %s);\n}\n",
			m.Name, enumerator(m, fn), args(fn))
		fmt.Fprintf(&b, "\nLF_WEAK %s %s(%s) {\n", ps[1].ret, ps[1].name, ps[1].params)
		fmt.Fprintf(&b, "\treturn lf_pull(lf_get_current_device(), %q, %s, dst, length, %s);\n}\n",
			m.Name, enumerator(m, fn), args(fn))
	} else {
		p := ps[0]
		ret := "return "
		if fn.Return == fmr.TypeVoid {
			ret = ""
		}
		fmt.Fprintf(&b, "\nLF_WEAK %s %s(%s) {\n", p.ret, p.name, p.params)
		fmt.Fprintf(&b, "\t%slf_invoke(lf_get_current_device(), %q, %s, %s, %s);\n}\n",
			ret, m.Name, enumerator(m, fn), lfType(fn.Return), args(fn))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
