package bindings

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"strings"
	"testing"

	"github.com/evelyndooley/flipper/bindings/golang"
	"github.com/evelyndooley/flipper/fmr"
	"github.com/evelyndooley/flipper/modules/led"
	"github.com/evelyndooley/flipper/modules/uart0"
)

// recorder counts calls and records the order functions were emitted in.
type recorder struct {
	pro, epi int
	emitted  []uint8
	failAt   int
	err      error
}

func (r *recorder) Prologue(w io.Writer, m *fmr.Module) error {
	r.pro++
	_, err := io.WriteString(w, "begin\n")
	return err
}

func (r *recorder) Epilogue(w io.Writer, m *fmr.Module) error {
	r.epi++
	_, err := io.WriteString(w, "end\n")
	return err
}

func (r *recorder) EmitFunction(w io.Writer, m *fmr.Module, fn fmr.Function) error {
	if r.err != nil && len(r.emitted) == r.failAt {
		return r.err
	}
	r.emitted = append(r.emitted, fn.Index)
	_, err := fmt.Fprintf(w, "%s\n", fn.Name)
	return err
}

func sample() *fmr.Module {
	return &fmr.Module{Name: "gpio", Functions: []fmr.Function{
		{Name: "configure", Index: 0},
		{Name: "write", Index: 2, Args: []fmr.Type{fmr.TypeU32, fmr.TypeU32}},
		{Name: "read", Index: 1, Args: []fmr.Type{fmr.TypeU32}, Return: fmr.TypeU32},
	}}
}

func TestGenerateEmitsEachFunctionOnceInOrder(t *testing.T) {
	r := &recorder{}
	var out bytes.Buffer
	if err := Generate(sample(), r, &out); err != nil {
		t.Fatal(err)
	}
	if r.pro != 1 || r.epi != 1 {
		t.Fatalf("expect one prologue and epilogue, got %d and %d", r.pro, r.epi)
	}
	want := []uint8{0, 2, 1}
	if fmt.Sprint(r.emitted) != fmt.Sprint(want) {
		t.Fatalf("expect descriptor order %v, got %v", want, r.emitted)
	}
	if out.String() != "begin\nconfigure\nwrite\nread\nend\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestGeneratePropagatesBackendError(t *testing.T) {
	boom := errors.New("disk full")
	r := &recorder{failAt: 1, err: boom}
	err := Generate(sample(), r, io.Discard)
	if err != boom {
		t.Fatalf("expect backend error unmodified, got %v", err)
	}
	if r.epi != 0 {
		t.Fatal("epilogue should not run after a failure")
	}
}

type upper struct{ recorder }

func (upper) Format(src []byte) ([]byte, error) { return bytes.ToUpper(src), nil }

func TestGenerateFormatsBufferedOutput(t *testing.T) {
	var out bytes.Buffer
	if err := Generate(sample(), &upper{}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "BEGIN\nCONFIGURE") {
		t.Fatalf("expect formatted output, got %q", out.String())
	}
}

func TestLookup(t *testing.T) {
	for _, lang := range []string{"c", "go"} {
		if _, err := Lookup(lang); err != nil {
			t.Fatalf("Lookup(%q) failed: %v", lang, err)
		}
	}
	if _, err := Lookup("rust"); err == nil {
		t.Fatal("expect error for unknown language")
	}
	if FileName("led", "c") != "led.c" || FileName("led", "go") != "led.go" {
		t.Fatalf("unexpected file names %q %q", FileName("led", "c"), FileName("led", "go"))
	}
}

func TestCBackend(t *testing.T) {
	b, _ := Lookup("c")
	m := led.Descriptor()
	var out bytes.Buffer
	if err := Generate(&m, b, &out); err != nil {
		t.Fatal(err)
	}
	src := out.String()
	for _, want := range []string{
		"#include <flipper.h>",
		"_led_rgb = 0,",
		"_led_configure = 1,",
		"void led_rgb(uint8_t a0, uint8_t a1, uint8_t a2);",
		"int32_t led_configure(void);",
		"[_led_configure] = &led_configure,",
		`LF_MODULE(led, "led", led_interface);`,
		`lf_invoke(lf_get_current_device(), "led", _led_rgb, lf_void_t, lf_args(lf_infer(a0), lf_infer(a1), lf_infer(a2)));`,
		`return lf_invoke(lf_get_current_device(), "led", _led_configure, lf_int32_t, NULL);`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q in\n%s", want, src)
		}
	}
}

func TestCBackendBulk(t *testing.T) {
	b, _ := Lookup("c")
	m := uart0.Descriptor()
	var out bytes.Buffer
	if err := Generate(&m, b, &out); err != nil {
		t.Fatal(err)
	}
	src := out.String()
	for _, want := range []string{
		"int uart0_write_push(const void *src, uint32_t length);",
		"int uart0_read_pull(void *dst, uint32_t length);",
		`return lf_push(lf_get_current_device(), "uart0", _uart0_write, src, length, NULL);`,
		`return lf_pull(lf_get_current_device(), "uart0", _uart0_read, dst, length, NULL);`,
	} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q in\n%s", want, src)
		}
	}
}

func TestGoBackend(t *testing.T) {
	b, _ := Lookup("go")
	m := uart0.Descriptor()
	var out bytes.Buffer
	if err := Generate(&m, b, &out); err != nil {
		t.Fatal(err)
	}

	f, err := parser.ParseFile(token.NewFileSet(), "uart0.go", out.Bytes(), 0)
	if err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, out.String())
	}
	if f.Name.Name != "uart0" {
		t.Fatalf("expect package uart0, got %s", f.Name.Name)
	}

	methods := make(map[string]bool)
	for _, d := range f.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Recv != nil {
			methods[fd.Name.Name] = true
		}
	}
	for _, want := range []string{"Configure", "Ready", "PushWrite", "PullWrite", "PushRead", "PullRead"} {
		if !methods[want] {
			t.Errorf("missing method %s; have %v", want, methods)
		}
	}
	if !strings.Contains(out.String(), "return v.Uint8(), err") {
		t.Errorf("ready should return its u8 value:\n%s", out.String())
	}
}

func TestGoBackendNames(t *testing.T) {
	b, _ := Lookup("go")
	m := &fmr.Module{Name: "type", Functions: []fmr.Function{
		{Name: "set_direction", Index: 0, Args: []fmr.Type{fmr.TypeI16}},
	}}
	var out bytes.Buffer
	if err := Generate(m, b, &out); err != nil {
		t.Fatal(err)
	}
	src := out.String()
	if !strings.Contains(src, "package typemod") {
		t.Errorf("keyword module names need a package suffix:\n%s", src)
	}
	if !strings.Contains(src, "func (x *Type) SetDirection(ctx context.Context, a0 int16) error") {
		t.Errorf("unexpected method signature:\n%s", src)
	}
}

func TestGoBackendDuplicateMethod(t *testing.T) {
	b, _ := Lookup("go")
	cases := map[string][]fmr.Function{
		"case folding": {
			{Name: "set_a", Index: 0},
			{Name: "setA", Index: 1},
		},
		"bulk prefix": {
			{Name: "write", Index: 0, Args: []fmr.Type{fmr.TypeBytes}},
			{Name: "push_write", Index: 1},
		},
	}
	for name, fns := range cases {
		t.Run(name, func(t *testing.T) {
			m := &fmr.Module{Name: "gpio", Functions: fns}
			var out bytes.Buffer
			err := Generate(m, b, &out)
			if !errors.Is(err, golang.ErrDuplicateMethod) {
				t.Fatalf("expect ErrDuplicateMethod, got %v", err)
			}
			if out.Len() != 0 {
				t.Fatalf("nothing should be written on error, got:\n%s", out.String())
			}
		})
	}
}
