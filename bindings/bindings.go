// Package bindings generates source code that exposes a module's functions
// as ordinary callables in a target language.
//
// The generator owns iteration order; a Backend owns the text. Backends
// that need a header or footer per module also implement Prologue or
// Epilogue, and backends whose output must be rewritten as a whole (gofmt)
// implement Formatter.
package bindings

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/evelyndooley/flipper/bindings/c"
	"github.com/evelyndooley/flipper/bindings/golang"
	"github.com/evelyndooley/flipper/fmr"
)

// Backend emits the binding for one function.
type Backend interface {
	EmitFunction(w io.Writer, m *fmr.Module, fn fmr.Function) error
}

type Prologue interface {
	Prologue(w io.Writer, m *fmr.Module) error
}

type Epilogue interface {
	Epilogue(w io.Writer, m *fmr.Module) error
}

// Formatter rewrites the complete output of a module before it is written.
type Formatter interface {
	Format(src []byte) ([]byte, error)
}

// Generate writes the binding for m to w. Every function is emitted exactly
// once, in descriptor order. Backend errors are returned unmodified.
func Generate(m *fmr.Module, b Backend, w io.Writer) error {
	f, buffered := b.(Formatter)
	out := w
	var buf bytes.Buffer
	if buffered {
		out = &buf
	}

	if p, ok := b.(Prologue); ok {
		if err := p.Prologue(out, m); err != nil {
			return err
		}
	}
	for _, fn := range m.Functions {
		if err := b.EmitFunction(out, m, fn); err != nil {
			return err
		}
	}
	if e, ok := b.(Epilogue); ok {
		if err := e.Epilogue(out, m); err != nil {
			return err
		}
	}

	if !buffered {
		return nil
	}
	src, err := f.Format(buf.Bytes())
	if err != nil {
		return err
	}
	_, err = w.Write(src)
	return err
}

type language struct {
	ext string
	new func() Backend
}

var languages = map[string]language{
	"c":  {ext: ".c", new: func() Backend { return c.Backend{} }},
	"go": {ext: ".go", new: func() Backend { return golang.Backend{} }},
}

// Languages lists the supported language names.
func Languages() []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the backend for lang ("c" or "go").
func Lookup(lang string) (Backend, error) {
	l, ok := languages[lang]
	if !ok {
		return nil, fmt.Errorf("bindings: unknown language %q (have %v)", lang, Languages())
	}
	return l.new(), nil
}

// FileName names the output file for module in lang.
func FileName(module, lang string) string {
	return module + languages[lang].ext
}
