package fvm

import (
	"context"
	"fmt"
	"slices"

	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/fmr"
	"github.com/evelyndooley/flipper/message"
)

// Func implements one module function. The returned value is truncated to
// the signature's return type. Returning a message.ErrorKind (or an error
// wrapping one) answers with that status; any other error answers ErrFmr.
type Func func(ctx context.Context, call *Call) (uint64, error)

// Call is one invocation as seen by a Func.
type Call struct {
	Class    message.Class
	Function fmr.Function
	Args     []codec.Value // Scalar arguments in call order

	// Bulk holds the pushed bytes for push calls.
	Bulk []byte
	// PullLen is the number of bytes a pull call must Reply with.
	PullLen int

	reply []byte
}

// Reply sets the bytes returned by a pull call. It fails with ErrBoundary
// unless len(b) is exactly PullLen.
func (c *Call) Reply(b []byte) error {
	if c.Class != message.ClassPull {
		return message.ErrSubclass
	}
	if len(b) != c.PullLen {
		return message.ErrBoundary
	}
	c.reply = b
	return nil
}

type entry struct {
	sig  fmr.Function
	impl Func
}

// Module is a named set of functions hosted by a Device.
type Module struct {
	name  string
	funcs map[uint8]entry
}

func NewModule(name string) *Module {
	return &Module{name: name, funcs: make(map[uint8]entry)}
}

func (m *Module) Name() string { return m.name }

// Func adds a function. Defining the same index twice panics, as it is a
// programming error in the module definition.
func (m *Module) Func(sig fmr.Function, impl Func) *Module {
	if _, dup := m.funcs[sig.Index]; dup {
		panic(fmt.Sprintf("fvm: %s: function index %d defined twice", m.name, sig.Index))
	}
	m.funcs[sig.Index] = entry{sig: sig, impl: impl}
	return m
}

// Descriptor returns the module's signatures ordered by index.
func (m *Module) Descriptor() fmr.Module {
	d := fmr.Module{Name: m.name}
	for _, e := range m.funcs {
		d.Functions = append(d.Functions, e.sig)
	}
	slices.SortFunc(d.Functions, func(a, b fmr.Function) int { return int(a.Index) - int(b.Index) })
	return d
}
