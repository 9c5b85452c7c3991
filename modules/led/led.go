// Package led drives the on-board RGB LED.
package led

import (
	"context"

	"github.com/evelyndooley/flipper/fmr"
	"github.com/evelyndooley/flipper/session"
)

// Name is the module name devices register the LED under.
const Name = "led"

// Function indices.
const (
	FuncRGB       uint8 = 0
	FuncConfigure uint8 = 1
)

var (
	sigRGB       = fmr.Function{Name: "rgb", Index: FuncRGB, Args: []fmr.Type{fmr.TypeU8, fmr.TypeU8, fmr.TypeU8}}
	sigConfigure = fmr.Function{Name: "configure", Index: FuncConfigure, Return: fmr.TypeI32}
)

// Descriptor returns the module's signatures.
func Descriptor() fmr.Module {
	return fmr.Module{Name: Name, Functions: []fmr.Function{sigRGB, sigConfigure}}
}

// Led is the host-side handle to a device's LED.
type Led struct {
	m *session.Module
}

func New(s *session.Session) *Led {
	return &Led{m: s.Module(Name)}
}

// RGB sets the LED colour.
func (l *Led) RGB(ctx context.Context, r, g, b uint8) error {
	_, err := l.m.Invoke(ctx, FuncRGB, l.m.Args().Append(r).Append(g).Append(b))
	return err
}

// Configure initializes the LED driver and returns its status code.
func (l *Led) Configure(ctx context.Context) (int32, error) {
	v, err := l.m.Invoke(ctx, FuncConfigure, nil)
	return v.Int32(), err
}
