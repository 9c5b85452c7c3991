// Package uart0 drives the device's first serial port.
package uart0

import (
	"context"

	"github.com/evelyndooley/flipper/fmr"
	"github.com/evelyndooley/flipper/session"
)

// Name is the module name devices register the port under.
const Name = "uart0"

// Function indices.
const (
	FuncConfigure uint8 = 0
	FuncReady     uint8 = 1
	FuncWrite     uint8 = 2
	FuncRead      uint8 = 3
)

// Baud selects a line rate preset.
type Baud uint8

const (
	BaudFMR Baud = 0x00 // Rate used for message runtime traffic
	BaudDFU Baud = 0x10 // Rate used by the bootloader
)

var (
	sigConfigure = fmr.Function{Name: "configure", Index: FuncConfigure, Args: []fmr.Type{fmr.TypeU8, fmr.TypeU8}}
	sigReady     = fmr.Function{Name: "ready", Index: FuncReady, Return: fmr.TypeU8}
	sigWrite     = fmr.Function{Name: "write", Index: FuncWrite, Args: []fmr.Type{fmr.TypeBytes}}
	sigRead      = fmr.Function{Name: "read", Index: FuncRead, Args: []fmr.Type{fmr.TypeBytes}}
)

func Descriptor() fmr.Module {
	return fmr.Module{Name: Name, Functions: []fmr.Function{sigConfigure, sigReady, sigWrite, sigRead}}
}

// Uart0 is the host-side handle to a device's uart0.
type Uart0 struct {
	m *session.Module
}

func New(s *session.Session) *Uart0 {
	return &Uart0{m: s.Module(Name)}
}

// Configure sets the baud preset and enables or disables interrupts.
func (u *Uart0) Configure(ctx context.Context, baud Baud, interrupts bool) error {
	_, err := u.m.Invoke(ctx, FuncConfigure, u.m.Args().Append(uint8(baud)).Append(interrupts))
	return err
}

// Ready reports whether received bytes are waiting to be read.
func (u *Uart0) Ready(ctx context.Context) (bool, error) {
	v, err := u.m.Invoke(ctx, FuncReady, nil)
	return v.Bool(), err
}

// Write sends buf out of the port.
func (u *Uart0) Write(ctx context.Context, buf []byte) error {
	return u.m.Push(ctx, FuncWrite, buf, nil)
}

// Read fills buf from the port. The device must have len(buf) bytes ready.
func (u *Uart0) Read(ctx context.Context, buf []byte) error {
	return u.m.Pull(ctx, FuncRead, buf, nil)
}
