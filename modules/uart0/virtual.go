package uart0

import (
	"bytes"
	"context"
	"sync"

	"github.com/evelyndooley/flipper/fvm"
	"github.com/evelyndooley/flipper/message"
)

// Loopback is a virtual port whose transmit line is wired to its receive
// line: bytes written come back on read.
type Loopback struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	baud       Baud
	interrupts bool
}

// Settings returns the last configuration.
func (l *Loopback) Settings() (Baud, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baud, l.interrupts
}

// Virtual returns an fvm module backed by port.
func Virtual(port *Loopback) *fvm.Module {
	return fvm.NewModule(Name).
		Func(sigConfigure, func(ctx context.Context, c *fvm.Call) (uint64, error) {
			baud := Baud(c.Args[0].Uint8())
			if baud != BaudFMR && baud != BaudDFU {
				return 0, message.ErrConfiguration
			}
			port.mu.Lock()
			port.baud, port.interrupts = baud, c.Args[1].Bool()
			port.mu.Unlock()
			return 0, nil
		}).
		Func(sigReady, func(ctx context.Context, c *fvm.Call) (uint64, error) {
			port.mu.Lock()
			defer port.mu.Unlock()
			if port.buf.Len() > 0 {
				return 1, nil
			}
			return 0, nil
		}).
		Func(sigWrite, func(ctx context.Context, c *fvm.Call) (uint64, error) {
			port.mu.Lock()
			port.buf.Write(c.Bulk)
			port.mu.Unlock()
			return 0, nil
		}).
		Func(sigRead, func(ctx context.Context, c *fvm.Call) (uint64, error) {
			port.mu.Lock()
			defer port.mu.Unlock()
			if port.buf.Len() < c.PullLen {
				return 0, message.ErrBoundary
			}
			return 0, c.Reply(bytes.Clone(port.buf.Next(c.PullLen)))
		})
}
