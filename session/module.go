package session

import (
	"context"

	"github.com/evelyndooley/flipper/codec"
)

// Module binds a session to one module name. Generated bindings and the
// built-in facades call through it.
type Module struct {
	name string
	s    *Session
}

func (s *Session) Module(name string) *Module {
	return &Module{name: name, s: s}
}

func (m *Module) Name() string { return m.name }

// Args starts an argument list sized for the owning session.
func (m *Module) Args() *codec.Args { return m.s.NewArgs() }

func (m *Module) Invoke(ctx context.Context, fn uint8, args *codec.Args) (codec.Value, error) {
	return m.s.Invoke(ctx, m.name, fn, args)
}

func (m *Module) Push(ctx context.Context, fn uint8, buf []byte, args *codec.Args) error {
	return m.s.Push(ctx, m.name, fn, buf, args)
}

func (m *Module) Pull(ctx context.Context, fn uint8, buf []byte, args *codec.Args) error {
	return m.s.Pull(ctx, m.name, fn, buf, args)
}
