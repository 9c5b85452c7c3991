package led

import (
	"context"
	"sync"

	"github.com/evelyndooley/flipper/fvm"
)

// State is the colour held by a virtual LED.
type State struct {
	mu         sync.Mutex
	r, g, b    uint8
	configured bool
}

// Color returns the current colour.
func (s *State) Color() (r, g, b uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r, s.g, s.b
}

func (s *State) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

// Virtual returns an fvm module backed by state.
func Virtual(state *State) *fvm.Module {
	return fvm.NewModule(Name).
		Func(sigRGB, func(ctx context.Context, c *fvm.Call) (uint64, error) {
			state.mu.Lock()
			state.r, state.g, state.b = c.Args[0].Uint8(), c.Args[1].Uint8(), c.Args[2].Uint8()
			state.mu.Unlock()
			return 0, nil
		}).
		Func(sigConfigure, func(ctx context.Context, c *fvm.Call) (uint64, error) {
			state.mu.Lock()
			state.configured = true
			state.mu.Unlock()
			return 0, nil
		})
}
