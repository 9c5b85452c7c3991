package registry

import (
	"context"
	"slices"
	"sync"
)

// MemoryRegistry is an in-process Registry. TTLs are ignored.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string][]Instance
	watchers  map[string][]chan []Instance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string][]Instance),
		watchers:  make(map[string][]chan []Instance),
	}
}

// Register adds instance under name, replacing any instance at the same address.
func (m *MemoryRegistry) Register(ctx context.Context, name string, instance Instance, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := slices.DeleteFunc(m.instances[name], func(in Instance) bool { return in.Addr == instance.Addr })
	m.instances[name] = append(list, instance)
	m.notify(name)
	return nil
}

func (m *MemoryRegistry) Deregister(ctx context.Context, name string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[name] = slices.DeleteFunc(m.instances[name], func(in Instance) bool { return in.Addr == addr })
	if len(m.instances[name]) == 0 {
		delete(m.instances, name)
	}
	m.notify(name)
	return nil
}

func (m *MemoryRegistry) Discover(ctx context.Context, name string) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.instances[name]), nil
}

// Watch emits the instance list for name after every change until ctx is
// done. A watcher that falls behind only sees the latest list.
func (m *MemoryRegistry) Watch(ctx context.Context, name string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	m.mu.Lock()
	m.watchers[name] = append(m.watchers[name], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.watchers[name] = slices.DeleteFunc(m.watchers[name], func(c chan []Instance) bool { return c == ch })
		close(ch)
	}()
	return ch
}

// notify must be called with m.mu held.
func (m *MemoryRegistry) notify(name string) {
	for _, ch := range m.watchers[name] {
		// Drop a stale pending update so the send never blocks.
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(m.instances[name])
	}
}
