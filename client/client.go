// Package client calls device modules by name. It discovers which devices
// host a module through a registry, picks one with a balancer and keeps a
// pool of sessions per device address.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/loadbalance"
	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/registry"
	"github.com/evelyndooley/flipper/session"
	"github.com/evelyndooley/flipper/transport"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("client: closed")

type Option func(*Client)

// WithPoolSize bounds the sessions kept open to each device.
func WithPoolSize(n int) Option {
	return func(c *Client) { c.poolSize = n }
}

func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithCodec selects the body encoding of every session.
func WithCodec(ct codec.CodecType) Option {
	return func(c *Client) { c.codecType = ct }
}

func WithMaxArgsSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxArgs = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

type Client struct {
	registry  registry.Registry    // Finds devices hosting a module
	balancer  loadbalance.Balancer // Picks one of them
	dialer    transport.Dialer
	codecType codec.CodecType
	maxArgs   int
	poolSize  int
	logger    *zap.Logger

	ctx    context.Context // Scopes registry watches; canceled by Close
	cancel context.CancelFunc

	mu      sync.Mutex
	pools   map[string]*transport.Pool[*session.Session] // Keyed by device address
	watched map[string]map[string]bool                   // Module name to the addresses hosting it
	closed  bool
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	c := &Client{
		registry:  reg,
		balancer:  bal,
		codecType: codec.CodecTypeBinary,
		maxArgs:   codec.DefaultMaxArgsSize,
		poolSize:  4,
		logger:    zap.NewNop(),
		pools:     make(map[string]*transport.Pool[*session.Session]),
		watched:   make(map[string]map[string]bool),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(c)
	}
	if c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}
	return c
}

// NewArgs starts an argument list sized for this client's sessions.
func (c *Client) NewArgs() *codec.Args {
	return codec.NewArgs(codec.WithMaxSize(c.maxArgs))
}

// Invoke calls fn of module on a device that hosts it.
func (c *Client) Invoke(ctx context.Context, module string, fn uint8, args *codec.Args) (codec.Value, error) {
	var v codec.Value
	err := c.do(ctx, module, func(s *session.Session) error {
		var err error
		v, err = s.Invoke(ctx, module, fn, args)
		return err
	})
	return v, err
}

// Push sends buf to fn of module on a device that hosts it.
func (c *Client) Push(ctx context.Context, module string, fn uint8, buf []byte, args *codec.Args) error {
	return c.do(ctx, module, func(s *session.Session) error {
		return s.Push(ctx, module, fn, buf, args)
	})
}

// Pull fills buf from fn of module on a device that hosts it.
func (c *Client) Pull(ctx context.Context, module string, fn uint8, buf []byte, args *codec.Args) error {
	return c.do(ctx, module, func(s *session.Session) error {
		return s.Pull(ctx, module, fn, buf, args)
	})
}

// Close closes every pooled session. Sessions in use are closed when their
// call returns.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	c.closed = true
	pools := c.pools
	c.pools = make(map[string]*transport.Pool[*session.Session])
	c.mu.Unlock()

	var errs []error
	for _, p := range pools {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// do runs call on a pooled session to a device hosting module.
func (c *Client) do(ctx context.Context, module string, call func(*session.Session) error) error {
	// Get device instances from registry
	instances, err := c.registry.Discover(ctx, module)
	if err != nil {
		return fmt.Errorf("client: discover %s: %w", module, err)
	}
	c.watch(module, instances)

	// Select an instance using load balancer; the module name keys stateful strategies
	instance, err := c.pick(module, instances)
	if err != nil {
		if errors.Is(err, loadbalance.ErrNoInstances) {
			return fmt.Errorf("client: %s: %w: %w", module, message.ErrNoDevice, err)
		}
		return fmt.Errorf("client: %s: %w", module, err)
	}

	pool, err := c.pool(instance.Addr)
	if err != nil {
		return err
	}
	s, err := pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("client: %s at %s: %w", module, instance.Addr, err)
	}
	// Broken sessions are discarded by Put
	defer pool.Put(s)

	return call(s)
}

func (c *Client) pick(module string, instances []registry.Instance) (*registry.Instance, error) {
	if kb, ok := c.balancer.(loadbalance.KeyedBalancer); ok {
		return kb.PickKey(module, instances)
	}
	return c.balancer.Pick(instances)
}

// pool returns the session pool for addr, creating it on first use.
func (c *Client) pool(addr string) (*transport.Pool[*session.Session], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if p, ok := c.pools[addr]; ok {
		return p, nil
	}

	p := transport.NewPool(c.poolSize, func(ctx context.Context) (*session.Session, error) {
		h, err := c.dialer.Dial(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("session opened", zap.String("address", addr))
		return session.New(h,
			session.WithCodec(c.codecType),
			session.WithMaxArgsSize(c.maxArgs),
			session.WithLogger(c.logger),
		), nil
	})
	c.pools[addr] = p
	return p, nil
}

// watch follows registry updates for module, so sessions to devices that
// leave the registry are closed.
func (c *Client) watch(module string, instances []registry.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.watched[module] != nil {
		return
	}
	c.watched[module] = addrSet(instances)

	updates := c.registry.Watch(c.ctx, module)
	if updates == nil {
		return
	}
	go func() {
		for instances := range updates {
			c.update(module, instances)
		}
	}()
}

// update records the addresses now hosting module and closes the pools of
// addresses that no watched module lists anymore.
func (c *Client) update(module string, instances []registry.Instance) {
	c.mu.Lock()
	c.watched[module] = addrSet(instances)
	var stale []*transport.Pool[*session.Session]
	for addr, p := range c.pools {
		if !c.hosted(addr) {
			stale = append(stale, p)
			delete(c.pools, addr)
			c.logger.Debug("device left registry", zap.String("address", addr))
		}
	}
	c.mu.Unlock()

	for _, p := range stale {
		p.Close()
	}
}

func (c *Client) hosted(addr string) bool {
	for _, addrs := range c.watched {
		if addrs[addr] {
			return true
		}
	}
	return false
}

func addrSet(instances []registry.Instance) map[string]bool {
	set := make(map[string]bool, len(instances))
	for _, in := range instances {
		set[in.Addr] = true
	}
	return set
}

// Sessions returns the number of live sessions to addr.
func (c *Client) Sessions(addr string) int {
	c.mu.Lock()
	p, ok := c.pools[addr]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	return p.Len()
}
