// Package fvm implements the Flipper virtual machine: a device that lives in
// a host process and answers the same frames a board does.
//
// Request processing pipeline:
//
//	Accept conn → ServeConn (one goroutine per connection, one call at a time)
//	  → protocol.Decode → Codec.Decode → Middleware Chain → dispatch → Codec.Encode → write result
package fvm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/fmr"
	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/middleware"
	"github.com/evelyndooley/flipper/protocol"
	"github.com/evelyndooley/flipper/registry"
)

type Option func(*Device)

func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithAttributes sets the attribute bits reported in the configuration.
func WithAttributes(attrs byte) Option {
	return func(d *Device) { d.attrs = attrs }
}

// WithTTL sets the registry lease TTL in seconds.
func WithTTL(ttl int64) Option {
	return func(d *Device) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// Device is a virtual device hosting modules.
type Device struct {
	name    string
	attrs   byte
	ttl     int64
	logger  *zap.Logger
	modules map[string]*Module

	middlewares []middleware.Middleware // Applied in order
	handlerOnce sync.Once
	handler     middleware.HandlerFunc // middleware(middleware(...(dispatch)))

	ctx    context.Context // Canceled once Shutdown gives up waiting
	cancel context.CancelFunc

	listener      net.Listener
	wg            sync.WaitGroup // Tracks in-flight calls for graceful shutdown
	shutdown      atomic.Bool    // Set during shutdown to suppress Accept errors
	registry      registry.Registry
	advertiseAddr string // Address registered in the registry; differs from ":9000"-style listen addresses

	mu      sync.Mutex
	conns   map[io.Closer]struct{}
	serving bool // Set once a listener or connection is served; modules are frozen from then on
}

// ErrServing is returned by Register once the device has started serving.
var ErrServing = errors.New("fvm: device already serving")

// New creates a device with no modules.
func New(name string, opts ...Option) *Device {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		name:    name,
		attrs:   message.Attr64Bit | message.AttrLittleEndian,
		ttl:     10,
		logger:  zap.NewNop(),
		modules: make(map[string]*Module),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[io.Closer]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("device", name))
	return d
}

func (d *Device) Name() string { return d.name }

// Register hosts m on the device. Module names are unique per device.
// Modules must be registered before Serve, ServeListener or ServeConn; the
// module table is read without locking while serving.
func (d *Device) Register(m *Module) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serving {
		return fmt.Errorf("%w: cannot register %q", ErrServing, m.name)
	}
	if _, dup := d.modules[m.name]; dup {
		return fmt.Errorf("fvm: module %q already registered", m.name)
	}
	d.modules[m.name] = m
	return nil
}

// Use registers a middleware. Middlewares must be added before the device
// serves its first call.
func (d *Device) Use(mw middleware.Middleware) {
	d.middlewares = append(d.middlewares, mw)
}

// Configuration describes the device as sent to hosts on request.
func (d *Device) Configuration() message.Configuration {
	return message.Configuration{
		Name:       d.name,
		Identifier: fmr.Identifier(d.name),
		Version:    uint16(protocol.Version),
		Attributes: d.attrs,
	}
}

// Modules returns the descriptors of all hosted modules, ordered by name.
func (d *Device) Modules() []fmr.Module {
	out := make([]fmr.Module, 0, len(d.modules))
	for _, m := range d.modules {
		out = append(out, m.Descriptor())
	}
	slices.SortFunc(out, func(a, b fmr.Module) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Serve listens on address, registers the device and each hosted module
// under advertiseAddr when reg is non-nil, and accepts connections until
// Shutdown.
func (d *Device) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return d.ServeListener(listener, advertiseAddr, reg)
}

// ServeListener is Serve on an existing listener.
func (d *Device) ServeListener(listener net.Listener, advertiseAddr string, reg registry.Registry) error {
	d.mu.Lock()
	if d.shutdown.Load() {
		d.mu.Unlock()
		listener.Close()
		return nil
	}
	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}
	d.listener = listener
	d.advertiseAddr = advertiseAddr
	d.registry = reg
	d.serving = true
	d.mu.Unlock()

	if reg != nil {
		instance := registry.Instance{Addr: advertiseAddr, Device: d.name, Version: fmt.Sprint(protocol.Version)}
		for _, name := range d.registeredNames() {
			if err := reg.Register(d.ctx, name, instance, d.ttl); err != nil {
				listener.Close()
				return fmt.Errorf("fvm: register %s: %w", name, err)
			}
		}
	}
	d.logger.Info("serving", zap.String("address", listener.Addr().String()), zap.String("advertise", advertiseAddr))

	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown, listener.Close() makes Accept fail.
			if d.shutdown.Load() {
				return nil
			}
			return err
		}
		go d.ServeConn(conn)
	}
}

// registeredNames lists the device name followed by every module name.
func (d *Device) registeredNames() []string {
	names := []string{d.name}
	for _, m := range d.Modules() {
		names = append(names, m.Name)
	}
	return names
}

// ServeConn answers frames on conn until the peer hangs up, the stream goes
// out of sync, or the device shuts down. Calls on one connection run one at
// a time, in order. ServeConn closes conn.
func (d *Device) ServeConn(conn io.ReadWriteCloser) {
	if !d.track(conn) {
		conn.Close()
		return
	}
	defer d.untrack(conn)

	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if err != io.EOF && !d.shutdown.Load() {
				d.logger.Debug("closing connection", zap.Error(err))
			}
			return
		}
		if err := d.serveFrame(conn, header, body); err != nil {
			d.logger.Debug("closing connection", zap.Error(err))
			return
		}
	}
}

func (d *Device) serveFrame(w io.Writer, header *protocol.Header, body []byte) error {
	d.wg.Add(1)
	defer d.wg.Done()

	cdc := codec.GetCodec(codec.CodecType(header.CodecType))
	reply := &protocol.Header{CodecType: header.CodecType}

	switch header.Class {
	case message.ClassConfiguration:
		cfg := d.Configuration()
		out, err := cdc.Encode(&cfg)
		if err != nil {
			return err
		}
		reply.Class = message.ClassConfiguration
		return protocol.Encode(w, reply, out)

	case message.ClassInvoke, message.ClassPush, message.ClassPull:
		var res *message.Result
		var inv message.Invocation
		if err := cdc.Decode(body, &inv); err != nil {
			d.logger.Debug("malformed invocation", zap.Error(err))
			res = &message.Result{Status: message.ErrFmr}
		} else {
			inv.Class = header.Class
			res = d.handle()(d.ctx, &inv)
		}
		out, err := cdc.Encode(res)
		if err != nil {
			return err
		}
		reply.Class = message.ClassResult
		return protocol.Encode(w, reply, out)
	}

	return &protocol.Error{Err: protocol.ErrUnexpectedClass, Detail: header.Class.String()}
}

// Invoke runs one invocation through the middleware chain, as if it had
// arrived on a connection.
func (d *Device) Invoke(ctx context.Context, inv *message.Invocation) *message.Result {
	d.wg.Add(1)
	defer d.wg.Done()
	return d.handle()(ctx, inv)
}

// handle builds the middleware chain once, on first use.
func (d *Device) handle() middleware.HandlerFunc {
	d.handlerOnce.Do(func() {
		d.handler = middleware.Chain(d.middlewares...)(d.dispatch)
	})
	return d.handler
}

// dispatch resolves the module and function, checks the arguments against
// the signature and runs the implementation.
func (d *Device) dispatch(ctx context.Context, inv *message.Invocation) *message.Result {
	m, ok := d.modules[inv.Module]
	if !ok {
		return &message.Result{Status: message.ErrModule}
	}
	e, ok := m.funcs[inv.Function]
	if !ok {
		return &message.Result{Status: message.ErrResolution}
	}

	want := e.sig.ScalarArgs()
	if len(want) != len(inv.Types) {
		return &message.Result{Status: message.ErrType}
	}
	for i, t := range want {
		if byte(t) != inv.Types[i] {
			return &message.Result{Status: message.ErrType}
		}
	}
	args, err := codec.DecodeArgs(inv.Types, inv.Args)
	if err != nil {
		return &message.Result{Status: message.ErrBoundary}
	}

	call := &Call{Class: inv.Class, Function: e.sig, Args: args}
	switch inv.Class {
	case message.ClassInvoke:
		if e.sig.Bulk() {
			return &message.Result{Status: message.ErrSubclass}
		}
	case message.ClassPush:
		if !e.sig.Bulk() {
			return &message.Result{Status: message.ErrSubclass}
		}
		if uint32(len(inv.Bulk)) != inv.BulkLen {
			return &message.Result{Status: message.ErrBoundary}
		}
		call.Bulk = inv.Bulk
	case message.ClassPull:
		if !e.sig.Bulk() {
			return &message.Result{Status: message.ErrSubclass}
		}
		call.PullLen = int(inv.BulkLen)
	}

	value, err := d.run(ctx, e.impl, call)
	if err != nil {
		return &message.Result{Status: statusOf(err)}
	}

	res := &message.Result{Value: uint64(codec.Extend(e.sig.Return, value))}
	if inv.Class == message.ClassPull {
		if len(call.reply) != call.PullLen {
			return &message.Result{Status: message.ErrBoundary}
		}
		res.Bulk = call.reply
	}
	return res
}

// run calls impl, turning a panic into an error so one faulty function
// cannot take the device down.
func (d *Device) run(ctx context.Context, impl Func, call *Call) (value uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("function panicked",
				zap.String("function", call.Function.Name),
				zap.Any("panic", r))
			err = message.ErrFmr
		}
	}()
	return impl(ctx, call)
}

func statusOf(err error) message.ErrorKind {
	var kind message.ErrorKind
	if errors.As(err, &kind) && kind != message.OK {
		return kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return message.ErrTimeout
	}
	return message.ErrFmr
}

func (d *Device) track(c io.Closer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown.Load() {
		return false
	}
	d.serving = true
	d.conns[c] = struct{}{}
	return true
}

func (d *Device) untrack(c io.Closer) {
	d.mu.Lock()
	delete(d.conns, c)
	d.mu.Unlock()
	c.Close()
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (hosts stop routing here)
//  2. Set the shutdown flag (so the Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight calls to finish (with timeout)
//  5. Close every open connection
func (d *Device) Shutdown(timeout time.Duration) error {
	d.mu.Lock()
	reg, addr := d.registry, d.advertiseAddr
	d.mu.Unlock()
	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		for _, name := range d.registeredNames() {
			if err := reg.Deregister(ctx, name, addr); err != nil {
				d.logger.Warn("deregister failed", zap.String("name", name), zap.Error(err))
			}
		}
		cancel()
	}

	// Set the flag BEFORE closing the listener, or Serve would see a real error.
	d.mu.Lock()
	d.shutdown.Store(true)
	listener := d.listener
	d.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("fvm: timeout waiting for ongoing calls to finish")
	}
	d.cancel()

	d.mu.Lock()
	for c := range d.conns {
		c.Close()
	}
	d.mu.Unlock()
	return err
}
