// Package attach opens sessions to devices: by registry lookup, by host
// name, or in-process against a virtual device.
package attach

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/evelyndooley/flipper/fvm"
	"github.com/evelyndooley/flipper/loadbalance"
	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/registry"
	"github.com/evelyndooley/flipper/session"
	"github.com/evelyndooley/flipper/transport"
)

const (
	DefaultAddress = "localhost"
	DefaultPort    = "4000"
)

// Error reports a failed attach and the device it was for.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("attach %s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Attacher resolves device names and opens sessions to them.
//
// With a Registry set, a name is first looked up there and the Balancer
// picks among the instances. Names the registry does not know are dialed
// directly, with DefaultPort added when the name carries no port.
type Attacher struct {
	Dialer   transport.Dialer
	Registry registry.Registry
	Balancer loadbalance.Balancer

	DefaultAddress string
	DefaultPort    string

	Session []session.Option
	Logger  *zap.Logger
}

// Attach opens a session to the default device.
func (a *Attacher) Attach(ctx context.Context) (*session.Session, error) {
	addr := a.DefaultAddress
	if addr == "" {
		addr = DefaultAddress
	}
	return a.AttachHostname(ctx, addr)
}

// AttachHostname opens a session to the named device and loads its
// configuration to confirm it answers.
func (a *Attacher) AttachHostname(ctx context.Context, name string) (*session.Session, error) {
	addr, err := a.resolve(ctx, name)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}

	h, err := a.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Name: name, Err: fmt.Errorf("%w: %w", message.ErrNoDevice, err)}
	}

	s := session.New(h, a.sessionOptions()...)
	cfg, err := s.Configuration(ctx)
	if err != nil {
		s.Close()
		return nil, &Error{Name: name, Err: err}
	}
	a.logger().Debug("attached",
		zap.String("name", name),
		zap.String("address", addr),
		zap.String("device", cfg.Name),
		zap.Uint32("identifier", cfg.Identifier))
	return s, nil
}

// resolve maps a device or module name to a dial address.
func (a *Attacher) resolve(ctx context.Context, name string) (string, error) {
	if a.Registry != nil {
		instances, err := a.Registry.Discover(ctx, name)
		if err != nil {
			return "", err
		}
		if len(instances) > 0 {
			inst, err := pick(a.balancer(), name, instances)
			if err != nil {
				return "", err
			}
			return inst.Addr, nil
		}
	}

	if _, _, err := net.SplitHostPort(name); err == nil {
		return name, nil
	}
	port := a.DefaultPort
	if port == "" {
		port = DefaultPort
	}
	return net.JoinHostPort(name, port), nil
}

func pick(b loadbalance.Balancer, key string, instances []registry.Instance) (*registry.Instance, error) {
	if kb, ok := b.(loadbalance.KeyedBalancer); ok {
		return kb.PickKey(key, instances)
	}
	return b.Pick(instances)
}

func (a *Attacher) balancer() loadbalance.Balancer {
	if a.Balancer == nil {
		return &loadbalance.RoundRobinBalancer{}
	}
	return a.Balancer
}

func (a *Attacher) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *Attacher) sessionOptions() []session.Option {
	opts := make([]session.Option, 0, len(a.Session)+1)
	opts = append(opts, session.WithLogger(a.logger()))
	return append(opts, a.Session...)
}

var defaultAttacher = &Attacher{Dialer: transport.Dialer{Timeout: 5 * time.Second}}

// Attach opens a session to the device at DefaultAddress:DefaultPort.
func Attach(ctx context.Context) (*session.Session, error) {
	return defaultAttacher.Attach(ctx)
}

// AttachHostname opens a session to name, dialing DefaultPort when name
// carries no port.
func AttachHostname(ctx context.Context, name string) (*session.Session, error) {
	return defaultAttacher.AttachHostname(ctx, name)
}

// Virtual connects to dev in-process. The device serves the connection
// until the session is closed.
func Virtual(dev *fvm.Device, opts ...session.Option) *session.Session {
	host, device := net.Pipe()
	go dev.ServeConn(device)
	return session.New(transport.NewHandle(dev.Name(), host), opts...)
}
