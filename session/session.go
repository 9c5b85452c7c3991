// Package session implements remote invocation against an attached device.
//
// A Session owns one transport.Handle. Calls are synchronous and serialized:
// each one sends a frame and waits for the device's result before the next
// may start.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/protocol"
	"github.com/evelyndooley/flipper/transport"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("session: closed")

type Option func(*Session)

// WithCodec selects the body encoding. Devices speak binary; JSON is for
// debugging against a virtual device.
func WithCodec(ct codec.CodecType) Option {
	return func(s *Session) { s.codec = codec.GetCodec(ct) }
}

// WithMaxArgsSize bounds the argument buffers built by NewArgs.
func WithMaxArgsSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxArgs = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session is a device session.
type Session struct {
	handle  *transport.Handle
	codec   codec.Codec
	maxArgs int
	logger  *zap.Logger

	mu     sync.Mutex // One call in flight
	closed atomic.Bool
}

// New takes ownership of h. Closing the session closes h.
func New(h *transport.Handle, opts ...Option) *Session {
	s := &Session{
		handle:  h,
		codec:   &codec.BinaryCodec{},
		maxArgs: codec.DefaultMaxArgsSize,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("device", h.Name()))
	return s
}

// Name returns the name of the underlying device handle.
func (s *Session) Name() string { return s.handle.Name() }

// NewArgs starts an argument list sized for this session.
func (s *Session) NewArgs() *codec.Args {
	return codec.NewArgs(codec.WithMaxSize(s.maxArgs))
}

// Invoke calls function fn of module and returns its raw return value.
// A nil args is an empty argument list.
func (s *Session) Invoke(ctx context.Context, module string, fn uint8, args *codec.Args) (codec.Value, error) {
	inv, err := s.invocation(module, fn, args)
	if err != nil {
		return 0, err
	}
	res, err := s.call(ctx, message.ClassInvoke, inv)
	if err != nil {
		return 0, err
	}
	return codec.Value(res.Value), nil
}

// Push calls fn with buf sent to the device as a bulk transfer. The device
// receives buf in one piece, after the fixed arguments.
func (s *Session) Push(ctx context.Context, module string, fn uint8, buf []byte, args *codec.Args) error {
	inv, err := s.invocation(module, fn, args)
	if err != nil {
		return err
	}
	inv.BulkLen = uint32(len(buf))
	inv.Bulk = buf
	_, err = s.call(ctx, message.ClassPush, inv)
	return err
}

// Pull calls fn and fills buf with exactly len(buf) bytes from the device.
// If the device returns any other amount, buf is left untouched and the
// error matches protocol.ErrLengthMismatch.
func (s *Session) Pull(ctx context.Context, module string, fn uint8, buf []byte, args *codec.Args) error {
	inv, err := s.invocation(module, fn, args)
	if err != nil {
		return err
	}
	inv.BulkLen = uint32(len(buf))
	res, err := s.call(ctx, message.ClassPull, inv)
	if err != nil {
		return err
	}
	if len(res.Bulk) != len(buf) {
		return &protocol.Error{
			Err:    protocol.ErrLengthMismatch,
			Detail: fmt.Sprintf("%s[%d] returned %d bytes, want %d", module, fn, len(res.Bulk), len(buf)),
		}
	}
	copy(buf, res.Bulk)
	return nil
}

// Configuration asks the device to describe itself.
func (s *Session) Configuration(ctx context.Context) (*message.Configuration, error) {
	_, body, err := s.exchange(ctx, message.ClassConfiguration, nil, message.ClassConfiguration)
	if err != nil {
		return nil, err
	}
	var cfg message.Configuration
	if err := s.codec.Decode(body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usable reports whether the session can still carry calls.
func (s *Session) Usable() bool {
	return !s.closed.Load() && s.handle.Usable()
}

// Close releases the device handle. It does not wait for a call in progress.
func (s *Session) Close() error {
	s.closed.Store(true)
	return s.handle.Close()
}

func (s *Session) invocation(module string, fn uint8, args *codec.Args) (*message.Invocation, error) {
	buf, err := args.Encode()
	if err != nil {
		return nil, fmt.Errorf("%s[%d]: %w", module, fn, err)
	}
	if len(buf.Data) > s.maxArgs {
		return nil, fmt.Errorf("%s[%d]: %w", module, fn, &codec.EncodingError{
			Err:    codec.ErrTooLarge,
			Index:  -1,
			Detail: fmt.Sprintf("%d bytes, limit %d", len(buf.Data), s.maxArgs),
		})
	}
	return &message.Invocation{
		Module:   module,
		Function: fn,
		Types:    buf.Types,
		Args:     buf.Data,
	}, nil
}

// call runs one invocation and turns a non-OK status into a *message.DeviceError.
func (s *Session) call(ctx context.Context, class message.Class, inv *message.Invocation) (*message.Result, error) {
	body, err := s.codec.Encode(inv)
	if err != nil {
		return nil, err
	}
	_, replyBody, err := s.exchange(ctx, class, body, message.ClassResult)
	if err != nil {
		return nil, err
	}

	var res message.Result
	if err := s.codec.Decode(replyBody, &res); err != nil {
		return nil, err
	}
	if res.Status != message.OK {
		s.logger.Debug("device error",
			zap.String("module", inv.Module),
			zap.Uint8("function", inv.Function),
			zap.Stringer("status", res.Status))
		return nil, &message.DeviceError{Kind: res.Status, Module: inv.Module, Function: inv.Function}
	}
	return &res, nil
}

// exchange sends one frame and reads the reply under the session lock. The
// context is consulted once, before anything is written: a call that has
// started runs to completion.
func (s *Session) exchange(ctx context.Context, class message.Class, body []byte, want message.Class) (*protocol.Header, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	req := &protocol.Header{CodecType: byte(s.codec.Type()), Class: class}
	reply, replyBody, err := s.handle.RoundTrip(req, body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", s.handle.Name(), err)
	}
	if reply.Class != want {
		return nil, nil, &protocol.Error{
			Err:    protocol.ErrUnexpectedClass,
			Detail: fmt.Sprintf("sent %s, got %s", class, reply.Class),
		}
	}
	return reply, replyBody, nil
}
