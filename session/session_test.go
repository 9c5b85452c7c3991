package session

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/fmr"
	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/protocol"
	"github.com/evelyndooley/flipper/transport"
)

// stubDevice decodes each invocation and answers with whatever reply returns.
// The last invocation seen is sent on seen.
type stubDevice struct {
	reply func(class message.Class, inv *message.Invocation) *message.Result
	seen  chan *message.Invocation
}

func (d *stubDevice) serve(conn net.Conn) {
	defer conn.Close()
	for {
		h, body, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		cdc := codec.GetCodec(codec.CodecType(h.CodecType))

		if h.Class == message.ClassConfiguration {
			cfg := &message.Configuration{Name: "stub", Identifier: fmr.Identifier("stub"), Version: 1, Attributes: message.Attr32Bit}
			out, _ := cdc.Encode(cfg)
			protocol.Encode(conn, &protocol.Header{CodecType: h.CodecType, Class: message.ClassConfiguration}, out)
			continue
		}

		var inv message.Invocation
		if err := cdc.Decode(body, &inv); err != nil {
			return
		}
		if d.seen != nil {
			d.seen <- &inv
		}
		out, _ := cdc.Encode(d.reply(h.Class, &inv))
		protocol.Encode(conn, &protocol.Header{CodecType: h.CodecType, Class: message.ClassResult}, out)
	}
}

func newStubSession(t *testing.T, d *stubDevice, opts ...Option) *Session {
	t.Helper()
	host, device := net.Pipe()
	go d.serve(device)
	s := New(transport.NewHandle("stub", host), opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInvokeEcho(t *testing.T) {
	d := &stubDevice{
		seen: make(chan *message.Invocation, 1),
		reply: func(_ message.Class, inv *message.Invocation) *message.Result {
			// Return the sum of the arguments.
			values, _ := codec.DecodeArgs(inv.Types, inv.Args)
			var sum uint64
			for _, v := range values {
				sum += v.Uint64()
			}
			return &message.Result{Value: sum}
		},
	}

	for _, ct := range []codec.CodecType{codec.CodecTypeBinary, codec.CodecTypeJSON} {
		t.Run(ct.String(), func(t *testing.T) {
			s := newStubSession(t, d, WithCodec(ct))
			args := s.NewArgs().Append(uint8(10)).Append(uint8(20)).Append(uint8(30))

			v, err := s.Invoke(context.Background(), "led", 0, args)
			if err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}
			if v.Uint32() != 60 {
				t.Fatalf("expect 60, got %d", v.Uint32())
			}

			inv := <-d.seen
			if inv.Module != "led" || inv.Function != 0 {
				t.Errorf("device saw %s[%d]", inv.Module, inv.Function)
			}
			if !bytes.Equal(inv.Args, []byte{10, 20, 30}) {
				t.Errorf("args mismatch: % x", inv.Args)
			}
		})
	}
}

func TestInvokeNoDevice(t *testing.T) {
	d := &stubDevice{reply: func(message.Class, *message.Invocation) *message.Result {
		return &message.Result{Status: message.ErrNoDevice}
	}}
	s := newStubSession(t, d)

	_, err := s.Invoke(context.Background(), "led", 0, nil)
	if !errors.Is(err, message.ErrNoDevice) {
		t.Fatalf("expect ErrNoDevice, got %v", err)
	}
	var de *message.DeviceError
	if !errors.As(err, &de) || de.Module != "led" {
		t.Fatalf("expect DeviceError for led, got %#v", err)
	}
}

func TestInvokeUnknownStatus(t *testing.T) {
	d := &stubDevice{reply: func(message.Class, *message.Invocation) *message.Result {
		return &message.Result{Status: message.ErrorKind(0xC8)}
	}}
	s := newStubSession(t, d)

	_, err := s.Invoke(context.Background(), "led", 0, nil)
	var pe *protocol.Error
	if !errors.As(err, &pe) || !errors.Is(err, protocol.ErrUnknownStatus) {
		t.Fatalf("expect ErrUnknownStatus, got %v", err)
	}
	if pe.Status != 0xC8 {
		t.Fatalf("raw status lost: got 0x%02x", pe.Status)
	}
}

func TestPushPull(t *testing.T) {
	var stored []byte
	d := &stubDevice{reply: func(class message.Class, inv *message.Invocation) *message.Result {
		switch class {
		case message.ClassPush:
			stored = append([]byte(nil), inv.Bulk...)
			return &message.Result{}
		case message.ClassPull:
			if int(inv.BulkLen) > len(stored) {
				return &message.Result{Status: message.ErrBoundary}
			}
			return &message.Result{Bulk: stored[:inv.BulkLen]}
		}
		return &message.Result{Status: message.ErrSubclass}
	}}
	s := newStubSession(t, d)
	ctx := context.Background()

	if err := s.Push(ctx, "uart0", 2, []byte("hello"), nil); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	buf := make([]byte, 5)
	if err := s.Pull(ctx, "uart0", 3, buf, nil); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("pull mismatch: got %q", buf)
	}

	big := make([]byte, 10)
	if err := s.Pull(ctx, "uart0", 3, big, nil); !errors.Is(err, message.ErrBoundary) {
		t.Fatalf("expect ErrBoundary for oversized pull, got %v", err)
	}
}

func TestPullLengthMismatch(t *testing.T) {
	d := &stubDevice{reply: func(message.Class, *message.Invocation) *message.Result {
		return &message.Result{Bulk: []byte("abc")}
	}}
	s := newStubSession(t, d)

	buf := []byte("xxxxx")
	err := s.Pull(context.Background(), "uart0", 3, buf, nil)
	if !errors.Is(err, protocol.ErrLengthMismatch) {
		t.Fatalf("expect ErrLengthMismatch, got %v", err)
	}
	if string(buf) != "xxxxx" {
		t.Fatalf("buffer modified on mismatch: %q", buf)
	}
}

func TestConfiguration(t *testing.T) {
	s := newStubSession(t, &stubDevice{})
	cfg, err := s.Configuration(context.Background())
	if err != nil {
		t.Fatalf("Configuration failed: %v", err)
	}
	if cfg.Name != "stub" || cfg.Identifier != fmr.Identifier("stub") || cfg.WordSize() != 32 {
		t.Fatalf("unexpected configuration %+v", cfg)
	}
}

func TestModuleBinding(t *testing.T) {
	d := &stubDevice{
		seen:  make(chan *message.Invocation, 1),
		reply: func(message.Class, *message.Invocation) *message.Result { return &message.Result{Value: 1} },
	}
	s := newStubSession(t, d)
	m := s.Module("uart0")

	v, err := m.Invoke(context.Background(), 1, nil)
	if err != nil || !v.Bool() {
		t.Fatalf("Invoke via module: got %v, %v", v, err)
	}
	if inv := <-d.seen; inv.Module != "uart0" || inv.Function != 1 {
		t.Fatalf("device saw %s[%d]", inv.Module, inv.Function)
	}
}

func TestArgumentErrorsSendNothing(t *testing.T) {
	d := &stubDevice{
		seen:  make(chan *message.Invocation, 1),
		reply: func(message.Class, *message.Invocation) *message.Result { return &message.Result{} },
	}
	s := newStubSession(t, d, WithMaxArgsSize(2))

	_, err := s.Invoke(context.Background(), "led", 0, s.NewArgs().Append(uint32(1)))
	if !errors.Is(err, codec.ErrTooLarge) {
		t.Fatalf("expect ErrTooLarge, got %v", err)
	}

	// Built with the default limit, still rejected by the session.
	_, err = s.Invoke(context.Background(), "led", 0, codec.NewArgs().Append(uint32(1)))
	if !errors.Is(err, codec.ErrTooLarge) {
		t.Fatalf("expect ErrTooLarge from session limit, got %v", err)
	}

	select {
	case inv := <-d.seen:
		t.Fatalf("device should not see a call, got %+v", inv)
	default:
	}
}

func TestCanceledContextAndClose(t *testing.T) {
	s := newStubSession(t, &stubDevice{reply: func(message.Class, *message.Invocation) *message.Result {
		return &message.Result{}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Invoke(ctx, "led", 0, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context.Canceled, got %v", err)
	}
	if !s.Usable() {
		t.Fatal("a call refused before sending should not break the session")
	}

	s.Close()
	if _, err := s.Invoke(context.Background(), "led", 0, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
	if s.Usable() {
		t.Fatal("closed session should not be usable")
	}
}

func TestInvokeHeaderWithoutBody(t *testing.T) {
	host, device := net.Pipe()
	go func() {
		defer device.Close()
		if _, _, err := protocol.Decode(device); err != nil {
			return
		}
		// A result header promising 13 body bytes, then nothing.
		var frame bytes.Buffer
		protocol.Encode(&frame, &protocol.Header{CodecType: protocol.CodecTypeBinary, Class: message.ClassResult}, make([]byte, 13))
		device.Write(frame.Bytes()[:protocol.HeaderSize])
	}()
	s := New(transport.NewHandle("stub", host))
	t.Cleanup(func() { s.Close() })

	_, err := s.Invoke(context.Background(), "led", 0, nil)
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expect ErrTruncated, got %v", err)
	}
	if s.Usable() {
		t.Fatal("session should be broken after a truncated reply")
	}
}
