package attach

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/evelyndooley/flipper/fvm"
	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/modules/led"
	"github.com/evelyndooley/flipper/registry"
	"github.com/evelyndooley/flipper/transport"
)

func newDevice(t *testing.T) (*fvm.Device, *led.State) {
	t.Helper()
	state := &led.State{}
	d := fvm.New("board")
	if err := d.Register(led.Virtual(state)); err != nil {
		t.Fatal(err)
	}
	return d, state
}

// serve runs d on a loopback listener and returns its address.
func serve(t *testing.T, d *fvm.Device, reg registry.Registry) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go d.ServeListener(ln, "", reg)
	t.Cleanup(func() { d.Shutdown(time.Second) })
	return ln.Addr().String()
}

func TestVirtual(t *testing.T) {
	d, state := newDevice(t)
	s := Virtual(d)
	defer s.Close()

	if err := led.New(s).RGB(context.Background(), 1, 2, 3); err != nil {
		t.Fatalf("RGB failed: %v", err)
	}
	if r, g, b := state.Color(); r != 1 || g != 2 || b != 3 {
		t.Fatalf("expect 1,2,3, got %d,%d,%d", r, g, b)
	}
	if s.Name() != "board" {
		t.Fatalf("expect session named after device, got %q", s.Name())
	}
}

func TestAttachHostnameDirect(t *testing.T) {
	d, _ := newDevice(t)
	addr := serve(t, d, nil)

	a := &Attacher{Dialer: transport.Dialer{Timeout: time.Second}}
	s, err := a.AttachHostname(context.Background(), addr)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	defer s.Close()

	cfg, err := s.Configuration(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "board" {
		t.Fatalf("expect board, got %q", cfg.Name)
	}
}

func TestAttachHostnameDefaultPort(t *testing.T) {
	d, _ := newDevice(t)
	_, port, _ := net.SplitHostPort(serve(t, d, nil))

	a := &Attacher{Dialer: transport.Dialer{Timeout: time.Second}, DefaultPort: port}
	s, err := a.AttachHostname(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	s.Close()
}

func TestAttachThroughRegistry(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	d, state := newDevice(t)
	serve(t, d, reg)

	deadline := time.Now().Add(time.Second)
	for {
		if instances, _ := reg.Discover(context.Background(), led.Name); len(instances) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("device never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	a := &Attacher{Dialer: transport.Dialer{Timeout: time.Second}, Registry: reg}
	s, err := a.AttachHostname(context.Background(), led.Name)
	if err != nil {
		t.Fatalf("attach by module name failed: %v", err)
	}
	defer s.Close()

	if err := led.New(s).RGB(context.Background(), 9, 9, 9); err != nil {
		t.Fatal(err)
	}
	if r, _, _ := state.Color(); r != 9 {
		t.Fatalf("call did not reach the registered device")
	}
}

func TestAttachFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	a := &Attacher{Dialer: transport.Dialer{Timeout: 200 * time.Millisecond}}
	_, err = a.AttachHostname(context.Background(), addr)

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("expect *attach.Error, got %T %v", err, err)
	}
	if ae.Name != addr {
		t.Fatalf("expect name %q, got %q", addr, ae.Name)
	}
	if !errors.Is(err, message.ErrNoDevice) {
		t.Fatalf("expect ErrNoDevice, got %v", err)
	}
}
