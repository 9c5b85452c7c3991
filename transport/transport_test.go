package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evelyndooley/flipper/message"
	"github.com/evelyndooley/flipper/protocol"
)

// echoDevice answers every frame with a result frame carrying the same body.
func echoDevice(conn net.Conn) {
	defer conn.Close()
	for {
		_, body, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		if err := protocol.Encode(conn, &protocol.Header{Class: message.ClassResult}, body); err != nil {
			return
		}
	}
}

func TestHandleRoundTrip(t *testing.T) {
	host, device := net.Pipe()
	go echoDevice(device)

	h := NewHandle("pipe", host)
	defer h.Close()

	for _, body := range [][]byte{[]byte("one"), nil, []byte("three")} {
		reply, got, err := h.RoundTrip(&protocol.Header{Class: message.ClassInvoke}, body)
		if err != nil {
			t.Fatalf("RoundTrip failed: %v", err)
		}
		if reply.Class != message.ClassResult {
			t.Errorf("expect result class, got %v", reply.Class)
		}
		if !bytes.Equal(got, body) {
			t.Errorf("body mismatch: got %q, want %q", got, body)
		}
	}
	if !h.Usable() {
		t.Fatal("handle should stay usable after clean exchanges")
	}
}

func TestHandleBrokenOnPeerClose(t *testing.T) {
	host, device := net.Pipe()
	go func() {
		protocol.Decode(device)
		device.Close()
	}()

	h := NewHandle("pipe", host)
	_, _, err := h.RoundTrip(&protocol.Header{Class: message.ClassInvoke}, []byte("x"))
	if err == nil {
		t.Fatal("expect error when device hangs up")
	}
	if h.Usable() {
		t.Fatal("handle should be unusable after a failed exchange")
	}
}

func TestHandleClose(t *testing.T) {
	host, device := net.Pipe()
	defer device.Close()

	h := NewHandle("pipe", host)
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if _, _, err := h.RoundTrip(&protocol.Header{}, nil); !errors.Is(err, ErrHandleClosed) {
		t.Fatalf("expect ErrHandleClosed, got %v", err)
	}
}

type fakeResource struct {
	usable atomic.Bool
	closed atomic.Bool
}

func newFake() *fakeResource {
	r := &fakeResource{}
	r.usable.Store(true)
	return r
}

func (r *fakeResource) Usable() bool { return r.usable.Load() && !r.closed.Load() }
func (r *fakeResource) Close() error { r.closed.Store(true); return nil }

func TestPoolReuse(t *testing.T) {
	var created atomic.Int32
	pool := NewPool(2, func(ctx context.Context) (*fakeResource, error) {
		created.Add(1)
		return newFake(), nil
	})
	defer pool.Close()

	ctx := context.Background()
	a, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pool.Put(a)

	b, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || created.Load() != 1 {
		t.Fatalf("expect idle resource to be reused, created %d", created.Load())
	}
	pool.Put(b)
}

func TestPoolDiscardsUnusable(t *testing.T) {
	pool := NewPool(1, func(ctx context.Context) (*fakeResource, error) {
		return newFake(), nil
	})
	defer pool.Close()

	ctx := context.Background()
	a, _ := pool.Get(ctx)
	a.usable.Store(false)
	pool.Put(a)

	if !a.closed.Load() {
		t.Fatal("unusable resource should be closed on Put")
	}
	if pool.Len() != 0 {
		t.Fatalf("expect 0 live resources, got %d", pool.Len())
	}

	b, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expect a fresh resource")
	}
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	pool := NewPool(1, func(ctx context.Context) (*fakeResource, error) {
		return newFake(), nil
	})
	defer pool.Close()

	a, _ := pool.Get(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect DeadlineExceeded at capacity, got %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		pool.Put(a)
	}()
	b, err := pool.Get(context.Background())
	if err != nil || b != a {
		t.Fatalf("expect returned resource, got %v, %v", b, err)
	}
}

func TestPoolFactoryError(t *testing.T) {
	boom := errors.New("boom")
	pool := NewPool(1, func(ctx context.Context) (*fakeResource, error) {
		return nil, boom
	})
	if _, err := pool.Get(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expect factory error, got %v", err)
	}
	if pool.Len() != 0 {
		t.Fatal("failed create should release its slot")
	}

	pool.Close()
	if _, err := pool.Get(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expect ErrPoolClosed, got %v", err)
	}
}

func TestDialerRetries(t *testing.T) {
	// Reserve a port, then free it so the first dials are refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	d := &Dialer{Timeout: time.Second, Retries: 5, RetryDelay: 20 * time.Millisecond}

	go func() {
		time.Sleep(30 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err == nil {
			echoDevice(conn)
		}
	}()

	h, err := d.Dial(context.Background(), "tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer h.Close()
	if h.Name() != addr {
		t.Errorf("Name mismatch: got %s, want %s", h.Name(), addr)
	}
}

func TestDialerGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	d := &Dialer{Timeout: 100 * time.Millisecond, Retries: 1, RetryDelay: time.Millisecond}
	if _, err := d.Dial(context.Background(), "tcp", addr); err == nil {
		t.Fatal("expect dial to a closed port to fail")
	}
}
