package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/evelyndooley/flipper/message"
)

// echoHandler answers every call with the function index as value.
func echoHandler(ctx context.Context, inv *message.Invocation) *message.Result {
	return &message.Result{Value: uint64(inv.Function)}
}

// slowHandler sleeps 200ms before answering.
func slowHandler(ctx context.Context, inv *message.Invocation) *message.Result {
	time.Sleep(200 * time.Millisecond)
	return &message.Result{}
}

func failingHandler(ctx context.Context, inv *message.Invocation) *message.Result {
	return &message.Result{Status: message.ErrResolution}
}

var testInv = &message.Invocation{Class: message.ClassInvoke, Module: "led", Function: 7}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	res := Logging(logger)(echoHandler)(context.Background(), testInv)
	if res.Value != 7 {
		t.Fatalf("expect value 7, got %d", res.Value)
	}
	Logging(logger)(failingHandler)(context.Background(), testInv)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expect 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].ContextMap()["module"] != "led" {
		t.Errorf("unexpected success entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["status"] != "resolution failure" {
		t.Errorf("unexpected failure entry %+v", entries[1].ContextMap())
	}
}

func TestTimeoutPass(t *testing.T) {
	// 500ms budget, fast handler: passes through
	res := Timeout(500*time.Millisecond)(echoHandler)(context.Background(), testInv)
	if res.Status != message.OK {
		t.Fatalf("expect OK, got %v", res.Status)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	// 50ms budget, 200ms handler: times out
	res := Timeout(50*time.Millisecond)(slowHandler)(context.Background(), testInv)
	if res.Status != message.ErrTimeout {
		t.Fatalf("expect ErrTimeout, got %v", res.Status)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: first 2 pass, the 3rd is refused
	handler := RateLimit(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		if res := handler(context.Background(), testInv); res.Status != message.OK {
			t.Fatalf("request %d should pass, got %v", i, res.Status)
		}
	}
	if res := handler(context.Background(), testInv); res.Status != message.ErrCommunication {
		t.Fatalf("expect ErrCommunication, got %v", res.Status)
	}
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, inv *message.Invocation) *message.Result {
		if calls.Add(1) < 3 {
			return &message.Result{Status: message.ErrTimeout}
		}
		return &message.Result{Value: 1}
	}

	res := Retry(3, time.Millisecond)(flaky)(context.Background(), testInv)
	if res.Status != message.OK || calls.Load() != 3 {
		t.Fatalf("expect success on 3rd call, got %v after %d calls", res.Status, calls.Load())
	}

	calls.Store(0)
	push := &message.Invocation{Class: message.ClassPush, Module: "uart0", Function: 2}
	res = Retry(3, time.Millisecond)(flaky)(context.Background(), push)
	if res.Status != message.ErrTimeout || calls.Load() != 1 {
		t.Fatalf("push must not be retried, got %v after %d calls", res.Status, calls.Load())
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, inv *message.Invocation) *message.Result {
				order = append(order, name+">")
				res := next(ctx, inv)
				order = append(order, "<"+name)
				return res
			}
		}
	}

	Chain(mark("a"), mark("b"))(echoHandler)(context.Background(), testInv)

	want := []string{"a>", "b>", "<b", "<a"}
	if len(order) != len(want) {
		t.Fatalf("order mismatch: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", order, want)
		}
	}
}
