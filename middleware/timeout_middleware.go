package middleware

import (
	"context"
	"time"

	"github.com/evelyndooley/flipper/message"
)

// Timeout answers ErrTimeout when the handler has not finished within
// timeout. The handler keeps running in the background with a canceled ctx;
// its late result is dropped.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Result, 1)
			go func() {
				done <- next(ctx, inv)
			}()

			select {
			case res := <-done:
				return res
			case <-ctx.Done():
				return fail(message.ErrTimeout)
			}
		}
	}
}
