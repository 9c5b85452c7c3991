package middleware

import (
	"context"
	"time"

	"github.com/evelyndooley/flipper/message"
)

// Retry re-runs a plain invocation that failed with ErrTimeout or
// ErrCommunication, up to maxRetries more times with exponential backoff.
// Push and pull are never retried: their bulk transfer is not idempotent.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			res := next(ctx, inv)
			if inv.Class != message.ClassInvoke {
				return res
			}
			for i := 0; i < maxRetries && retryable(res.Status); i++ {
				select {
				case <-ctx.Done():
					return res
				case <-time.After(baseDelay * time.Duration(1<<i)): // Exponential backoff
				}
				res = next(ctx, inv)
			}
			return res
		}
	}
}

func retryable(kind message.ErrorKind) bool {
	return kind == message.ErrTimeout || kind == message.ErrCommunication
}
