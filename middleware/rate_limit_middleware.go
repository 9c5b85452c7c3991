package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/evelyndooley/flipper/message"
)

// RateLimit admits r invocations per second with bursts of burst, using a
// token bucket shared by all connections. Refused calls get ErrCommunication.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			if !limiter.Allow() {
				return fail(message.ErrCommunication)
			}
			return next(ctx, inv)
		}
	}
}
