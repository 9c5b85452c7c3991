// Package middleware wraps the device-side dispatch of invocations.
//
// Middlewares compose like an onion: Chain(a, b)(h) runs a, then b, then h,
// and unwinds in reverse. A middleware that refuses a call answers with a
// Result carrying the matching ErrorKind instead of calling next.
package middleware

import (
	"context"

	"github.com/evelyndooley/flipper/message"
)

type HandlerFunc func(ctx context.Context, inv *message.Invocation) *message.Result

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one; the first listed is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

func fail(kind message.ErrorKind) *message.Result {
	return &message.Result{Status: kind}
}
