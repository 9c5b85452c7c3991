package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/evelyndooley/flipper/message"
)

// Logging records every invocation at debug level and failed ones at warn.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			start := time.Now()
			res := next(ctx, inv)

			fields := []zap.Field{
				zap.Stringer("class", inv.Class),
				zap.String("module", inv.Module),
				zap.Uint8("function", inv.Function),
				zap.Duration("duration", time.Since(start)),
			}
			if res.Status != message.OK {
				logger.Warn("invocation failed", append(fields, zap.Stringer("status", res.Status))...)
				return res
			}
			logger.Debug("invocation", fields...)
			return res
		}
	}
}
