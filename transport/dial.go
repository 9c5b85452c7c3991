package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// Dialer opens device connections, retrying refused or timed-out dials with
// exponential backoff.
type Dialer struct {
	Timeout    time.Duration // Per-attempt dial timeout; zero means none
	Retries    int           // Extra attempts after the first
	RetryDelay time.Duration // Delay before the first retry, doubled each time
	Logger     *zap.Logger
}

// Dial connects to address and returns a Handle named after it.
func (d *Dialer) Dial(ctx context.Context, network, address string) (*Handle, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nd := net.Dialer{Timeout: d.Timeout}

	var lastErr error
	for attempt := 0; attempt <= d.Retries; attempt++ {
		if attempt > 0 {
			delay := d.RetryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			logger.Debug("retrying dial",
				zap.String("address", address),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("dial %s: %w", address, ctx.Err())
			case <-timer.C:
			}
		}

		conn, err := nd.DialContext(ctx, network, address)
		if err == nil {
			return NewHandle(address, conn), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", address, d.Retries+1, lastErr)
}
