package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/metrics"
)

const (
	baseBackoff = 1000 * time.Millisecond
	maxBackoff  = 10 * time.Second
)

// doWithRetry runs attempt up to maxRetries+1 times, strictly in sequence.
//   - Non-retryable errors are returned immediately.
//   - Retryable errors are retried after computeBackoff(attempt).
//   - Once attempts are exhausted the last error is returned.
//   - Cancellation of ctx stops retrying.
func (c *Client) doWithRetry(
	ctx context.Context,
	requestID string,
	attempt func(ctx context.Context) (*providerChatResponse, error),
) (*providerChatResponse, error) {
	maxAttempts := c.maxRetries + 1

	for n := 0; n < maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err, requestID)
		}

		start := time.Now()
		resp, err := attempt(ctx)
		duration := time.Since(start)

		if err == nil {
			metrics.UpstreamAttemptsTotal.WithLabelValues("success").Inc()
			metrics.UpstreamLatencySeconds.WithLabelValues("success").Observe(duration.Seconds())
			return resp, nil
		}

		gerr := asGatewayError(err, requestID)
		metrics.UpstreamAttemptsTotal.WithLabelValues(string(gerr.Kind)).Inc()
		metrics.UpstreamLatencySeconds.WithLabelValues(string(gerr.Kind)).Observe(duration.Seconds())

		c.logger.Debug("llm upstream attempt failed",
			zap.String("request_id", requestID),
			zap.Int("attempt", n+1),
			zap.Int("max_attempts", maxAttempts),
			zap.String("error_kind", string(gerr.Kind)),
			zap.Int("status", gerr.StatusCode),
			zap.Duration("duration", duration),
		)

		if !gerr.Retryable {
			return nil, gerr
		}

		// No more attempts left
		if n == maxAttempts-1 {
			c.logger.Warn("llm request exhausted all retries",
				zap.String("request_id", requestID),
				zap.Int("attempts", maxAttempts),
				zap.String("error_kind", string(gerr.Kind)),
			)
			return nil, gerr
		}

		backoff := computeBackoff(n)
		c.logger.Warn("retrying llm request",
			zap.String("request_id", requestID),
			zap.Int("attempt", n+1),
			zap.Int("max_retries", c.maxRetries),
			zap.Duration("delay", backoff),
			zap.String("error_kind", string(gerr.Kind)),
		)
		metrics.UpstreamRetriesTotal.Inc()

		if err := c.cfg.Sleep(ctx, backoff); err != nil {
			return nil, contextError(err, requestID)
		}
	}

	// maxAttempts is always >= 1, so the loop returns before reaching here.
	return nil, newError(KindUnknown, requestID, "retry failed", false, nil)
}

// computeBackoff returns min(1s * 2^attempt, 10s).
//
// Attempt 0: 1s
// Attempt 1: 2s
// Attempt 2: 4s
// Attempt 3: 8s
// Attempt 4+: 10s
func computeBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^4 already exceeds the cap; stop shifting before it can overflow.
	if attempt > 4 {
		return maxBackoff
	}
	d := baseBackoff << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// contextError converts a caller cancellation into a non-retryable error.
func contextError(err error, requestID string) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, requestID, "request deadline exceeded", false, err)
	}
	return newError(KindNetwork, requestID, "request cancelled", false, err)
}

// asGatewayError funnels any error into *Error so nothing raw escapes.
func asGatewayError(err error, requestID string) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		if gerr.RequestID == "" {
			gerr.RequestID = requestID
		}
		return gerr
	}
	return newError(KindUnknown, requestID, err.Error(), false, err)
}
