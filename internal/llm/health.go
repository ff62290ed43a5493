package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const healthCheckRequestID = "health-check"

// HealthCheck sends a minimal request through Send and reports the
// outcome. It never returns an error; failures become Healthy=false.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()

	_, err := c.Send(ctx, &ChatRequest{
		Messages:  []ChatMessage{{Role: RoleUser, Content: "Hello"}},
		Params:    &ModelParams{MaxTokens: Int(5)},
		RequestID: healthCheckRequestID,
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		c.logger.Error("health check failed",
			zap.Int64("latency_ms", latency),
			zap.Error(err),
		)
		return HealthStatus{
			Healthy:   false,
			Message:   err.Error(),
			LatencyMs: latency,
		}
	}

	c.logger.Info("health check successful", zap.Int64("latency_ms", latency))
	return HealthStatus{Healthy: true, LatencyMs: latency}
}
