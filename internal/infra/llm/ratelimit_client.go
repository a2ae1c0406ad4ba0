package llm

import (
	"context"
	"fmt"
	"time"

	"counsel/internal/domain/agent/ports"

	"golang.org/x/time/rate"
)

// rateLimitedClient shares one token bucket across every running task so a
// burst of tasks cannot exceed the upstream quota.
type rateLimitedClient struct {
	underlying ports.LLMClient
	limiter    *rate.Limiter
}

// NewRateLimitedClient limits client to requestsPerMinute calls. A
// non-positive limit returns client unchanged.
func NewRateLimitedClient(client ports.LLMClient, requestsPerMinute int) ports.LLMClient {
	if requestsPerMinute <= 0 {
		return client
	}
	limit := rate.Every(time.Minute / time.Duration(requestsPerMinute))
	return &rateLimitedClient{
		underlying: client,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

func (c *rateLimitedClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm rate limit: %w", err)
	}
	return c.underlying.Complete(ctx, req)
}

func (c *rateLimitedClient) Model() string { return c.underlying.Model() }
