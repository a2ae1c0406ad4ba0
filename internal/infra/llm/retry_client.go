package llm

import (
	"context"
	"fmt"
	"time"

	"counsel/internal/domain/agent/ports"
	sharederrors "counsel/internal/shared/errors"
	"counsel/internal/shared/logging"
)

// retryClient wraps an LLM client with exponential retry of transient errors.
type retryClient struct {
	underlying  ports.LLMClient
	retryConfig sharederrors.RetryConfig
	logger      logging.Logger
}

// NewRetryClient wraps client so 429, 5xx and network failures are retried.
func NewRetryClient(client ports.LLMClient, retryConfig sharederrors.RetryConfig) ports.LLMClient {
	return &retryClient{
		underlying:  client,
		retryConfig: retryConfig,
		logger:      logging.NewComponentLogger("llm-retry"),
	}
}

// Complete executes LLM completion with retry logic
func (c *retryClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	startTime := time.Now()
	logger := logging.FromContext(ctx, c.logger)
	attempt := 0

	resp, err := sharederrors.RetryWithResult(ctx, c.retryConfig, func(ctx context.Context) (*ports.CompletionResponse, error) {
		attempt++
		return c.underlying.Complete(ctx, req)
	}, func(err error, wait time.Duration) {
		logger.Warn("LLM attempt %d failed, retrying in %v: %v", attempt, wait, err)
	})
	if err != nil {
		duration := time.Since(startTime)
		logger.Warn("LLM request failed after %d attempt(s) (took %v): %v", attempt, duration, err)
		return nil, fmt.Errorf("%s after %d attempt(s): %w", c.underlying.Model(), attempt, err)
	}
	return resp, nil
}

// Model returns the underlying model name
func (c *retryClient) Model() string {
	return c.underlying.Model()
}
