package llm

import (
	"context"
	"testing"
	"time"

	"counsel/internal/domain/agent/ports"
	"counsel/internal/shared/config"
	"counsel/internal/shared/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFallsBackToMockWithoutKey(t *testing.T) {
	client, err := NewClient(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini"}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Model())
}

func TestNewClientBuildsCompatibleClient(t *testing.T) {
	client, err := NewClient(config.LLMConfig{
		Provider:          "openai",
		Model:             "gpt-4o-mini",
		APIKey:            "sk-test",
		MaxRetries:        2,
		RequestsPerMinute: 60,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.Model())
	_, limited := client.(*rateLimitedClient)
	assert.True(t, limited)
}

func TestNewClientRequiresBaseURLForUnknownProvider(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "acme", Model: "m", APIKey: "k"}, nil)
	require.Error(t, err)
}

func TestMockClientCompletesTask(t *testing.T) {
	resp, err := NewMockClient().Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ports.ToolTaskComplete, resp.ToolCalls[0].Name)
	assert.NotEmpty(t, resp.ToolCalls[0].Arguments["summary"])
}

func TestRateLimitedClientHonorsContext(t *testing.T) {
	client := NewRateLimitedClient(NewMockClient(), 1)
	_, err := client.Complete(context.Background(), ports.CompletionRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, ports.CompletionRequest{})
	require.Error(t, err)

	assert.Same(t, NewRateLimitedClient(client, 0), client)
}
