package llm

import (
	"fmt"
	"strings"

	"counsel/internal/domain/agent/ports"
	"counsel/internal/shared/config"
	sharederrors "counsel/internal/shared/errors"
	"counsel/internal/shared/logging"
)

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"ollama":     "http://localhost:11434/v1",
}

// NewClient builds the reasoning client described by cfg. Every provider
// except "mock" speaks the OpenAI-compatible chat completions protocol. A
// provider that needs a key but has none falls back to the mock client so a
// fresh checkout can serve requests.
func NewClient(cfg config.LLMConfig, logger logging.Logger) (ports.LLMClient, error) {
	logger = logging.OrNop(logger)
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	if provider == "mock" || provider == "" {
		return NewMockClient(), nil
	}
	if config.ProviderRequiresAPIKey(provider) && strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("llm.api_key is empty for provider %q; using the mock client", provider)
		return NewMockClient(), nil
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURLs[provider]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("llm.base_url is required for provider %q", provider)
	}

	client, err := NewOpenAIClient(cfg.Model, Config{
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries > 0 {
		retryConfig := sharederrors.DefaultRetryConfig()
		retryConfig.MaxAttempts = cfg.MaxRetries
		client = NewRetryClient(client, retryConfig)
	}
	client = NewRateLimitedClient(client, cfg.RequestsPerMinute)

	logger.Info("llm client ready: provider=%s model=%s base_url=%s", provider, cfg.Model, baseURL)
	return client, nil
}
