package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"counsel/internal/domain/agent/ports"
	sharederrors "counsel/internal/shared/errors"
	jsonx "counsel/internal/shared/json"
	"counsel/internal/shared/logging"
	id "counsel/internal/shared/utils/id"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	maxResponseBytes   = 8 << 20
	errorPreviewLimit  = 320
	defaultHTTPTimeout = 120 * time.Second
)

// Config configures an OpenAI-compatible client.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// openaiClient speaks the OpenAI-compatible chat completions API.
type openaiClient struct {
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient constructs an LLM client that speaks the OpenAI-compatible
// chat completions API using the provided configuration.
func NewOpenAIClient(model string, config Config) (ports.LLMClient, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("llm: model is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &openaiClient{
		model:      model,
		baseURL:    baseURL,
		apiKey:     config.APIKey,
		httpClient: httpClient,
		logger:     logging.NewComponentLogger("openai"),
	}, nil
}

func (c *openaiClient) Model() string { return c.model }

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	requestID := id.NewRequestIDWithLogID(id.LogIDFromContext(ctx))
	prefix := fmt.Sprintf("[req:%s] ", requestID)
	logger := logging.FromContext(ctx, c.logger)

	oaiReq := map[string]any{
		"model":    c.model,
		"messages": convertMessages(req.Messages),
		"stream":   false,
	}
	if req.Temperature > 0 {
		oaiReq["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oaiReq["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		oaiReq["tools"] = convertTools(req.Tools)
		oaiReq["tool_choice"] = "auto"
	}

	body, err := jsonx.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	logger.Debug("%sPOST %s (%d messages, %d tools)", prefix, endpoint, len(req.Messages), len(req.Tools))

	resp, err := c.doPost(ctx, endpoint, body)
	if err != nil {
		logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, sharederrors.NewTransientError(fmt.Errorf("read response: %w", err), "")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("%sUpstream returned %d: %s", prefix, resp.StatusCode, preview(respBody))
		return nil, mapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	var oaiResp openaiResponse
	if err := jsonx.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, sharederrors.NewPermanentError(fmt.Errorf("decode response: %w", err), "")
	}
	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		errMsg := oaiResp.Error.Message
		if oaiResp.Error.Type != "" {
			errMsg = fmt.Sprintf("%s: %s", oaiResp.Error.Type, oaiResp.Error.Message)
		}
		return nil, mapHTTPError(resp.StatusCode, []byte(errMsg), resp.Header)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, sharederrors.NewTransientError(errors.New("no choices in response"), "")
	}

	choice := oaiResp.Choices[0]
	result := &ports.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: ports.TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args, ok := parseToolArguments(tc.Function.Arguments)
		if !ok {
			logger.Warn("%sUnparseable arguments for tool %s: %s", prefix, tc.Function.Name, preview([]byte(tc.Function.Arguments)))
		}
		result.ToolCalls = append(result.ToolCalls, ports.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	logger.Debug("%sCompleted: finish=%s tool_calls=%d tokens=%d", prefix, result.StopReason, len(result.ToolCalls), result.Usage.TotalTokens)
	return result, nil
}

func (c *openaiClient) doPost(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpClient.Do(httpReq)
}

func wrapRequestError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return sharederrors.NewTransientError(fmt.Errorf("request failed: %w", err), "")
}

// mapHTTPError classifies a non-2xx response: 429 and 5xx are retryable.
func mapHTTPError(status int, body []byte, header http.Header) error {
	err := sharederrors.FromHTTPStatus(status, preview(body))
	var transient *sharederrors.TransientError
	if errors.As(err, &transient) && header != nil {
		if secs, convErr := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); convErr == nil && secs > 0 {
			transient.RetryAfter = secs
		}
	}
	return err
}

func preview(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > errorPreviewLimit {
		return text[:errorPreviewLimit] + "..."
	}
	return text
}
