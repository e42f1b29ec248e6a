package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"hoax-guard/config"
	"hoax-guard/metrics"
)

// ModelClient is any generative model reachable with a Prompt.
type ModelClient interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// OpenAIClient implements ModelClient over any OpenAI-compatible chat
// completions endpoint (OpenRouter, Groq, OpenAI, Gemini, LM Studio).
// Each Generate is exactly one HTTP call.
type OpenAIClient struct {
	client      *openai.Client
	provider    string
	model       string
	temperature float32
	maxTokens   int
	limits      *RateLimitTracker
	logger      *slog.Logger
}

var _ ModelClient = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg config.ModelConfig, limits *RateLimitTracker, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}

	ocfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
	}
	headers := http.Header{}
	if cfg.Provider == config.ProviderOpenRouter {
		if cfg.Referer != "" {
			headers.Set("HTTP-Referer", cfg.Referer)
		}
		if cfg.AppTitle != "" {
			headers.Set("X-Title", cfg.AppTitle)
		}
	}
	ocfg.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &headerTransport{base: http.DefaultTransport, headers: headers},
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(ocfg),
		provider:    cfg.Provider,
		model:       cfg.Name,
		temperature: wireTemperature(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		limits:      limits,
		logger:      logger.With("provider", cfg.Provider, "model", cfg.Name),
	}
}

// Generate sends the prompt and returns the first choice's text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(prompt),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	c.logger.Debug("model request", "multimodal", prompt.ImageDataURI != "", "prompt_chars", len(prompt.User))
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	took := time.Since(start)
	metrics.ObserveModelCall(c.provider, err, took)

	if err != nil {
		if status := statusOf(err); status != 0 && c.limits != nil {
			c.limits.RecordStatus(c.provider, status)
		}
		c.logger.Error("model call failed", "error", err, "took", took)
		return "", fmt.Errorf("%s chat completion: %w", c.provider, err)
	}
	if c.limits != nil {
		c.limits.Update(c.provider, resp.GetRateLimitHeaders(), http.StatusOK)
	}

	if len(resp.Choices) == 0 {
		c.logger.Warn("model returned no choices", "took", took)
		return "", fmt.Errorf("%s returned no choices", c.provider)
	}

	text := resp.Choices[0].Message.Content
	c.logger.Info("model responded",
		"took", took,
		"chars", len(text),
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

func buildMessages(p Prompt) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if p.ImageDataURI == "" {
		user.Content = p.User
	} else {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: p.User},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    p.ImageDataURI,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	}
	return append(msgs, user)
}

// wireTemperature maps an unset temperature to the provider default. go-openai
// omits a zero temperature from the request, so an explicit 0 is sent as the
// smallest positive float32.
func wireTemperature(t *float32) float32 {
	switch {
	case t == nil:
		return 0
	case *t == 0:
		return math.SmallestNonzeroFloat32
	default:
		return *t
	}
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// headerTransport adds fixed headers to every outbound request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
