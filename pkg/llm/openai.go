package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/mpislabs/draftflow/pkg/core"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini"

	// rateLimitRetries is how often a 429 is retried before giving up.
	rateLimitRetries = 3
)

// OpenAI is a Backend using the Chat Completions API in JSON mode.
type OpenAI struct {
	client      openai.Client
	model       string
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai", ErrAPIKeyNotSet)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		baseBackoff: 2 * time.Second,
		maxBackoff:  32 * time.Second,
	}, nil
}

// Generate implements Backend.
func (o *OpenAI) Generate(ctx context.Context, p Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(o.model),
		Temperature: openai.Float(p.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}
	if p.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(p.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(p.User))
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.MaxTokens))
	}

	backoff := o.baseBackoff
	for attempt := 0; ; attempt++ {
		completion, err := o.client.Chat.Completions.New(ctx, params)
		if err == nil {
			if len(completion.Choices) == 0 {
				return "", errors.New("openai: no completion choices returned")
			}
			return CleanJSON(completion.Choices[0].Message.Content), nil
		}

		var apiErr *openai.Error
		if !errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai: %w", err)
		}
		if apiErr.StatusCode != http.StatusTooManyRequests {
			if permanentStatus(apiErr.StatusCode) {
				return "", core.NoRetry(fmt.Errorf("openai: %w", err))
			}
			return "", fmt.Errorf("openai: %w", err)
		}

		wait := retryAfter(apiErr.Response, backoff)
		if attempt >= rateLimitRetries {
			return "", core.RetryAfter(wait, fmt.Errorf("openai: rate limited: %w", err))
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
		if backoff > o.maxBackoff {
			backoff = o.maxBackoff
		}
	}
}

// permanentStatus reports statuses that no retry can fix.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// retryAfter honours a Retry-After header in seconds, else returns fallback.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
