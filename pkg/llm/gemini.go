package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mpislabs/draftflow/pkg/core"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini is a Backend using Google's Gemini models with JSON output.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini", ErrAPIKeyNotSet)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate implements Backend.
func (g *Gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(float32(p.Temperature))
	model.ResponseMIMEType = "application/json"
	if p.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(p.MaxTokens))
	}
	if p.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", classifyGemini(err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	return CleanJSON(text), nil
}

// Close releases the client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// classifyGemini marks request and credential errors as permanent.
func classifyGemini(err error) error {
	err = fmt.Errorf("gemini: %w", err)
	switch status.Code(errors.Unwrap(err)) {
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound:
		return core.NoRetry(err)
	}
	return err
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	c := resp.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 {
		return "", errors.New("gemini: no content in response")
	}
	var parts []string
	for _, part := range c.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("gemini: no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
