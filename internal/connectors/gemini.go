package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// GeminiClient: генерация через Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, p Prompt) (string, error) {
	temperature := float32(p.Temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		Temperature:       &temperature,
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(p.User, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &APIError{Provider: providerGemini, Kind: KindEmpty, Message: "no candidates returned"}
	}
	return text, nil
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: providerGemini, Kind: KindForStatus(apiErr.Code), StatusCode: apiErr.Code, Message: apiErr.Message, Cause: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &APIError{Provider: providerGemini, Kind: KindForStatus(apiErrPtr.Code), StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Cause: err}
	}
	return &APIError{Provider: providerGemini, Kind: KindNetwork, Message: err.Error(), Cause: err}
}
