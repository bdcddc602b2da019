package ai

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API with inline image bytes and a text part
type GeminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGeminiProvider creates a provider backed by the Google GenAI SDK
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, maxTokens int, httpClient *http.Client) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, maxTokens: maxTokens}, nil
}

// Name implements VisionProvider
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Analyze implements VisionProvider
func (p *GeminiProvider) Analyze(ctx context.Context, image []byte, mediaType, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mediaType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(p.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	return resp.Text(), nil
}
