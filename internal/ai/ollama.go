package ai

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
)

// OllamaProvider calls a local Ollama server's /api/chat endpoint
type OllamaProvider struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewOllamaProvider creates a provider for an Ollama server at baseURL
func NewOllamaProvider(baseURL, model string, httpClient *http.Client) *OllamaProvider {
	return &OllamaProvider{
		endpoint:   strings.TrimRight(baseURL, "/") + "/api/chat",
		model:      model,
		httpClient: httpClient,
	}
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Name implements VisionProvider
func (p *OllamaProvider) Name() string { return ProviderOllama }

// Analyze implements VisionProvider. Ollama takes bare base64 images without a media type.
func (p *OllamaProvider) Analyze(ctx context.Context, image []byte, _ string, prompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:  p.model,
		Stream: false,
		Messages: []ollamaMessage{{
			Role:    "user",
			Content: prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
	}
	var out ollamaResponse
	if err := postJSON(ctx, p.httpClient, ProviderOllama, p.endpoint, reqBody, &out, nil); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}
