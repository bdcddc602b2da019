package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tracgallery/gallery/internal/types"
)

// OpenAIProvider speaks the OpenAI-compatible chat completions protocol.
// It serves both OpenAI and OpenRouter; only base URL and model differ.
type OpenAIProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewOpenAIProvider creates a chat-completions provider rooted at baseURL
func NewOpenAIProvider(name, baseURL, apiKey, model string, maxTokens int, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		name:       name,
		endpoint:   strings.TrimRight(baseURL, "/") + "/chat/completions",
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: httpClient,
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Name implements VisionProvider
func (p *OpenAIProvider) Name() string { return p.name }

// Analyze implements VisionProvider
func (p *OpenAIProvider) Analyze(ctx context.Context, image []byte, mediaType, prompt string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(image))
	reqBody := chatRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContentPart{
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
				{Type: "text", Text: prompt},
			},
		}},
	}

	var chatResp chatResponse
	if err := postJSON(ctx, p.httpClient, p.name, p.endpoint, reqBody, &chatResp, func(h http.Header) {
		h.Set("Authorization", "Bearer "+p.apiKey)
	}); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", nil
	}
	return chatResp.Choices[0].Message.Content, nil
}

// postJSON sends body as JSON and decodes a 2xx reply into out. Non-2xx
// replies become *types.UpstreamError carrying the status and a body excerpt.
func postJSON(ctx context.Context, client *http.Client, service, endpoint string, body, out any, setHeaders func(http.Header)) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if setHeaders != nil {
		setHeaders(req.Header)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &types.UpstreamError{Service: service, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &types.UpstreamError{Service: service, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &types.UpstreamError{Service: service, StatusCode: resp.StatusCode, Message: truncate(string(respBody), 300)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", service, err)
	}
	return nil
}
