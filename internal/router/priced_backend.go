package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PricedBackend calls an OpenAI-compatible /chat/completions endpoint,
// used for hosted, metered models in the capability table. Grounded on
// the same LLMClient shape the teacher uses for its remote provider,
// generalized to accept an arbitrary compatible base URL.
type PricedBackend struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
}

// NewPricedBackend constructs a PricedBackend.
func NewPricedBackend(baseURL, model, apiKey string) *PricedBackend {
	return &PricedBackend{
		BaseURL: baseURL,
		Model:   model,
		APIKey:  apiKey,
		Client:  &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

// Call implements Backend.
func (b *PricedBackend) Call(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (string, int, int, error) {
	messages := []chatMessage{}
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody, err := json.Marshal(chatRequest{Model: b.Model, Messages: messages})
	if err != nil {
		return "", 0, 0, fmt.Errorf("priced backend: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, 0, fmt.Errorf("priced backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	client := b.Client
	if client == nil {
		client = &http.Client{}
	}
	client.Timeout = timeout

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", 0, 0, fmt.Errorf("priced backend: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, 0, fmt.Errorf("priced backend: status %d: %s", resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, fmt.Errorf("priced backend: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("priced backend: empty choices")
	}

	text := out.Choices[0].Message.Content
	promptTokens := out.Usage.PromptTokens
	if promptTokens == 0 {
		promptTokens = EstimateTokens(prompt + systemPrompt)
	}
	completionTokens := out.Usage.CompletionTokens
	if completionTokens == 0 {
		completionTokens = EstimateTokens(text)
	}

	return text, promptTokens, completionTokens, nil
}
