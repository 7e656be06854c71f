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

// LocalBackend calls an Ollama-compatible local daemon's /api/generate
// endpoint. Grounded on the teacher's internal/core/llm_client.go, which
// talks to the same API shape for its default backend.
type LocalBackend struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewLocalBackend constructs a LocalBackend with a bounded HTTP client.
func NewLocalBackend(baseURL, model string) *LocalBackend {
	return &LocalBackend{
		BaseURL: baseURL,
		Model:   model,
		Client:  &http.Client{},
	}
}

type localGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type localGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Call implements Backend. When the daemon omits eval_count (some local
// models don't report it), token counts are estimated via EstimateTokens
// as spec.md §4.3 requires.
func (b *LocalBackend) Call(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (string, int, int, error) {
	reqBody, err := json.Marshal(localGenerateRequest{
		Model:  b.Model,
		Prompt: prompt,
		System: systemPrompt,
		Stream: false,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("local backend: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, 0, fmt.Errorf("local backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := b.Client
	if client == nil {
		client = &http.Client{}
	}
	client.Timeout = timeout

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", 0, 0, fmt.Errorf("local backend: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", 0, 0, fmt.Errorf("local backend: status %d: %s", resp.StatusCode, string(body))
	}

	var out localGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, fmt.Errorf("local backend: decode response: %w", err)
	}

	promptTokens := out.PromptEvalCount
	if promptTokens == 0 {
		promptTokens = EstimateTokens(prompt + systemPrompt)
	}
	completionTokens := out.EvalCount
	if completionTokens == 0 {
		completionTokens = EstimateTokens(out.Response)
	}

	return out.Response, promptTokens, completionTokens, nil
}
