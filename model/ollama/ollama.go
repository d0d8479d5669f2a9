// Package ollama provides a model client for a self-hosted Ollama server.
// Ollama exposes a small JSON-over-HTTP chat endpoint and no vendor SDK, so
// this adapter speaks the wire format directly.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PAIR-code/deliberate-lab-sub006/model"
)

// Client adapts the Ollama /api/chat endpoint to the model.Client contract.
type Client struct {
	httpClient *http.Client
}

// New constructs an Ollama client adapter.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: 120 * time.Second}}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int64   `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message    chatMessage `json:"message"`
	DoneReason string      `json:"done_reason"`
}

// Call implements model.Client. Request.BaseURL names the server; an empty
// base URL is a configuration problem surfaced as an error.
func (c *Client) Call(ctx context.Context, req model.Request) (model.Result, error) {
	if req.BaseURL == "" {
		return model.Result{}, &model.ProviderError{Provider: "ollama", Message: "no base URL configured"}
	}

	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   false,
		Options: chatOptions{
			Temperature: req.Generation.Temperature,
			TopP:        req.Generation.TopP,
			NumPredict:  req.Generation.MaxOutputTokens,
		},
	})
	if err != nil {
		return model.Result{}, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimSuffix(req.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return model.Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.Result{}, &model.ProviderError{Provider: "ollama", Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Result{}, &model.ProviderError{Provider: "ollama", Message: err.Error(), Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return model.Result{}, &model.ProviderError{
			Provider:   "ollama",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return model.Result{}, &model.ProviderError{Provider: "ollama", Message: "malformed chat response", Cause: err}
	}

	result := model.Result{Text: parsed.Message.Content, StopReason: model.StopReasonStop}
	if parsed.DoneReason == "length" {
		result.StopReason = model.StopReasonLength
	}
	return result, nil
}
