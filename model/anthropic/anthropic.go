// Package anthropic provides a model client for the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/PAIR-code/deliberate-lab-sub006/model"
)

// Client adapts the Anthropic SDK to the model.Client contract. Credentials
// arrive per request, so the SDK client is built per call.
type Client struct{}

// New constructs an Anthropic client adapter.
func New() *Client { return &Client{} }

// Call implements model.Client.
func (c *Client) Call(ctx context.Context, req model.Request) (model.Result, error) {
	client := anthropic.NewClient(option.WithAPIKey(req.APIKey))

	maxTokens := req.Generation.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Generation.Temperature),
	}
	if req.Generation.TopP > 0 {
		params.TopP = anthropic.Float(req.Generation.TopP)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.Result{}, wrapError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	result := model.Result{Text: text.String(), StopReason: model.StopReasonStop}
	switch resp.StopReason {
	case "max_tokens":
		result.StopReason = model.StopReasonLength
	case "refusal":
		result.StopReason = model.StopReasonRefusal
	}
	return result, nil
}

// wrapError normalizes SDK errors into model.ProviderError so the pipeline
// can classify by HTTP status.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Cause:      err,
		}
	}
	return &model.ProviderError{Provider: "anthropic", Message: err.Error(), Cause: err}
}
