// Package openai provides a model client for the OpenAI Chat Completions
// API, including OpenAI-compatible servers reachable via a custom base URL.
package openai

import (
	"context"
	"errors"

	"github.com/PAIR-code/deliberate-lab-sub006/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client adapts the OpenAI SDK to the model.Client contract.
type Client struct{}

// New constructs an OpenAI client adapter.
func New() *Client { return &Client{} }

// Call implements model.Client.
func (c *Client) Call(ctx context.Context, req model.Request) (model.Result, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(req.APIKey)}
	if req.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(req.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Generation.Temperature),
	}
	if req.Generation.TopP > 0 {
		params.TopP = openai.Float(req.Generation.TopP)
	}
	if req.Generation.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.Generation.MaxOutputTokens)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Result{}, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return model.Result{}, &model.ProviderError{Provider: "openai", Message: "no choices returned"}
	}

	choice := resp.Choices[0]
	result := model.Result{Text: choice.Message.Content, StopReason: model.StopReasonStop}
	switch choice.FinishReason {
	case "length":
		result.StopReason = model.StopReasonLength
	case "content_filter":
		result.StopReason = model.StopReasonRefusal
	}
	return result, nil
}

// wrapError normalizes SDK errors into model.ProviderError.
func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Cause:      err,
		}
	}
	return &model.ProviderError{Provider: "openai", Message: err.Error(), Cause: err}
}
