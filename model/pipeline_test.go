package model

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

var testKeys = APIKeys{AnthropicAPIKey: "key", OpenAIAPIKey: "key", OllamaBaseURL: "http://localhost:11434"}

func testSettings() experiment.ModelSettings {
	return experiment.ModelSettings{APIType: experiment.APIKeyTypeAnthropic, Model: "test-model"}
}

func newTestPipeline(client Client) *Pipeline {
	registry := NewRegistry()
	registry.Register(experiment.APIKeyTypeAnthropic, client)
	return NewPipeline(registry, func(o *PipelineOptions) {
		o.RetryDelay = 0
	})
}

func TestPipelineConfigErrors(t *testing.T) {
	pipeline := newTestPipeline(NewMockClient())

	// Missing model name.
	response := pipeline.Call(context.Background(), "hi", testKeys,
		experiment.ModelSettings{APIType: experiment.APIKeyTypeAnthropic}, experiment.DefaultGenerationConfig(), nil, 0)
	assert.Equal(t, StatusConfigError, response.Status)

	// Missing key for the provider.
	response = pipeline.Call(context.Background(), "hi", APIKeys{},
		testSettings(), experiment.DefaultGenerationConfig(), nil, 0)
	assert.Equal(t, StatusConfigError, response.Status)

	// Unregistered provider type.
	response = pipeline.Call(context.Background(), "hi", testKeys,
		experiment.ModelSettings{APIType: experiment.APIKeyTypeOpenAI, Model: "m"}, experiment.DefaultGenerationConfig(), nil, 0)
	assert.Equal(t, StatusConfigError, response.Status)
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	client := NewMockClient()
	client.FailWith(
		&ProviderError{Provider: "anthropic", StatusCode: 503, Message: "overloaded"},
		&ProviderError{Provider: "anthropic", StatusCode: 503, Message: "overloaded"},
		&ProviderError{Provider: "anthropic", StatusCode: 503, Message: "overloaded"},
	)
	pipeline := newTestPipeline(client)

	response := pipeline.Call(context.Background(), "hi", testKeys, testSettings(), experiment.DefaultGenerationConfig(), nil, 2)
	assert.Equal(t, StatusProviderUnavailableError, response.Status)
	assert.Equal(t, 3, client.Calls())
}

func TestPipelineRecoversWithinRetryBudget(t *testing.T) {
	client := NewMockClient()
	client.FailWith(&ProviderError{Provider: "anthropic", StatusCode: 500, Message: "flaky"})
	pipeline := newTestPipeline(client)

	response := pipeline.Call(context.Background(), "hi", testKeys, testSettings(), experiment.DefaultGenerationConfig(), nil, 2)
	assert.Equal(t, StatusOK, response.Status)
	assert.Equal(t, 2, client.Calls())
}

func TestPipelineDoesNotRetryNonRetryable(t *testing.T) {
	client := NewMockClient()
	client.FailWith(&ProviderError{Provider: "anthropic", StatusCode: 401, Message: "bad key"})
	pipeline := newTestPipeline(client)

	response := pipeline.Call(context.Background(), "hi", testKeys, testSettings(), experiment.DefaultGenerationConfig(), nil, 5)
	assert.Equal(t, StatusAuthenticationError, response.Status)
	assert.Equal(t, 1, client.Calls())
}

func TestPipelineAppendsInstruction(t *testing.T) {
	var seenPrompt string
	client := ClientFunc(func(_ context.Context, req Request) (Result, error) {
		seenPrompt = req.Prompt
		return Result{Text: `{"answer": "yes"}`, StopReason: StopReasonStop}, nil
	})
	pipeline := newTestPipeline(client)

	config := &experiment.StructuredOutputConfig{
		Enabled:        true,
		Type:           experiment.StructuredOutputTypeJSONFormat,
		AppendToPrompt: true,
		Schema: &experiment.StructuredOutputSchema{
			Type: experiment.DataTypeObject,
			Properties: []experiment.SchemaProperty{
				{Name: "answer", Schema: &experiment.StructuredOutputSchema{Type: experiment.DataTypeString}},
			},
		},
	}

	response := pipeline.Call(context.Background(), "base prompt", testKeys, testSettings(), experiment.DefaultGenerationConfig(), config, 0)
	require.Equal(t, StatusOK, response.Status)
	assert.Contains(t, seenPrompt, "base prompt")
	assert.Contains(t, seenPrompt, "Return only valid JSON")

	parsed, ok := response.Parsed.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "yes", parsed["answer"])
}

func TestPipelineParseErrorKeepsText(t *testing.T) {
	client := ClientFunc(func(_ context.Context, _ Request) (Result, error) {
		return Result{Text: "not json", StopReason: StopReasonStop}, nil
	})
	pipeline := newTestPipeline(client)

	config := &experiment.StructuredOutputConfig{
		Enabled:        true,
		Type:           experiment.StructuredOutputTypeJSONFormat,
		AppendToPrompt: true,
		Schema: &experiment.StructuredOutputSchema{
			Type: experiment.DataTypeObject,
			Properties: []experiment.SchemaProperty{
				{Name: "answer", Schema: &experiment.StructuredOutputSchema{Type: experiment.DataTypeString}},
			},
		},
	}

	response := pipeline.Call(context.Background(), "hi", testKeys, testSettings(), experiment.DefaultGenerationConfig(), config, 0)
	assert.Equal(t, StatusParseError, response.Status)
	assert.Equal(t, "not json", response.Text)
	assert.NotEmpty(t, response.ErrorMessage)
}

func TestPipelineSchemaValidationFailure(t *testing.T) {
	client := ClientFunc(func(_ context.Context, _ Request) (Result, error) {
		return Result{Text: `{"other": 1}`, StopReason: StopReasonStop}, nil
	})
	pipeline := newTestPipeline(client)

	config := &experiment.StructuredOutputConfig{
		Enabled:        true,
		Type:           experiment.StructuredOutputTypeJSONSchema,
		AppendToPrompt: true,
		Schema: &experiment.StructuredOutputSchema{
			Type: experiment.DataTypeObject,
			Properties: []experiment.SchemaProperty{
				{Name: "answer", Schema: &experiment.StructuredOutputSchema{Type: experiment.DataTypeString}},
			},
		},
	}

	response := pipeline.Call(context.Background(), "hi", testKeys, testSettings(), experiment.DefaultGenerationConfig(), config, 0)
	assert.Equal(t, StatusParseError, response.Status)
	assert.Equal(t, `{"other": 1}`, response.Text)
}

func TestPipelineStopReasons(t *testing.T) {
	tests := []struct {
		name   string
		stop   StopReason
		status Status
	}{
		{name: "length", stop: StopReasonLength, status: StatusLengthError},
		{name: "refusal", stop: StopReasonRefusal, status: StatusRefusalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := ClientFunc(func(_ context.Context, _ Request) (Result, error) {
				return Result{Text: "partial", StopReason: tt.stop}, nil
			})
			pipeline := newTestPipeline(client)
			response := pipeline.Call(context.Background(), "hi", testKeys, testSettings(), experiment.DefaultGenerationConfig(), nil, 0)
			assert.Equal(t, tt.status, response.Status)
			assert.Equal(t, "partial", response.Text)
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: StatusProviderUnavailableError},
		{name: "canceled", err: context.Canceled, want: StatusInternalError},
		{name: "timeout", err: &net.DNSError{IsTimeout: true}, want: StatusProviderUnavailableError},
		{name: "unauthorized", err: &ProviderError{StatusCode: 401}, want: StatusAuthenticationError},
		{name: "forbidden", err: &ProviderError{StatusCode: 403}, want: StatusAuthenticationError},
		{name: "rate limited", err: &ProviderError{StatusCode: 429}, want: StatusQuotaError},
		{name: "payment required", err: &ProviderError{StatusCode: 402}, want: StatusQuotaError},
		{name: "server error", err: &ProviderError{StatusCode: 500}, want: StatusProviderUnavailableError},
		{name: "bad request api key", err: &ProviderError{StatusCode: 400, Message: "invalid API key"}, want: StatusConfigError},
		{name: "bad request other", err: &ProviderError{StatusCode: 400, Message: "bad payload"}, want: StatusUnknownError},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: StatusProviderUnavailableError},
		{name: "mystery", err: errors.New("something odd"), want: StatusUnknownError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestPipelineHonorsContextCancellation(t *testing.T) {
	client := NewMockClient()
	client.FailWith(
		&ProviderError{StatusCode: 503, Message: "down"},
		&ProviderError{StatusCode: 503, Message: "down"},
	)
	registry := NewRegistry()
	registry.Register(experiment.APIKeyTypeAnthropic, client)
	pipeline := NewPipeline(registry, func(o *PipelineOptions) {
		o.RetryDelay = time.Minute
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	response := pipeline.Call(ctx, "hi", testKeys, testSettings(), experiment.DefaultGenerationConfig(), nil, 3)
	// The cancelled context surfaces as a non-retryable internal error, so
	// the pipeline returns without waiting out the backoff.
	assert.Equal(t, StatusInternalError, response.Status)
	assert.Equal(t, 1, client.Calls())
}
