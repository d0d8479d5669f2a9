package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

// StopReason normalizes why a provider stopped generating.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonRefusal StopReason = "refusal"
)

// Request is the normalized provider call input. Prompt is the fully
// assembled text including any structured-output instruction.
type Request struct {
	APIKey     string
	BaseURL    string
	Model      string
	Prompt     string
	Generation experiment.GenerationConfig
}

// Result is a provider's raw successful output.
type Result struct {
	Text       string
	StopReason StopReason
}

// Client is the uniform Model Provider Client contract. Adapters translate
// the normalized request into vendor SDK calls and report failures as
// errors, preferably *ProviderError so the pipeline can classify them.
type Client interface {
	Call(ctx context.Context, req Request) (Result, error)
}

// APIKeys holds the experiment creator's provider credentials. Routing by
// APIKeyType selects which entry a call uses.
type APIKeys struct {
	AnthropicAPIKey string `json:"anthropicApiKey" yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `json:"openAIApiKey" yaml:"openai_api_key"`
	OpenAIBaseURL   string `json:"openAIBaseUrl" yaml:"openai_base_url"`
	GeminiAPIKey    string `json:"geminiApiKey" yaml:"gemini_api_key"`
	OllamaBaseURL   string `json:"ollamaBaseUrl" yaml:"ollama_base_url"`
}

// ForType returns the credential for a provider type. The second return is
// false when no credential is configured.
func (k APIKeys) ForType(apiType experiment.APIKeyType) (string, bool) {
	switch apiType {
	case experiment.APIKeyTypeAnthropic:
		return k.AnthropicAPIKey, k.AnthropicAPIKey != ""
	case experiment.APIKeyTypeOpenAI:
		return k.OpenAIAPIKey, k.OpenAIAPIKey != ""
	case experiment.APIKeyTypeGemini:
		return k.GeminiAPIKey, k.GeminiAPIKey != ""
	case experiment.APIKeyTypeOllama:
		// Ollama authenticates by reachability, not key.
		return "", k.OllamaBaseURL != ""
	default:
		return "", false
	}
}

// Registry maps provider types to clients. Built once at startup; lookups
// are read-mostly and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[experiment.APIKeyType]Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[experiment.APIKeyType]Client)}
}

// Register binds a client to a provider type, replacing any previous one.
func (r *Registry) Register(apiType experiment.APIKeyType, client Client) {
	r.mu.Lock()
	r.clients[apiType] = client
	r.mu.Unlock()
}

// Resolve returns the client for a provider type.
func (r *Registry) Resolve(apiType experiment.APIKeyType) (Client, error) {
	r.mu.RLock()
	client, ok := r.clients[apiType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no client registered for api type %q", apiType)
	}
	return client, nil
}

// ClientFunc adapts a plain function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Result, error)

// Call implements Client.
func (f ClientFunc) Call(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// MockClient is a lightweight in-memory Client for tests. Responses are
// keyed by prompt; unknown prompts get a generic echo.
type MockClient struct {
	mu        sync.Mutex
	responses map[string]Result
	errs      []error
	calls     int
}

// NewMockClient constructs an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{responses: make(map[string]Result)}
}

// AddResponse registers a canned result for a prompt.
func (m *MockClient) AddResponse(prompt string, result Result) {
	m.mu.Lock()
	m.responses[prompt] = result
	m.mu.Unlock()
}

// FailWith queues errors returned by successive calls before any canned
// response is served. Used to exercise retry behavior.
func (m *MockClient) FailWith(errs ...error) {
	m.mu.Lock()
	m.errs = append(m.errs, errs...)
	m.mu.Unlock()
}

// Calls returns how many times Call has been invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Call implements Client.
func (m *MockClient) Call(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return Result{}, err
	}
	if result, ok := m.responses[req.Prompt]; ok {
		return result, nil
	}
	return Result{Text: "Mock response to: " + req.Prompt, StopReason: StopReasonStop}, nil
}
