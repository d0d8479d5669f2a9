package model

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/logging"
	"github.com/PAIR-code/deliberate-lab-sub006/structured"
)

// Observer receives pipeline outcomes for metrics export. Implementations
// must be safe for concurrent use.
type Observer interface {
	CallCompleted(apiType experiment.APIKeyType, status Status, attempts int)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Logger receives per-call diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Observer receives call outcomes. Nil disables observation.
	Observer Observer
	// RetryDelay is the initial backoff after a transient failure;
	// doubled per attempt with jitter. Defaults to one second.
	RetryDelay time.Duration
	// MaxRetryDelay caps the backoff. Defaults to ten seconds.
	MaxRetryDelay time.Duration
}

// Pipeline calls a provider client with a prompt, retries transient
// failures and classifies every outcome into a Response status. It never
// returns an error or panics past its boundary: callers always receive a
// Response, including on total failure.
type Pipeline struct {
	registry *Registry
	opts     PipelineOptions
}

// NewPipeline constructs a Pipeline over a provider registry.
func NewPipeline(registry *Registry, optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := PipelineOptions{
		Logger:        logging.NoOpLogger{},
		RetryDelay:    time.Second,
		MaxRetryDelay: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Pipeline{registry: registry, opts: opts}
}

// Call runs one model completion. The structured-output instruction is
// appended to the prompt when applicable, and on an OK transport response
// the text is parsed and validated against the schema; parse failures
// downgrade the status to structured_output_parse_error while preserving
// the raw text. Only provider_unavailable_error outcomes are retried, up to
// numRetries additional attempts.
func (p *Pipeline) Call(
	ctx context.Context,
	prompt string,
	keys APIKeys,
	settings experiment.ModelSettings,
	generation experiment.GenerationConfig,
	outputConfig *experiment.StructuredOutputConfig,
	numRetries int,
) Response {
	if settings.Model == "" {
		return p.finish(settings.APIType, 1, Response{
			Status:       StatusConfigError,
			ErrorMessage: "no model name configured",
		})
	}
	apiKey, ok := keys.ForType(settings.APIType)
	if !ok {
		return p.finish(settings.APIType, 1, Response{
			Status:       StatusConfigError,
			ErrorMessage: "no API key configured for provider " + string(settings.APIType),
		})
	}
	client, err := p.registry.Resolve(settings.APIType)
	if err != nil {
		return p.finish(settings.APIType, 1, Response{
			Status:       StatusConfigError,
			ErrorMessage: err.Error(),
		})
	}

	if instruction := structured.InstructionPrompt(outputConfig, true); instruction != "" {
		prompt = prompt + "\n" + instruction
	}

	req := Request{
		APIKey:     apiKey,
		BaseURL:    keys.OllamaBaseURL,
		Model:      settings.Model,
		Prompt:     prompt,
		Generation: generation,
	}
	if settings.APIType == experiment.APIKeyTypeOpenAI {
		req.BaseURL = keys.OpenAIBaseURL
	}

	if numRetries < 0 {
		numRetries = 0
	}
	delay := p.opts.RetryDelay

	var response Response
	attempts := 0
	for attempt := 0; attempt <= numRetries; attempt++ {
		attempts = attempt + 1
		result, err := client.Call(ctx, req)
		if err != nil {
			status := classifyError(err)
			response = Response{Status: status, ErrorMessage: err.Error()}
			p.opts.Logger.Warn("model call failed",
				"provider", string(settings.APIType),
				"model", settings.Model,
				"status", string(status),
				"attempt", attempts,
			)
			if !status.IsRetryable() || attempt == numRetries {
				return p.finish(settings.APIType, attempts, response)
			}
			if !sleepWithContext(ctx, jitter(delay)) {
				return p.finish(settings.APIType, attempts, response)
			}
			delay = minDuration(delay*2, p.opts.MaxRetryDelay)
			continue
		}
		response = p.interpret(result, outputConfig)
		return p.finish(settings.APIType, attempts, response)
	}
	return p.finish(settings.APIType, attempts, response)
}

// interpret converts a raw provider result into a classified Response,
// applying stop-reason classification and structured-output parsing.
func (p *Pipeline) interpret(result Result, outputConfig *experiment.StructuredOutputConfig) Response {
	switch result.StopReason {
	case StopReasonLength:
		return Response{Status: StatusLengthError, Text: result.Text, ErrorMessage: "output truncated at token cap"}
	case StopReasonRefusal:
		return Response{Status: StatusRefusalError, Text: result.Text, ErrorMessage: "model declined to respond"}
	}

	response := Response{Status: StatusOK, Text: result.Text}
	if !structured.Enabled(outputConfig) {
		return response
	}

	parsed, err := structured.Parse(result.Text)
	if err != nil {
		return Response{Status: StatusParseError, Text: result.Text, ErrorMessage: err.Error()}
	}
	if outputConfig.Type == experiment.StructuredOutputTypeJSONSchema {
		if err := structured.Validate(outputConfig.Schema, parsed); err != nil {
			return Response{Status: StatusParseError, Text: result.Text, ErrorMessage: err.Error()}
		}
	}
	response.Parsed = parsed
	return response
}

func (p *Pipeline) finish(apiType experiment.APIKeyType, attempts int, response Response) Response {
	if p.opts.Observer != nil {
		p.opts.Observer.CallCompleted(apiType, response.Status, attempts)
	}
	return response
}

// classifyError maps transport and SDK failures onto the closed status set.
func classifyError(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusProviderUnavailableError
	}
	if errors.Is(err, context.Canceled) {
		return StatusInternalError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusProviderUnavailableError
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		switch code := providerErr.StatusCode; {
		case code == 401 || code == 403:
			return StatusAuthenticationError
		case code == 402 || code == 429:
			return StatusQuotaError
		case code == 408 || code == 425 || code >= 500:
			return StatusProviderUnavailableError
		case code == 400:
			msg := strings.ToLower(providerErr.Message)
			if strings.Contains(msg, "api key") || strings.Contains(msg, "model") {
				return StatusConfigError
			}
			return StatusUnknownError
		default:
			return StatusUnknownError
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable") {
		return StatusProviderUnavailableError
	}
	return StatusUnknownError
}

// jitter randomizes a delay into [0.5d, 1.5d] so racing retries spread out.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(d) * factor)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
