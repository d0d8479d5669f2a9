package model

// Status classifies the outcome of a model call. The set is closed and
// wire-visible to operators; every failure mode maps to exactly one status.
type Status string

const (
	StatusOK Status = "ok"
	// StatusParseError marks an OK transport response whose text failed
	// structured-output parsing or validation. Raw text is preserved.
	StatusParseError Status = "structured_output_parse_error"
	// StatusAuthenticationError marks rejected credentials.
	StatusAuthenticationError Status = "authentication_error"
	// StatusQuotaError marks rate or billing limits.
	StatusQuotaError Status = "quota_error"
	// StatusProviderUnavailableError marks transient outages and timeouts.
	// This is the only status the pipeline retries.
	StatusProviderUnavailableError Status = "provider_unavailable_error"
	// StatusRefusalError marks a model declining to answer.
	StatusRefusalError Status = "refusal_error"
	// StatusLengthError marks output truncated at the token cap.
	StatusLengthError Status = "length_error"
	// StatusConfigError marks a missing or invalid API key or model name.
	StatusConfigError Status = "config_error"
	// StatusInternalError marks engine-side failures.
	StatusInternalError Status = "internal_error"
	// StatusUnknownError marks anything unclassified.
	StatusUnknownError Status = "unknown_error"
)

// IsRetryable reports whether the pipeline may retry a call that ended with
// this status. Only transient provider outages qualify.
func (s Status) IsRetryable() bool { return s == StatusProviderUnavailableError }

// Response is the ephemeral result of one model call. Parsed is present
// only when Status is ok and structured-output parsing succeeded. Text is
// preserved on parse failures for operator inspection.
type Response struct {
	Status       Status `json:"status"`
	Text         string `json:"text,omitempty"`
	Parsed       any    `json:"parsedResponse,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// OK reports whether the call succeeded end to end.
func (r Response) OK() bool { return r.Status == StatusOK }
