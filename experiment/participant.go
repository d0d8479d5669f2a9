package experiment

import "time"

// ParticipantStatus tracks a participant's lifecycle within an experiment.
type ParticipantStatus string

const (
	ParticipantStatusNotStarted ParticipantStatus = "notStarted"
	ParticipantStatusInProgress ParticipantStatus = "inProgress"
	ParticipantStatusCompleted  ParticipantStatus = "completed"
	ParticipantStatusDropped    ParticipantStatus = "dropped"
)

// APIKeyType selects which model provider client serves an agent's calls.
// Provider routing is a pure lookup; it is never retried across providers.
type APIKeyType string

const (
	APIKeyTypeAnthropic APIKeyType = "anthropic"
	APIKeyTypeOpenAI    APIKeyType = "openai"
	APIKeyTypeGemini    APIKeyType = "gemini"
	APIKeyTypeOllama    APIKeyType = "ollama"
)

// ModelSettings names the provider and model an agent uses.
type ModelSettings struct {
	APIType APIKeyType `json:"apiType"`
	Model   string     `json:"model"`
}

// GenerationConfig carries sampling parameters passed through to the
// provider client unchanged.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int64   `json:"maxOutputTokens"`
}

// DefaultGenerationConfig returns the sampling defaults used when a prompt
// config does not override them.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{Temperature: 0.7, TopP: 1.0, MaxOutputTokens: 1024}
}

// AgentConfig marks a participant or mediator as autonomous and names its
// persona and model.
type AgentConfig struct {
	AgentID       string        `json:"agentId"`
	PromptContext string        `json:"promptContext"`
	ModelSettings ModelSettings `json:"modelSettings"`
}

// ParticipantTimestamps records lifecycle milestones. Fields are backfilled
// on an agent's first touch and never overwritten once set.
type ParticipantTimestamps struct {
	StartExperiment time.Time            `json:"startExperiment,omitzero"`
	AcceptedTOS     time.Time            `json:"acceptedTOS,omitzero"`
	ReadyStages     map[string]time.Time `json:"readyStages,omitempty"`
}

// ParticipantProfile is the engine's view of one participant or mediator.
// PublicID is visible to other participants; PrivateID addresses private
// storage.
type ParticipantProfile struct {
	PublicID       string                `json:"publicId"`
	PrivateID      string                `json:"privateId"`
	Name           string                `json:"name"`
	Avatar         string                `json:"avatar"`
	Pronouns       string                `json:"pronouns,omitempty"`
	Type           UserType              `json:"type"`
	CohortID       string                `json:"cohortId"`
	CurrentStageID string                `json:"currentStageId"`
	Status         ParticipantStatus     `json:"status"`
	Timestamps     ParticipantTimestamps `json:"timestamps"`
	// AgentConfig is nil for human participants.
	AgentConfig *AgentConfig `json:"agentConfig,omitempty"`
}

// IsAgent reports whether the profile is driven by a model.
func (p *ParticipantProfile) IsAgent() bool { return p.AgentConfig != nil }

// DisplayName returns the name others see, falling back to the public id.
func (p *ParticipantProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.PublicID
}
