// Package stage maps stage kinds to their kind-specific behavior: default
// prompts, agent eligibility, answer extraction, display rendering and
// variable resolution. Dispatch is a lookup table of handler structs built
// once at startup; kinds without a registered handler fall back to a no-op
// default (no model call, advance the stage).
package stage

import (
	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

// ContextData bundles everything a handler may need to render one stage:
// its config, the conversation (chat stages), and participant answers keyed
// by public id.
type ContextData struct {
	Stage        experiment.StageConfig
	ChatMessages []experiment.ChatMessage
	Answers      map[string]experiment.StageAnswer
	Participants []experiment.ParticipantProfile
}

// AgentActions tells the orchestrator what an agent participant should do
// on a stage: call the model, advance, both, or neither.
type AgentActions struct {
	CallAPI         bool
	MoveToNextStage bool
}

// Handler is the per-kind behavior table. Any nil field inherits the
// default: identity variable resolution, no API call with stage advance,
// no extractable answer, a bare text prompt, and an empty display.
type Handler struct {
	// ResolveVariables substitutes named placeholders in the stage's
	// display text and kind-specific fields, returning a copy.
	ResolveVariables func(stage experiment.StageConfig, values map[string]string) experiment.StageConfig
	// AgentActions decides whether the agent calls the model and whether
	// the stage advances afterwards.
	AgentActions func(participant *experiment.ParticipantProfile, stage *experiment.StageConfig) AgentActions
	// ExtractAnswer maps a parsed structured response into the stage's
	// typed answer, honoring the resolved prompt config's field mappings.
	// Nil result means shape mismatch; the caller must not advance the
	// stage.
	ExtractAnswer func(participant *experiment.ParticipantProfile, stage *experiment.StageConfig, promptConfig *experiment.PromptConfig, parsed any) *experiment.StageAnswer
	// DefaultPrompt supplies the prompt config used when none is stored.
	DefaultPrompt func(stage *experiment.StageConfig) *experiment.PromptConfig
	// DisplayForPrompt renders the stage, with the given participants'
	// answers embedded, for inclusion in another prompt.
	DisplayForPrompt func(participants []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string
}

// Manager is the fixed kind-to-handler registry.
type Manager struct {
	handlers map[experiment.StageKind]Handler
}

// NewManager builds a registry with all built-in handlers installed.
func NewManager() *Manager {
	m := &Manager{handlers: make(map[experiment.StageKind]Handler)}
	m.Register(experiment.StageKindSurvey, surveyHandler())
	m.Register(experiment.StageKindSurveyPerParticipant, surveyPerParticipantHandler())
	m.Register(experiment.StageKindRanking, rankingHandler())
	m.Register(experiment.StageKindChat, chatHandler())
	m.Register(experiment.StageKindPrivateChat, chatHandler())
	m.Register(experiment.StageKindProfile, profileHandler())
	m.Register(experiment.StageKindTransfer, transferHandler())
	m.Register(experiment.StageKindRole, roleHandler())
	m.Register(experiment.StageKindStockInfo, stockInfoHandler())
	m.Register(experiment.StageKindFlipCard, flipCardHandler())
	m.Register(experiment.StageKindAssetAllocation, assetAllocationHandler())
	return m
}

// Register binds a handler to a kind, filling nil fields with defaults.
func (m *Manager) Register(kind experiment.StageKind, h Handler) {
	if h.ResolveVariables == nil {
		h.ResolveVariables = defaultResolveVariables
	}
	if h.AgentActions == nil {
		h.AgentActions = defaultAgentActions
	}
	if h.ExtractAnswer == nil {
		h.ExtractAnswer = defaultExtractAnswer
	}
	if h.DefaultPrompt == nil {
		h.DefaultPrompt = defaultPrompt
	}
	if h.DisplayForPrompt == nil {
		h.DisplayForPrompt = defaultDisplayForPrompt
	}
	m.handlers[kind] = h
}

// Get returns the handler for a kind, or the no-op default handler when the
// kind is unregistered.
func (m *Manager) Get(kind experiment.StageKind) Handler {
	if h, ok := m.handlers[kind]; ok {
		return h
	}
	return defaultHandler()
}

func defaultHandler() Handler {
	return Handler{
		ResolveVariables: defaultResolveVariables,
		AgentActions:     defaultAgentActions,
		ExtractAnswer:    defaultExtractAnswer,
		DefaultPrompt:    defaultPrompt,
		DisplayForPrompt: defaultDisplayForPrompt,
	}
}

// defaultResolveVariables rewrites the shared description fields only.
func defaultResolveVariables(stage experiment.StageConfig, values map[string]string) experiment.StageConfig {
	stage.Descriptions.PrimaryText = substituteVariables(stage.Descriptions.PrimaryText, values)
	stage.Descriptions.InfoText = substituteVariables(stage.Descriptions.InfoText, values)
	return stage
}

// defaultAgentActions advances without a model call, matching info-like
// stages that only need acknowledgment.
func defaultAgentActions(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
	return AgentActions{CallAPI: false, MoveToNextStage: true}
}

func defaultExtractAnswer(*experiment.ParticipantProfile, *experiment.StageConfig, *experiment.PromptConfig, any) *experiment.StageAnswer {
	return nil
}

func defaultPrompt(stage *experiment.StageConfig) *experiment.PromptConfig {
	return &experiment.PromptConfig{
		ID:        stage.ID,
		StageKind: stage.Kind,
		Prompt: []experiment.PromptItem{
			experiment.TextItem{Text: "Please review the stage above and acknowledge it."},
		},
		GenerationConfig: experiment.DefaultGenerationConfig(),
	}
}

func defaultDisplayForPrompt([]experiment.ParticipantProfile, *ContextData, bool) string {
	return ""
}
