package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PAIR-code/deliberate-lab-sub006/chat"
	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/model"
	"github.com/PAIR-code/deliberate-lab-sub006/prompt"
	"github.com/PAIR-code/deliberate-lab-sub006/stage"
	"github.com/PAIR-code/deliberate-lab-sub006/store"
)

type fixture struct {
	store        *store.Memory
	orchestrator *Orchestrator
	experiment   *experiment.Experiment
	profile      *experiment.ParticipantProfile
}

func newFixture(t *testing.T, responseText string) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	registry := model.NewRegistry()
	registry.Register(experiment.APIKeyTypeAnthropic, model.ClientFunc(func(_ context.Context, _ model.Request) (model.Result, error) {
		return model.Result{Text: responseText, StopReason: model.StopReasonStop}, nil
	}))
	pipeline := model.NewPipeline(registry, func(o *model.PipelineOptions) { o.RetryDelay = 0 })
	stages := stage.NewManager()
	assembler := prompt.NewAssembler(st, stages)
	coordinator := chat.NewCoordinator(st, pipeline, assembler, func(o *chat.Options) {
		o.TypingDelay = func(string, float64) time.Duration { return 0 }
	})

	exp := &experiment.Experiment{
		ID:       "exp-1",
		StageIDs: []string{"s-info", "s-survey", "s-chat"},
	}
	require.NoError(t, st.Set(ctx, store.ExperimentPath(exp.ID), exp))
	require.NoError(t, st.Set(ctx, store.StagePath(exp.ID, "s-info"), experiment.StageConfig{
		ID: "s-info", Kind: experiment.StageKindInfo, Name: "Intro",
	}))
	require.NoError(t, st.Set(ctx, store.StagePath(exp.ID, "s-survey"), experiment.StageConfig{
		ID: "s-survey", Kind: experiment.StageKindSurvey, Name: "Survey",
		Survey: &experiment.SurveyStagePayload{
			Questions: []experiment.SurveyQuestion{
				{ID: "q1", Kind: experiment.SurveyQuestionKindText, Title: "Thoughts?"},
			},
		},
	}))
	require.NoError(t, st.Set(ctx, store.StagePath(exp.ID, "s-chat"), experiment.StageConfig{
		ID: "s-chat", Kind: experiment.StageKindChat, Name: "Discussion",
		Chat: &experiment.ChatStagePayload{},
	}))

	profile := &experiment.ParticipantProfile{
		PublicID:       "p-1",
		PrivateID:      "priv-1",
		Name:           "Robin",
		Type:           experiment.UserTypeParticipant,
		CohortID:       "cohort-1",
		CurrentStageID: "s-info",
		Status:         experiment.ParticipantStatusInProgress,
		AgentConfig: &experiment.AgentConfig{
			AgentID:       "agent-1",
			ModelSettings: experiment.ModelSettings{APIType: experiment.APIKeyTypeAnthropic, Model: "test-model"},
		},
	}
	require.NoError(t, st.Set(ctx, store.ParticipantPath(exp.ID, profile.PrivateID), profile))

	return &fixture{
		store:        st,
		orchestrator: NewOrchestrator(st, stages, assembler, pipeline, coordinator),
		experiment:   exp,
		profile:      profile,
	}
}

func (f *fixture) request() CompletionRequest {
	return CompletionRequest{
		Experiment:   f.experiment,
		Profile:      f.profile,
		Participants: []experiment.ParticipantProfile{*f.profile},
		Keys:         model.APIKeys{AnthropicAPIKey: "key"},
	}
}

func TestCompleteStageSkipsNonAgents(t *testing.T) {
	f := newFixture(t, "{}")
	f.profile.AgentConfig = nil

	result, err := f.orchestrator.CompleteStage(context.Background(), f.request())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, "not an agent", result.Reason)
}

func TestCompleteStageSkipsNonInProgress(t *testing.T) {
	f := newFixture(t, "{}")
	f.profile.Status = experiment.ParticipantStatusCompleted

	result, err := f.orchestrator.CompleteStage(context.Background(), f.request())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
}

func TestCompleteStageAdvancesInfoWithoutCall(t *testing.T) {
	f := newFixture(t, "{}")

	result, err := f.orchestrator.CompleteStage(context.Background(), f.request())
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, "s-survey", result.NextStageID)

	var stored experiment.ParticipantProfile
	require.NoError(t, f.store.Get(context.Background(), store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.Equal(t, "s-survey", stored.CurrentStageID)
}

func TestCompleteStageSurveyCallsModelAndPersists(t *testing.T) {
	f := newFixture(t, `{"q1": "It was interesting."}`)
	f.profile.CurrentStageID = "s-survey"

	result, err := f.orchestrator.CompleteStage(context.Background(), f.request())
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, "s-chat", result.NextStageID)
	assert.Equal(t, model.StatusOK, result.Status)

	var answer experiment.StageAnswer
	require.NoError(t, f.store.Get(context.Background(), store.AnswerPath("exp-1", "priv-1", "s-survey"), &answer))
	assert.Equal(t, "It was interesting.", answer.SurveyAnswers["q1"].Text)
	assert.False(t, answer.Timestamp.IsZero())
}

func TestCompleteStageFailedCallDoesNotAdvance(t *testing.T) {
	f := newFixture(t, "this is not json")
	f.profile.CurrentStageID = "s-survey"

	result, err := f.orchestrator.CompleteStage(context.Background(), f.request())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, model.StatusParseError, result.Status)

	// Participant stayed on the survey stage for a later retry.
	var stored experiment.ParticipantProfile
	require.NoError(t, f.store.Get(context.Background(), store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.Equal(t, "s-survey", stored.CurrentStageID)

	err = f.store.Get(context.Background(), store.AnswerPath("exp-1", "priv-1", "s-survey"), &experiment.StageAnswer{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteStageChatDelegatesWithoutAdvancing(t *testing.T) {
	f := newFixture(t, `{"shouldRespond": true, "response": "Hello all", "readyToEndChat": false}`)
	f.profile.CurrentStageID = "s-chat"
	ctx := context.Background()

	trigger := experiment.NewChatMessage("human-1", experiment.UserTypeParticipant, "Hi everyone")
	trigger.Timestamp = time.Now()
	require.NoError(t, f.store.Set(ctx, store.ChatPath("exp-1", "cohort-1", "s-chat", trigger.ID), trigger))

	req := f.request()
	req.Trigger = &trigger
	result, err := f.orchestrator.CompleteStage(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	require.NotNil(t, result.Turn)
	assert.Equal(t, chat.OutcomeSent, result.Turn.Outcome)

	var stored experiment.ParticipantProfile
	require.NoError(t, f.store.Get(ctx, store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.Equal(t, "s-chat", stored.CurrentStageID)
}

func TestCompleteStageFinalStageCompletesParticipant(t *testing.T) {
	f := newFixture(t, "{}")
	f.profile.CurrentStageID = "s-chat"
	// Rewrite the final stage as an info stage so it advances.
	require.NoError(t, f.store.Set(context.Background(), store.StagePath("exp-1", "s-chat"), experiment.StageConfig{
		ID: "s-chat", Kind: experiment.StageKindInfo, Name: "Outro",
	}))

	result, err := f.orchestrator.CompleteStage(context.Background(), f.request())
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Empty(t, result.NextStageID)

	var stored experiment.ParticipantProfile
	require.NoError(t, f.store.Get(context.Background(), store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.Equal(t, experiment.ParticipantStatusCompleted, stored.Status)
}

func TestBackfillTimestampsIsIdempotent(t *testing.T) {
	f := newFixture(t, "{}")
	ctx := context.Background()

	_, err := f.orchestrator.CompleteStage(ctx, f.request())
	require.NoError(t, err)

	var first experiment.ParticipantProfile
	require.NoError(t, f.store.Get(ctx, store.ParticipantPath("exp-1", "priv-1"), &first))
	require.False(t, first.Timestamps.StartExperiment.IsZero())
	require.Contains(t, first.Timestamps.ReadyStages, "s-info")

	// A second pass over the same participant never rewrites set fields.
	f.profile = &first
	_, err = f.orchestrator.CompleteStage(ctx, f.request())
	require.NoError(t, err)

	var second experiment.ParticipantProfile
	require.NoError(t, f.store.Get(ctx, store.ParticipantPath("exp-1", "priv-1"), &second))
	assert.Equal(t, first.Timestamps.StartExperiment, second.Timestamps.StartExperiment)
	assert.Equal(t, first.Timestamps.ReadyStages["s-info"], second.Timestamps.ReadyStages["s-info"])
}

func TestCompleteStageProfileFillsIdentity(t *testing.T) {
	f := newFixture(t, `{"name": " Riley ", "emoji": "🦉", "pronouns": "they/them"}`)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, store.StagePath("exp-1", "s-info"), experiment.StageConfig{
		ID: "s-info", Kind: experiment.StageKindProfile, Name: "Profile",
		Profile: &experiment.ProfileStagePayload{ProfileType: experiment.ProfileTypeDefault},
	}))

	result, err := f.orchestrator.CompleteStage(ctx, f.request())
	require.NoError(t, err)
	assert.True(t, result.Advanced)

	var stored experiment.ParticipantProfile
	require.NoError(t, f.store.Get(ctx, store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.Equal(t, "Riley", stored.Name)
	assert.Equal(t, "🦉", stored.Avatar)
	assert.Equal(t, "they/them", stored.Pronouns)

	var answer experiment.StageAnswer
	require.NoError(t, f.store.Get(ctx, store.AnswerPath("exp-1", "priv-1", "s-info"), &answer))
	assert.Equal(t, "Riley", answer.ProfileName)
}

func TestCompleteStageAnonymousProfileSkipsModel(t *testing.T) {
	// The fixture client returns unparseable text, so any model call would
	// fail the stage; anonymous profiles must advance without one.
	f := newFixture(t, "this is not json")
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, store.StagePath("exp-1", "s-info"), experiment.StageConfig{
		ID: "s-info", Kind: experiment.StageKindProfile, Name: "Profile",
		Profile: &experiment.ProfileStagePayload{ProfileType: experiment.ProfileTypeAnonymous},
	}))

	result, err := f.orchestrator.CompleteStage(ctx, f.request())
	require.NoError(t, err)
	assert.True(t, result.Advanced)

	var stored experiment.ParticipantProfile
	require.NoError(t, f.store.Get(ctx, store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.Equal(t, "Robin", stored.Name)
}

func TestBackfillAcceptedTOSOnFirstTouch(t *testing.T) {
	f := newFixture(t, "{}")
	ctx := context.Background()

	// The first stage is an info stage; TOS acceptance is still backfilled
	// on first touch, not gated on a tos stage being current.
	_, err := f.orchestrator.CompleteStage(ctx, f.request())
	require.NoError(t, err)

	var stored experiment.ParticipantProfile
	require.NoError(t, f.store.Get(ctx, store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.False(t, stored.Timestamps.AcceptedTOS.IsZero())
}

func TestCompleteStageTransferWaits(t *testing.T) {
	f := newFixture(t, "{}")
	require.NoError(t, f.store.Set(context.Background(), store.StagePath("exp-1", "s-info"), experiment.StageConfig{
		ID: "s-info", Kind: experiment.StageKindTransfer, Name: "Transfer",
	}))

	result, err := f.orchestrator.CompleteStage(context.Background(), f.request())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, "stage waits for external action", result.Reason)
}

func TestResolvePromptPrefersStoredConfig(t *testing.T) {
	f := newFixture(t, `{"q1": "answer"}`)
	f.profile.CurrentStageID = "s-survey"
	ctx := context.Background()

	stored := experiment.PromptConfig{
		ID:               "s-survey",
		StageKind:        experiment.StageKindSurvey,
		GenerationConfig: experiment.GenerationConfig{Temperature: 0.2, TopP: 0.9, MaxOutputTokens: 256},
		NumRetries:       1,
	}
	require.NoError(t, f.store.Set(ctx, store.PromptConfigPath("exp-1", "s-survey", "agent-1"), stored))

	var stageConfig experiment.StageConfig
	require.NoError(t, f.store.Get(ctx, store.StagePath("exp-1", "s-survey"), &stageConfig))

	resolved, err := f.orchestrator.resolvePrompt(ctx, "exp-1", &stageConfig, f.profile)
	require.NoError(t, err)
	assert.Equal(t, 0.2, resolved.GenerationConfig.Temperature)
	assert.Equal(t, 1, resolved.NumRetries)
	// The prompt tree and output schema come from the handler default.
	assert.NotEmpty(t, resolved.Prompt)
	require.NotNil(t, resolved.StructuredOutputConfig)
}
