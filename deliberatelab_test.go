package deliberatelab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PAIR-code/deliberate-lab-sub006/chat"
	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/model"
	"github.com/PAIR-code/deliberate-lab-sub006/store"
)

func newTestEngine(t *testing.T, responseText string) *Engine {
	t.Helper()
	return New(func(o *Options) {
		o.Keys = model.APIKeys{AnthropicAPIKey: "key"}
		o.Clients = map[experiment.APIKeyType]model.Client{
			experiment.APIKeyTypeAnthropic: model.ClientFunc(func(_ context.Context, _ model.Request) (model.Result, error) {
				return model.Result{Text: responseText, StopReason: model.StopReasonStop}, nil
			}),
		}
	})
}

func agentProfile(publicID, privateID, stageID string) *experiment.ParticipantProfile {
	return &experiment.ParticipantProfile{
		PublicID:       publicID,
		PrivateID:      privateID,
		Name:           publicID,
		Type:           experiment.UserTypeParticipant,
		CohortID:       "cohort-1",
		CurrentStageID: stageID,
		Status:         experiment.ParticipantStatusInProgress,
		AgentConfig: &experiment.AgentConfig{
			AgentID:       "agent-" + publicID,
			ModelSettings: experiment.ModelSettings{APIType: experiment.APIKeyTypeAnthropic, Model: "test-model"},
		},
	}
}

func seedExperiment(t *testing.T, e *Engine, stages ...experiment.StageConfig) *experiment.Experiment {
	t.Helper()
	ctx := context.Background()
	exp := &experiment.Experiment{ID: "exp-1"}
	for _, s := range stages {
		exp.StageIDs = append(exp.StageIDs, s.ID)
		require.NoError(t, e.Store().Set(ctx, store.StagePath(exp.ID, s.ID), s))
	}
	require.NoError(t, e.Store().Set(ctx, store.ExperimentPath(exp.ID), exp))
	return exp
}

func TestOnParticipantReadyWalksStages(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, `{"q1": "Fine by me."}`)
	seedExperiment(t, e,
		experiment.StageConfig{ID: "s-info", Kind: experiment.StageKindInfo, Name: "Intro"},
		experiment.StageConfig{
			ID: "s-survey", Kind: experiment.StageKindSurvey, Name: "Survey",
			Survey: &experiment.SurveyStagePayload{
				Questions: []experiment.SurveyQuestion{
					{ID: "q1", Kind: experiment.SurveyQuestionKindText, Title: "Thoughts?"},
				},
			},
		},
	)
	profile := agentProfile("p-1", "priv-1", "s-info")
	require.NoError(t, e.Store().Set(ctx, store.ParticipantPath("exp-1", "priv-1"), profile))

	// First trigger clears the info stage.
	result, err := e.OnParticipantReady(ctx, "exp-1", "priv-1")
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, "s-survey", result.NextStageID)

	// Second trigger answers the survey and completes the experiment.
	result, err = e.OnParticipantReady(ctx, "exp-1", "priv-1")
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Empty(t, result.NextStageID)

	var answer experiment.StageAnswer
	require.NoError(t, e.Store().Get(ctx, store.AnswerPath("exp-1", "priv-1", "s-survey"), &answer))
	assert.Equal(t, "Fine by me.", answer.SurveyAnswers["q1"].Text)

	var stored experiment.ParticipantProfile
	require.NoError(t, e.Store().Get(ctx, store.ParticipantPath("exp-1", "priv-1"), &stored))
	assert.Equal(t, experiment.ParticipantStatusCompleted, stored.Status)
}

func TestOnChatMessageOnlyOneAgentResponds(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, `{"shouldRespond": true, "response": "I agree.", "readyToEndChat": false}`)
	seedExperiment(t, e, experiment.StageConfig{
		ID: "s-chat", Kind: experiment.StageKindChat, Name: "Discussion",
		Chat: &experiment.ChatStagePayload{},
	})

	// One human plus two agents on the chat stage.
	human := &experiment.ParticipantProfile{
		PublicID: "p-human", PrivateID: "priv-human", Name: "Sam",
		Type: experiment.UserTypeParticipant, CohortID: "cohort-1",
		CurrentStageID: "s-chat", Status: experiment.ParticipantStatusInProgress,
	}
	require.NoError(t, e.Store().Set(ctx, store.ParticipantPath("exp-1", "priv-human"), human))
	for _, ids := range [][2]string{{"p-a", "priv-a"}, {"p-b", "priv-b"}} {
		require.NoError(t, e.Store().Set(ctx, store.ParticipantPath("exp-1", ids[1]), agentProfile(ids[0], ids[1], "s-chat")))
	}

	trigger := experiment.NewChatMessage("p-human", experiment.UserTypeParticipant, "What do you all think?")
	trigger.Timestamp = time.Now()
	require.NoError(t, e.Store().Set(ctx, store.ChatPath("exp-1", "cohort-1", "s-chat", trigger.ID), trigger))

	results, err := e.OnChatMessage(ctx, "exp-1", "cohort-1", "s-chat", &trigger)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The first agent claims the trigger; the second sees the conversation
	// has moved past it.
	sent := 0
	for _, r := range results {
		require.NotNil(t, r.Turn)
		assert.False(t, r.Advanced)
		if r.Turn.Outcome == chat.OutcomeSent {
			sent++
		}
	}
	assert.Equal(t, 1, sent)

	messages := listChatMessages(t, e, "exp-1", "cohort-1", "s-chat")
	assert.Len(t, messages, 2)
}

func TestOnChatMessageSkipsAgentsOnOtherStages(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, `{"shouldRespond": true, "response": "hello", "readyToEndChat": false}`)
	seedExperiment(t, e,
		experiment.StageConfig{ID: "s-info", Kind: experiment.StageKindInfo, Name: "Intro"},
		experiment.StageConfig{
			ID: "s-chat", Kind: experiment.StageKindChat, Name: "Discussion",
			Chat: &experiment.ChatStagePayload{},
		},
	)
	require.NoError(t, e.Store().Set(ctx, store.ParticipantPath("exp-1", "priv-a"), agentProfile("p-a", "priv-a", "s-info")))

	trigger := experiment.NewChatMessage("p-human", experiment.UserTypeParticipant, "Anyone here?")
	trigger.Timestamp = time.Now()
	require.NoError(t, e.Store().Set(ctx, store.ChatPath("exp-1", "cohort-1", "s-chat", trigger.ID), trigger))

	results, err := e.OnChatMessage(ctx, "exp-1", "cohort-1", "s-chat", &trigger)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOnChatMessageUnknownExperiment(t *testing.T) {
	e := newTestEngine(t, "{}")
	trigger := experiment.NewChatMessage("p", experiment.UserTypeParticipant, "hi")
	_, err := e.OnChatMessage(context.Background(), "absent", "cohort-1", "s-chat", &trigger)
	assert.Error(t, err)
}

func listChatMessages(t *testing.T, e *Engine, experimentID, cohortID, stageID string) []string {
	t.Helper()
	var ids []string
	err := e.Store().List(context.Background(), store.ChatPrefix(experimentID, cohortID, stageID), func(path string, _ []byte) error {
		ids = append(ids, path)
		return nil
	})
	require.NoError(t, err)
	return ids
}
