// Package agent drives autonomous participants through an experiment. The
// Orchestrator is triggered whenever an agent participant may need to act on
// its current stage; it dispatches to the stage's handler, runs the model
// when needed, persists the answer and advances the participant. Chat stages
// are handed to the turn coordinator and never advanced here.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PAIR-code/deliberate-lab-sub006/chat"
	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/logging"
	"github.com/PAIR-code/deliberate-lab-sub006/model"
	"github.com/PAIR-code/deliberate-lab-sub006/prompt"
	"github.com/PAIR-code/deliberate-lab-sub006/stage"
	"github.com/PAIR-code/deliberate-lab-sub006/store"
	"github.com/PAIR-code/deliberate-lab-sub006/structured"
)

// Result reports what one completion attempt did. A failed model call is a
// Result, not an error; errors are reserved for store access problems.
type Result struct {
	// Advanced is true when the participant moved to a new stage.
	Advanced bool
	// NextStageID is the stage moved to; empty when the experiment ended or
	// the participant stayed put.
	NextStageID string
	// Status is the model call status when a call was made.
	Status model.Status
	// Turn is set for conversational stages.
	Turn *chat.Turn
	// Reason explains why nothing happened.
	Reason string
}

// CompletionRequest identifies the participant to act for.
type CompletionRequest struct {
	Experiment   *experiment.Experiment
	Profile      *experiment.ParticipantProfile
	Participants []experiment.ParticipantProfile
	Keys         model.APIKeys
	// Trigger is the chat message being responded to; required for
	// conversational stages unless the stage opens with a configured
	// initial message.
	Trigger *experiment.ChatMessage
}

// Options configures an Orchestrator.
type Options struct {
	Logger logging.Logger
	// Now supplies backfill and answer timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs stage completions for agent participants.
type Orchestrator struct {
	store       store.Store
	stages      *stage.Manager
	assembler   *prompt.Assembler
	pipeline    *model.Pipeline
	coordinator *chat.Coordinator
	logger      logging.Logger
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	st store.Store,
	stages *stage.Manager,
	assembler *prompt.Assembler,
	pipeline *model.Pipeline,
	coordinator *chat.Coordinator,
	optFns ...func(o *Options),
) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:       st,
		stages:      stages,
		assembler:   assembler,
		pipeline:    pipeline,
		coordinator: coordinator,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// CompleteStage attempts to complete the participant's current stage. Only
// in-progress agent participants act; anything else is a quiet no-op. Model
// failures never advance the participant, they are logged and reported in
// the Result so the next trigger can retry.
func (o *Orchestrator) CompleteStage(ctx context.Context, req CompletionRequest) (Result, error) {
	profile := req.Profile
	if !profile.IsAgent() {
		return Result{Reason: "not an agent"}, nil
	}
	if profile.Status != experiment.ParticipantStatusInProgress {
		return Result{Reason: "participant not in progress"}, nil
	}

	var stageConfig experiment.StageConfig
	if err := o.store.Get(ctx, store.StagePath(req.Experiment.ID, profile.CurrentStageID), &stageConfig); err != nil {
		return Result{}, fmt.Errorf("load stage %s: %w", profile.CurrentStageID, err)
	}

	if err := o.backfillTimestamps(ctx, req.Experiment.ID, profile, &stageConfig); err != nil {
		return Result{}, err
	}

	handler := o.stages.Get(stageConfig.Kind)
	stageConfig = handler.ResolveVariables(stageConfig, o.variableValues(profile))

	if stageConfig.Kind.IsChat() {
		return o.completeChatStage(ctx, req, &stageConfig)
	}

	actions := handler.AgentActions(profile, &stageConfig)
	if !actions.CallAPI && !actions.MoveToNextStage {
		return Result{Reason: "stage waits for external action"}, nil
	}

	result := Result{}
	if actions.CallAPI {
		status, answered, err := o.callAndPersist(ctx, req, handler, &stageConfig)
		if err != nil {
			return Result{}, err
		}
		result.Status = status
		if !answered {
			o.logger.Warn("Stage completion call failed",
				"participant", profile.PublicID,
				"stage", stageConfig.ID,
				"status", string(status),
			)
			result.Reason = "model call did not produce an answer"
			return result, nil
		}
	}

	if actions.MoveToNextStage {
		next, err := o.advance(ctx, req.Experiment, profile)
		if err != nil {
			return Result{}, err
		}
		result.Advanced = true
		result.NextStageID = next
	}
	return result, nil
}

// completeChatStage delegates to the turn coordinator. Chat stages never
// advance from here; advancement is driven by readiness outside the engine.
func (o *Orchestrator) completeChatStage(ctx context.Context, req CompletionRequest, stageConfig *experiment.StageConfig) (Result, error) {
	promptConfig, err := o.resolvePrompt(ctx, req.Experiment.ID, stageConfig, req.Profile)
	if err != nil {
		return Result{}, err
	}
	turnReq := chat.TurnRequest{
		Experiment:   req.Experiment,
		CohortID:     req.Profile.CohortID,
		StageConfig:  stageConfig,
		Profile:      req.Profile,
		Participants: req.Participants,
		Trigger:      req.Trigger,
		PromptConfig: promptConfig,
		Keys:         req.Keys,
	}

	var turn chat.Turn
	if req.Trigger == nil {
		turn, err = o.coordinator.SendInitialMessage(ctx, turnReq)
	} else {
		turn, err = o.coordinator.RespondToTrigger(ctx, turnReq)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Status: turn.Status, Turn: &turn}, nil
}

// callAndPersist runs the stage's single-shot completion and writes the
// extracted answer. Returns answered=false on any failure along the way.
func (o *Orchestrator) callAndPersist(ctx context.Context, req CompletionRequest, handler stage.Handler, stageConfig *experiment.StageConfig) (model.Status, bool, error) {
	promptConfig, err := o.resolvePrompt(ctx, req.Experiment.ID, stageConfig, req.Profile)
	if err != nil {
		return "", false, err
	}

	text, err := o.assembler.Assemble(ctx, promptConfig.Prompt, &prompt.Context{
		Experiment:   req.Experiment,
		CohortID:     req.Profile.CohortID,
		StageID:      stageConfig.ID,
		Profile:      req.Profile,
		Participants: req.Participants,
	})
	if err != nil {
		return "", false, fmt.Errorf("assemble prompt: %w", err)
	}

	settings := req.Profile.AgentConfig.ModelSettings
	response := o.pipeline.Call(ctx, text, req.Keys, settings, promptConfig.GenerationConfig, promptConfig.StructuredOutputConfig, promptConfig.NumRetries)
	if response.Status != model.StatusOK {
		return response.Status, false, nil
	}

	answer := handler.ExtractAnswer(req.Profile, stageConfig, promptConfig, response.Parsed)
	if answer == nil {
		if structured.Enabled(promptConfig.StructuredOutputConfig) {
			return model.StatusParseError, false, nil
		}
		// No structured answer expected; the call itself completes the
		// stage.
		return response.Status, true, nil
	}

	answer.Timestamp = o.now()
	path := store.AnswerPath(req.Experiment.ID, req.Profile.PrivateID, stageConfig.ID)
	if err := o.store.Set(ctx, path, answer); err != nil {
		return response.Status, false, fmt.Errorf("persist answer: %w", err)
	}
	if applyProfileAnswer(req.Profile, answer) {
		if err := o.store.Set(ctx, store.ParticipantPath(req.Experiment.ID, req.Profile.PrivateID), req.Profile); err != nil {
			return response.Status, false, fmt.Errorf("persist profile identity: %w", err)
		}
	}
	return response.Status, true, nil
}

// applyProfileAnswer copies a profile stage's model-chosen identity onto the
// participant. Empty fields leave the existing values untouched.
func applyProfileAnswer(profile *experiment.ParticipantProfile, answer *experiment.StageAnswer) bool {
	if answer.Kind != experiment.StageKindProfile {
		return false
	}
	changed := false
	if answer.ProfileName != "" {
		profile.Name = answer.ProfileName
		changed = true
	}
	if answer.ProfileAvatar != "" {
		profile.Avatar = answer.ProfileAvatar
		changed = true
	}
	if answer.ProfilePronouns != "" {
		profile.Pronouns = answer.ProfilePronouns
		changed = true
	}
	return changed
}

// advance moves the participant to the next stage, or completes the
// experiment when none remains.
func (o *Orchestrator) advance(ctx context.Context, exp *experiment.Experiment, profile *experiment.ParticipantProfile) (string, error) {
	next := exp.NextStageID(profile.CurrentStageID)
	if next == "" {
		profile.Status = experiment.ParticipantStatusCompleted
	} else {
		profile.CurrentStageID = next
	}
	if profile.Timestamps.ReadyStages == nil {
		profile.Timestamps.ReadyStages = map[string]time.Time{}
	}
	if err := o.store.Set(ctx, store.ParticipantPath(exp.ID, profile.PrivateID), profile); err != nil {
		return "", fmt.Errorf("persist participant: %w", err)
	}
	o.logger.Info("Agent advanced",
		"participant", profile.PublicID,
		"next_stage", next,
		"status", string(profile.Status),
	)
	return next, nil
}

// backfillTimestamps fills lifecycle milestones an agent never sets itself.
// Zero fields are filled once and never overwritten, so repeated triggers
// are idempotent.
func (o *Orchestrator) backfillTimestamps(ctx context.Context, experimentID string, profile *experiment.ParticipantProfile, stageConfig *experiment.StageConfig) error {
	changed := false
	now := o.now()

	if profile.Timestamps.StartExperiment.IsZero() {
		profile.Timestamps.StartExperiment = now
		changed = true
	}
	if profile.Timestamps.AcceptedTOS.IsZero() {
		profile.Timestamps.AcceptedTOS = now
		changed = true
	}
	if profile.Timestamps.ReadyStages == nil {
		profile.Timestamps.ReadyStages = map[string]time.Time{}
	}
	if _, ok := profile.Timestamps.ReadyStages[stageConfig.ID]; !ok {
		profile.Timestamps.ReadyStages[stageConfig.ID] = now
		changed = true
	}

	if !changed {
		return nil
	}
	if err := o.store.Set(ctx, store.ParticipantPath(experimentID, profile.PrivateID), profile); err != nil {
		return fmt.Errorf("backfill timestamps: %w", err)
	}
	return nil
}

// resolvePrompt loads the stored prompt config for the agent and stage,
// falling back to the handler default. Fields the stored config leaves
// unset, including an empty prompt tree, fill in from the default.
func (o *Orchestrator) resolvePrompt(ctx context.Context, experimentID string, stageConfig *experiment.StageConfig, profile *experiment.ParticipantProfile) (*experiment.PromptConfig, error) {
	handler := o.stages.Get(stageConfig.Kind)
	defaultConfig := handler.DefaultPrompt(stageConfig)

	var stored experiment.PromptConfig
	path := store.PromptConfigPath(experimentID, stageConfig.ID, profile.AgentConfig.AgentID)
	err := o.store.Get(ctx, path, &stored)
	if errors.Is(err, store.ErrNotFound) {
		return defaultConfig, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load prompt config: %w", err)
	}

	if len(stored.Prompt) == 0 {
		stored.Prompt = defaultConfig.Prompt
	}
	if stored.StructuredOutputConfig == nil {
		stored.StructuredOutputConfig = defaultConfig.StructuredOutputConfig
	}
	if stored.GenerationConfig == (experiment.GenerationConfig{}) {
		stored.GenerationConfig = defaultConfig.GenerationConfig
	}
	return &stored, nil
}

// variableValues builds the placeholder bindings available to stage text.
func (o *Orchestrator) variableValues(profile *experiment.ParticipantProfile) map[string]string {
	return map[string]string{
		"name":          profile.DisplayName(),
		"avatar":        profile.Avatar,
		"participantId": profile.PublicID,
	}
}
