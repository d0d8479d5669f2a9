// Package chat coordinates agent turn-taking in conversational stages. Each
// incoming message is a trigger; every eligible agent races to respond, and
// an atomic trigger-log write guarantees at most one committed response per
// trigger and responder category. The typing delay and the pre-commit tail
// check only reduce wasted calls; the trigger log alone is the mutex.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/logging"
	"github.com/PAIR-code/deliberate-lab-sub006/model"
	"github.com/PAIR-code/deliberate-lab-sub006/prompt"
	"github.com/PAIR-code/deliberate-lab-sub006/store"
	"github.com/PAIR-code/deliberate-lab-sub006/structured"
)

// Outcome classifies how a turn attempt ended. Lost races are ordinary
// outcomes, not errors.
type Outcome string

const (
	// OutcomeSent means the agent's message was committed.
	OutcomeSent Outcome = "sent"
	// OutcomeNotEligible means a response gate (cap, minimum message count,
	// self trigger) held the agent back before any model call.
	OutcomeNotEligible Outcome = "not_eligible"
	// OutcomeDeclined means the model chose silence.
	OutcomeDeclined Outcome = "declined"
	// OutcomeMovedOn means newer messages arrived during the typing delay.
	OutcomeMovedOn Outcome = "conversation_moved_on"
	// OutcomeAlreadyHandled means another agent of the same responder
	// category won the trigger.
	OutcomeAlreadyHandled Outcome = "already_responded"
	// OutcomeCallFailed means the model call ended in a non-OK status.
	OutcomeCallFailed Outcome = "call_failed"
)

// Observer receives turn outcomes for metrics export.
type Observer interface {
	TurnCompleted(outcome Outcome)
}

// Turn is the result of one response attempt.
type Turn struct {
	Outcome Outcome
	// Status is the model call status, set whenever a call was made.
	Status model.Status
	// MessageID identifies the committed message on OutcomeSent.
	MessageID string
	// Reason explains silent outcomes for operator logs.
	Reason string
}

// TurnRequest bundles everything one response attempt needs.
type TurnRequest struct {
	Experiment   *experiment.Experiment
	CohortID     string
	StageConfig  *experiment.StageConfig
	Profile      *experiment.ParticipantProfile
	Participants []experiment.ParticipantProfile
	// Trigger is the message being responded to.
	Trigger *experiment.ChatMessage
	// PromptConfig is the resolved prompt for this agent and stage.
	PromptConfig *experiment.PromptConfig
	Keys         model.APIKeys
}

// Options configures a Coordinator.
type Options struct {
	Logger   logging.Logger
	Observer Observer
	// Now supplies commit timestamps. Defaults to time.Now.
	Now func() time.Time
	// TypingDelay overrides the words-per-minute pacing delay when set;
	// used by tests to run without sleeping.
	TypingDelay func(text string, wordsPerMinute float64) time.Duration
}

// Coordinator runs agent response attempts against the store and pipeline.
type Coordinator struct {
	store     store.Store
	pipeline  *model.Pipeline
	assembler *prompt.Assembler
	opts      Options
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(st store.Store, pipeline *model.Pipeline, assembler *prompt.Assembler, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		Now:         time.Now,
		TypingDelay: typingDelay,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TypingDelay == nil {
		opts.TypingDelay = typingDelay
	}
	return &Coordinator{store: st, pipeline: pipeline, assembler: assembler, opts: opts}
}

// CanRespond applies the response gates in order: response cap, minimum
// message count, then self trigger. The returned reason names the first gate
// that failed.
func CanRespond(messages []experiment.ChatMessage, profile *experiment.ParticipantProfile, settings *experiment.AgentChatSettings) (bool, string) {
	if settings == nil {
		settings = &experiment.AgentChatSettings{}
	}
	if settings.MaxResponses != nil {
		sent := 0
		for _, message := range messages {
			if message.SenderID == profile.PublicID {
				sent++
			}
		}
		if sent >= *settings.MaxResponses {
			return false, "response cap reached"
		}
	}
	if len(messages) < settings.MinMessagesBeforeResponding {
		return false, "not enough messages yet"
	}
	if len(messages) > 0 && messages[len(messages)-1].SenderID == profile.PublicID && !settings.CanSelfTriggerCalls {
		return false, "own message cannot trigger a response"
	}
	return true, ""
}

// RespondToTrigger runs one full response attempt: gate checks, model call,
// typing delay, tail check, trigger-log claim, then commit. Every silent
// outcome is reported in the Turn; errors are reserved for store failures.
func (c *Coordinator) RespondToTrigger(ctx context.Context, req TurnRequest) (Turn, error) {
	logger := c.opts.Logger
	messages, err := prompt.LoadChatMessages(ctx, c.store, req.Experiment.ID, req.CohortID, req.StageConfig.ID)
	if err != nil {
		return Turn{}, fmt.Errorf("load conversation: %w", err)
	}

	settings := c.chatSettings(req)
	if ok, reason := CanRespond(messages, req.Profile, settings); !ok {
		logger.Debug("Agent held back", "participant", req.Profile.PublicID, "reason", reason)
		return c.finish(Turn{Outcome: OutcomeNotEligible, Reason: reason}), nil
	}

	response, fields, err := c.callModel(ctx, req)
	if err != nil {
		return Turn{}, err
	}
	if response.Status != model.StatusOK {
		logger.Warn("Agent turn model call failed",
			"participant", req.Profile.PublicID,
			"status", string(response.Status),
			"error", response.ErrorMessage,
		)
		return c.finish(Turn{Outcome: OutcomeCallFailed, Status: response.Status, Reason: response.ErrorMessage}), nil
	}

	if err := c.recordReadyToEnd(ctx, req, fields, messages); err != nil {
		return Turn{}, err
	}

	if !fields.ShouldRespond || strings.TrimSpace(fields.Message) == "" {
		return c.finish(Turn{Outcome: OutcomeDeclined, Status: response.Status, Reason: "model chose silence"}), nil
	}

	if settings.WordsPerMinute != nil && *settings.WordsPerMinute > 0 {
		delay := c.opts.TypingDelay(fields.Message, *settings.WordsPerMinute)
		if !sleepWithContext(ctx, delay) {
			return Turn{}, ctx.Err()
		}
	}

	// Tail check: if the conversation moved past the trigger while the
	// agent was "typing", drop the response silently. Racy on purpose; the
	// trigger log below is the real gate.
	latest, err := prompt.LoadChatMessages(ctx, c.store, req.Experiment.ID, req.CohortID, req.StageConfig.ID)
	if err != nil {
		return Turn{}, fmt.Errorf("reload conversation: %w", err)
	}
	if len(latest) > 0 && latest[len(latest)-1].ID != req.Trigger.ID {
		logger.Debug("Conversation moved on", "participant", req.Profile.PublicID, "trigger", req.Trigger.ID)
		return c.finish(Turn{Outcome: OutcomeMovedOn, Status: response.Status, Reason: "conversation moved on"}), nil
	}

	won, err := c.claimTrigger(ctx, req, req.Trigger.ID)
	if err != nil {
		return Turn{}, err
	}
	if !won {
		logger.Debug("Trigger already handled", "participant", req.Profile.PublicID, "trigger", req.Trigger.ID)
		return c.finish(Turn{Outcome: OutcomeAlreadyHandled, Status: response.Status, Reason: "someone already responded"}), nil
	}

	messageID, err := c.commitMessage(ctx, req, fields)
	if err != nil {
		return Turn{}, err
	}
	return c.finish(Turn{Outcome: OutcomeSent, Status: response.Status, MessageID: messageID}), nil
}

// SendInitialMessage posts the stage's configured conversation opener for an
// agent entering an empty conversation. The synthetic initial trigger id
// deduplicates the opener across re-entries and racing workers.
func (c *Coordinator) SendInitialMessage(ctx context.Context, req TurnRequest) (Turn, error) {
	if req.StageConfig.Chat == nil || req.StageConfig.Chat.InitialMessage == "" {
		return Turn{Outcome: OutcomeNotEligible, Reason: "no initial message configured"}, nil
	}

	messages, err := prompt.LoadChatMessages(ctx, c.store, req.Experiment.ID, req.CohortID, req.StageConfig.ID)
	if err != nil {
		return Turn{}, fmt.Errorf("load conversation: %w", err)
	}
	if len(messages) > 0 {
		return c.finish(Turn{Outcome: OutcomeNotEligible, Reason: "conversation already started"}), nil
	}

	won, err := c.claimTrigger(ctx, req, experiment.InitialTriggerID(req.Profile.PublicID))
	if err != nil {
		return Turn{}, err
	}
	if !won {
		return c.finish(Turn{Outcome: OutcomeAlreadyHandled, Reason: "opener already sent"}), nil
	}

	messageID, err := c.commitMessage(ctx, req, structured.ChatFields{
		ShouldRespond: true,
		Message:       req.StageConfig.Chat.InitialMessage,
		MessageSet:    true,
	})
	if err != nil {
		return Turn{}, err
	}
	return c.finish(Turn{Outcome: OutcomeSent, MessageID: messageID}), nil
}

func (c *Coordinator) chatSettings(req TurnRequest) *experiment.AgentChatSettings {
	if req.PromptConfig != nil && req.PromptConfig.ChatSettings != nil {
		return req.PromptConfig.ChatSettings
	}
	if req.StageConfig.Chat != nil {
		settings := req.StageConfig.Chat.ChatSettings
		return &settings
	}
	return nil
}

func (c *Coordinator) callModel(ctx context.Context, req TurnRequest) (model.Response, structured.ChatFields, error) {
	outputConfig := req.PromptConfig.StructuredOutputConfig
	if outputConfig == nil {
		outputConfig = structured.DefaultChatConfig()
	}

	text, err := c.assembler.Assemble(ctx, req.PromptConfig.Prompt, &prompt.Context{
		Experiment:   req.Experiment,
		CohortID:     req.CohortID,
		StageID:      req.StageConfig.ID,
		Profile:      req.Profile,
		Participants: req.Participants,
	})
	if err != nil {
		return model.Response{}, structured.ChatFields{}, fmt.Errorf("assemble prompt: %w", err)
	}

	settings := req.Profile.AgentConfig.ModelSettings
	response := c.pipeline.Call(ctx, text, req.Keys, settings, req.PromptConfig.GenerationConfig, outputConfig, req.PromptConfig.NumRetries)
	if response.Status != model.StatusOK {
		return response, structured.ChatFields{}, nil
	}
	return response, structured.ExtractChatFields(response.Parsed, outputConfig), nil
}

// recordReadyToEnd persists the agent's end-of-conversation signal. Guarded
// against empty conversations so a confused model cannot end a chat that
// never started.
func (c *Coordinator) recordReadyToEnd(ctx context.Context, req TurnRequest, fields structured.ChatFields, messages []experiment.ChatMessage) error {
	if !fields.ReadyToEndChat || len(messages) == 0 {
		return nil
	}
	answer := experiment.StageAnswer{
		StageID:        req.StageConfig.ID,
		Kind:           req.StageConfig.Kind,
		ReadyToEndChat: true,
		Timestamp:      c.opts.Now(),
	}
	path := store.AnswerPath(req.Experiment.ID, req.Profile.PrivateID, req.StageConfig.ID)
	if err := c.store.Set(ctx, path, answer); err != nil {
		return fmt.Errorf("record ready to end: %w", err)
	}
	return nil
}

// claimTrigger performs the atomic create-if-absent trigger-log write.
func (c *Coordinator) claimTrigger(ctx context.Context, req TurnRequest, triggerID string) (bool, error) {
	logID := experiment.TriggerLogID(triggerID, req.Profile.Type)
	path := store.TriggerLogPath(req.Experiment.ID, req.CohortID, req.StageConfig.ID, logID)
	err := c.store.Create(ctx, path, experiment.TriggerLog{
		TriggerMessageID: triggerID,
		ResponderType:    req.Profile.Type,
		Timestamp:        c.opts.Now(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim trigger %s: %w", triggerID, err)
	}
	return true, nil
}

func (c *Coordinator) commitMessage(ctx context.Context, req TurnRequest, fields structured.ChatFields) (string, error) {
	message := experiment.NewChatMessage(req.Profile.PublicID, req.Profile.Type, fields.Message)
	message.AgentID = req.Profile.AgentConfig.AgentID
	message.Explanation = fields.Explanation
	message.Timestamp = c.opts.Now()

	path := store.ChatPath(req.Experiment.ID, req.CohortID, req.StageConfig.ID, message.ID)
	if err := c.store.Set(ctx, path, message); err != nil {
		return "", fmt.Errorf("commit message: %w", err)
	}
	return message.ID, nil
}

func (c *Coordinator) finish(turn Turn) Turn {
	if c.opts.Observer != nil {
		c.opts.Observer.TurnCompleted(turn.Outcome)
	}
	return turn
}

// typingDelay converts message length into the pacing delay a human typist
// would need.
func typingDelay(text string, wordsPerMinute float64) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 || wordsPerMinute <= 0 {
		return 0
	}
	return time.Duration(float64(words) / wordsPerMinute * float64(time.Minute))
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
