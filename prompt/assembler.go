// Package prompt folds a prompt item tree into the final text sent to a
// model. Items resolve against the acting participant's profile and the
// experiment's stored stage state; groups may nest and shuffle
// deterministically.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/logging"
	"github.com/PAIR-code/deliberate-lab-sub006/stage"
	"github.com/PAIR-code/deliberate-lab-sub006/store"
)

// Context carries everything item resolution needs: the experiment, the
// acting profile, and the cohort roster whose answers stage context items may
// pull in.
type Context struct {
	Experiment   *experiment.Experiment
	CohortID     string
	StageID      string
	Profile      *experiment.ParticipantProfile
	Participants []experiment.ParticipantProfile
}

// Options configures an Assembler.
type Options struct {
	Logger logging.Logger
	// MaxDepth bounds group nesting during evaluation.
	MaxDepth int
}

// Assembler evaluates prompt item trees against the store.
type Assembler struct {
	store    store.Store
	stages   *stage.Manager
	logger   logging.Logger
	maxDepth int
}

// NewAssembler creates an Assembler backed by the given store and stage
// registry.
func NewAssembler(st store.Store, stages *stage.Manager, optFns ...func(o *Options)) *Assembler {
	options := Options{
		Logger:   logging.NoOpLogger{},
		MaxDepth: 16,
	}
	for _, fn := range optFns {
		fn(&options)
	}
	return &Assembler{
		store:    st,
		stages:   stages,
		logger:   options.Logger,
		maxDepth: options.MaxDepth,
	}
}

// Assemble folds the item tree into prompt text. Items that resolve to
// nothing are dropped; the remaining fragments are joined with newlines.
func (a *Assembler) Assemble(ctx context.Context, items []experiment.PromptItem, pctx *Context) (string, error) {
	eval := &evaluation{assembler: a, pctx: pctx, stageData: map[string]*stage.ContextData{}}
	fragments, err := eval.items(ctx, items, 0)
	if err != nil {
		return "", err
	}
	return strings.Join(fragments, "\n"), nil
}

// evaluation is the per-Assemble state: stage data fetched once per stage
// regardless of how many items reference it.
type evaluation struct {
	assembler *Assembler
	pctx      *Context
	stageData map[string]*stage.ContextData
}

func (e *evaluation) items(ctx context.Context, items []experiment.PromptItem, depth int) ([]string, error) {
	if depth > e.assembler.maxDepth {
		return nil, fmt.Errorf("prompt group nesting exceeds %d levels", e.assembler.maxDepth)
	}

	var fragments []string
	for _, item := range items {
		switch it := item.(type) {
		case experiment.TextItem:
			if it.Text != "" {
				fragments = append(fragments, it.Text)
			}
		case experiment.ProfileContextItem:
			if text := e.profileContext(); text != "" {
				fragments = append(fragments, text)
			}
		case experiment.ProfileInfoItem:
			if text := e.profileInfo(); text != "" {
				fragments = append(fragments, text)
			}
		case experiment.StageContextItem:
			text, err := e.stageContext(ctx, it)
			if err != nil {
				return nil, err
			}
			if text != "" {
				fragments = append(fragments, text)
			}
		case experiment.GroupItem:
			text, err := e.group(ctx, it, depth)
			if err != nil {
				return nil, err
			}
			if text != "" {
				fragments = append(fragments, text)
			}
		default:
			return nil, fmt.Errorf("unknown prompt item type %T", item)
		}
	}
	return fragments, nil
}

// group evaluates a nested group, shuffling first when configured. Groups
// whose items all resolve to nothing vanish entirely, title included.
func (e *evaluation) group(ctx context.Context, item experiment.GroupItem, depth int) (string, error) {
	items := item.Items
	if item.ShuffleConfig != nil && item.ShuffleConfig.Shuffle {
		items = shuffleItems(items, seedFor(item.ShuffleConfig, e.pctx))
	}
	fragments, err := e.items(ctx, items, depth+1)
	if err != nil {
		return "", err
	}
	if len(fragments) == 0 {
		return "", nil
	}
	body := strings.Join(fragments, "\n")
	if item.Title != "" {
		return item.Title + "\n" + body, nil
	}
	return body, nil
}

func (e *evaluation) profileContext() string {
	profile := e.pctx.Profile
	if profile.AgentConfig == nil || profile.AgentConfig.PromptContext == "" {
		return ""
	}
	return profile.AgentConfig.PromptContext
}

func (e *evaluation) profileInfo() string {
	profile := e.pctx.Profile
	identity := strings.TrimSpace(profile.Avatar + " " + profile.DisplayName())
	if profile.Type == experiment.UserTypeMediator {
		return fmt.Sprintf("You are %s, a mediator in this conversation.", identity)
	}
	return fmt.Sprintf("You are participating in this experiment as %s. Everything you write should come from this persona.", identity)
}

// stageContext renders one or more stages' display text into the prompt. An
// empty stage id expands to every stage preceding the current one, in
// experiment order.
func (e *evaluation) stageContext(ctx context.Context, item experiment.StageContextItem) (string, error) {
	stageIDs := []string{item.StageID}
	if item.StageID == "" {
		stageIDs = e.pctx.Experiment.PrecedingStageIDs(e.pctx.StageID)
	}

	var sections []string
	for _, stageID := range stageIDs {
		data, err := e.loadStageData(ctx, stageID)
		if errors.Is(err, store.ErrNotFound) {
			e.assembler.logger.Warn("Prompt references unknown stage", "stage_id", stageID)
			continue
		}
		if err != nil {
			return "", err
		}
		if text := e.renderStage(item, data); text != "" {
			sections = append(sections, text)
		}
	}
	return strings.Join(sections, "\n"), nil
}

func (e *evaluation) renderStage(item experiment.StageContextItem, data *stage.ContextData) string {
	var lines []string
	if item.IncludePrimaryText && data.Stage.Descriptions.PrimaryText != "" {
		lines = append(lines, data.Stage.Descriptions.PrimaryText)
	}
	if item.IncludeInfoText && data.Stage.Descriptions.InfoText != "" {
		lines = append(lines, data.Stage.Descriptions.InfoText)
	}
	if item.IncludeHelpText && data.Stage.Descriptions.HelpText != "" {
		lines = append(lines, data.Stage.Descriptions.HelpText)
	}
	if item.IncludeStageDisplay || item.IncludeParticipantAnswers {
		// Answers are embedded in the stage display; withholding the roster
		// withholds the answers.
		participants := e.pctx.Participants
		if !item.IncludeParticipantAnswers {
			participants = nil
		}
		handler := e.assembler.stages.Get(data.Stage.Kind)
		if display := handler.DisplayForPrompt(participants, data, true); display != "" {
			lines = append(lines, display)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	header := fmt.Sprintf("[Stage: %s]", data.Stage.Name)
	return header + "\n" + strings.Join(lines, "\n")
}

// loadStageData fetches a stage's config, conversation and answers once per
// evaluation.
func (e *evaluation) loadStageData(ctx context.Context, stageID string) (*stage.ContextData, error) {
	if data, ok := e.stageData[stageID]; ok {
		return data, nil
	}

	var config experiment.StageConfig
	if err := e.assembler.store.Get(ctx, store.StagePath(e.pctx.Experiment.ID, stageID), &config); err != nil {
		return nil, err
	}

	data := &stage.ContextData{
		Stage:        config,
		Answers:      map[string]experiment.StageAnswer{},
		Participants: e.pctx.Participants,
	}

	if config.Kind.IsChat() {
		messages, err := LoadChatMessages(ctx, e.assembler.store, e.pctx.Experiment.ID, e.pctx.CohortID, stageID)
		if err != nil {
			return nil, err
		}
		data.ChatMessages = messages
	}

	for _, participant := range e.pctx.Participants {
		var answer experiment.StageAnswer
		err := e.assembler.store.Get(ctx, store.AnswerPath(e.pctx.Experiment.ID, participant.PrivateID, stageID), &answer)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		data.Answers[participant.PublicID] = answer
	}

	e.stageData[stageID] = data
	return data, nil
}

// LoadChatMessages reads a stage's conversation from the store ordered by
// commit timestamp.
func LoadChatMessages(ctx context.Context, st store.Store, experimentID, cohortID, stageID string) ([]experiment.ChatMessage, error) {
	var messages []experiment.ChatMessage
	err := st.List(ctx, store.ChatPrefix(experimentID, cohortID, stageID), func(path string, data []byte) error {
		var message experiment.ChatMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return fmt.Errorf("decode chat message %s: %w", path, err)
		}
		messages = append(messages, message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}
