// Package deliberatelab provides a high-level façade over the experiment
// engine: the store, the provider registry, the model pipeline, the stage
// registry, the prompt assembler and the chat turn coordinator, wired
// together with safe defaults. Most applications interact with this package
// by:
//  1. Creating an Engine via New() (optionally overriding the store, logger
//     or observers)
//  2. Feeding it triggers: OnChatMessage when a conversation gains a message,
//     OnParticipantReady when an agent participant lands on a stage
//
// All defaults are safe for local development and testing; production
// deployments typically supply the SQLite store, a structured logger and the
// metrics collector.
package deliberatelab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PAIR-code/deliberate-lab-sub006/agent"
	"github.com/PAIR-code/deliberate-lab-sub006/chat"
	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/logging"
	"github.com/PAIR-code/deliberate-lab-sub006/model"
	"github.com/PAIR-code/deliberate-lab-sub006/model/anthropic"
	"github.com/PAIR-code/deliberate-lab-sub006/model/ollama"
	"github.com/PAIR-code/deliberate-lab-sub006/model/openai"
	"github.com/PAIR-code/deliberate-lab-sub006/prompt"
	"github.com/PAIR-code/deliberate-lab-sub006/stage"
	"github.com/PAIR-code/deliberate-lab-sub006/store"
)

// Options configures the Engine.
type Options struct {
	// Store is the persistence backend. Defaults to the in-memory store.
	Store store.Store
	// Logger receives engine diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// Keys are the provider credentials used for all agents.
	Keys model.APIKeys
	// ModelObserver receives model call outcomes (metrics).
	ModelObserver model.Observer
	// TurnObserver receives chat turn outcomes (metrics).
	TurnObserver chat.Observer
	// RetryDelay is the initial backoff after a transient model failure.
	RetryDelay time.Duration
	// MaxPromptDepth bounds prompt group nesting.
	MaxPromptDepth int
	// Clients overrides the provider registry; by default the Anthropic,
	// OpenAI and Ollama clients are registered.
	Clients map[experiment.APIKeyType]model.Client
}

// Engine aggregates the engine components behind a trigger-oriented API.
type Engine struct {
	opts         Options
	store        store.Store
	stages       *stage.Manager
	assembler    *prompt.Assembler
	pipeline     *model.Pipeline
	coordinator  *chat.Coordinator
	orchestrator *agent.Orchestrator
}

// New creates an Engine with optional overrides. Any unset component is
// initialized with its default implementation.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Store:          store.NewMemory(),
		Logger:         logging.NoOpLogger{},
		RetryDelay:     time.Second,
		MaxPromptDepth: 16,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry := model.NewRegistry()
	if opts.Clients != nil {
		for apiType, client := range opts.Clients {
			registry.Register(apiType, client)
		}
	} else {
		registry.Register(experiment.APIKeyTypeAnthropic, anthropic.New())
		registry.Register(experiment.APIKeyTypeOpenAI, openai.New())
		registry.Register(experiment.APIKeyTypeOllama, ollama.New())
	}

	pipeline := model.NewPipeline(registry, func(o *model.PipelineOptions) {
		o.Logger = opts.Logger
		o.Observer = opts.ModelObserver
		o.RetryDelay = opts.RetryDelay
	})

	stages := stage.NewManager()
	assembler := prompt.NewAssembler(opts.Store, stages, func(o *prompt.Options) {
		o.Logger = opts.Logger
		o.MaxDepth = opts.MaxPromptDepth
	})
	coordinator := chat.NewCoordinator(opts.Store, pipeline, assembler, func(o *chat.Options) {
		o.Logger = opts.Logger
		o.Observer = opts.TurnObserver
	})
	orchestrator := agent.NewOrchestrator(opts.Store, stages, assembler, pipeline, coordinator, func(o *agent.Options) {
		o.Logger = opts.Logger
	})

	return &Engine{
		opts:         opts,
		store:        opts.Store,
		stages:       stages,
		assembler:    assembler,
		pipeline:     pipeline,
		coordinator:  coordinator,
		orchestrator: orchestrator,
	}
}

// Store exposes the persistence backend for experiment setup.
func (e *Engine) Store() store.Store { return e.store }

// Stages exposes the stage registry so callers can register custom kinds.
func (e *Engine) Stages() *stage.Manager { return e.stages }

// OnChatMessage reacts to a newly committed chat message: every agent in the
// cohort races to respond, each through its own CompleteStage call. Lost
// races and declined turns are normal outcomes; only store failures return
// an error.
func (e *Engine) OnChatMessage(ctx context.Context, experimentID, cohortID, stageID string, trigger *experiment.ChatMessage) ([]agent.Result, error) {
	exp, err := e.loadExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	participants, err := e.loadCohort(ctx, experimentID, cohortID)
	if err != nil {
		return nil, err
	}

	var results []agent.Result
	for i := range participants {
		profile := &participants[i]
		if !profile.IsAgent() || profile.CurrentStageID != stageID {
			continue
		}
		result, err := e.orchestrator.CompleteStage(ctx, agent.CompletionRequest{
			Experiment:   exp,
			Profile:      profile,
			Participants: participants,
			Keys:         e.opts.Keys,
			Trigger:      trigger,
		})
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// OnParticipantReady reacts to an agent participant arriving on its current
// stage, completing it when the stage allows.
func (e *Engine) OnParticipantReady(ctx context.Context, experimentID, privateID string) (agent.Result, error) {
	exp, err := e.loadExperiment(ctx, experimentID)
	if err != nil {
		return agent.Result{}, err
	}

	var profile experiment.ParticipantProfile
	if err := e.store.Get(ctx, store.ParticipantPath(experimentID, privateID), &profile); err != nil {
		return agent.Result{}, fmt.Errorf("load participant %s: %w", privateID, err)
	}

	participants, err := e.loadCohort(ctx, experimentID, profile.CohortID)
	if err != nil {
		return agent.Result{}, err
	}

	return e.orchestrator.CompleteStage(ctx, agent.CompletionRequest{
		Experiment:   exp,
		Profile:      &profile,
		Participants: participants,
		Keys:         e.opts.Keys,
	})
}

func (e *Engine) loadExperiment(ctx context.Context, experimentID string) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	if err := e.store.Get(ctx, store.ExperimentPath(experimentID), &exp); err != nil {
		return nil, fmt.Errorf("load experiment %s: %w", experimentID, err)
	}
	return &exp, nil
}

// loadCohort lists the cohort's participant profiles.
func (e *Engine) loadCohort(ctx context.Context, experimentID, cohortID string) ([]experiment.ParticipantProfile, error) {
	var participants []experiment.ParticipantProfile
	prefix := store.Path("experiments", experimentID, "participants")
	err := e.store.List(ctx, prefix, func(path string, data []byte) error {
		var profile experiment.ParticipantProfile
		if err := json.Unmarshal(data, &profile); err != nil {
			return fmt.Errorf("decode participant %s: %w", path, err)
		}
		if profile.CohortID == cohortID {
			participants = append(participants, profile)
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return participants, nil
}
