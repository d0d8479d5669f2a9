// Package store defines the document store contract the engine runs on:
// transactional get/set plus an atomic create-if-absent primitive addressed
// by hierarchical slash-separated paths. Create is the engine's only
// cross-actor mutex; any backend offering conditional writes (an in-memory
// map guarded by a lock, a relational UNIQUE constraint, a KV store with
// CAS) satisfies the contract.
package store

import (
	"context"
	"fmt"
)

var (
	// ErrNotFound is returned when no document exists at the given path.
	ErrNotFound = fmt.Errorf("document not found")
	// ErrAlreadyExists is returned by Create when a document already
	// occupies the path.
	ErrAlreadyExists = fmt.Errorf("document already exists")
)

// Store is the durable document store contract. Values are opaque JSON
// blobs; callers marshal their own types. Implementations must make Create
// atomic: exactly one of N concurrent Create calls for the same path
// succeeds, the rest return ErrAlreadyExists.
type Store interface {
	// Get reads the document at path into out (a JSON-unmarshal target).
	Get(ctx context.Context, path string, out any) error
	// Set writes the document at path, creating or overwriting it.
	Set(ctx context.Context, path string, value any) error
	// Create writes the document only if the path is vacant.
	Create(ctx context.Context, path string, value any) error
	// List returns the documents directly under prefix, ordered by path.
	List(ctx context.Context, prefix string, each func(path string, data []byte) error) error
}

// Path joins segments into a hierarchical document path.
func Path(segments ...string) string {
	path := ""
	for i, s := range segments {
		if i > 0 {
			path += "/"
		}
		path += s
	}
	return path
}

// Store paths used throughout the engine. Centralized so the layout is
// visible in one place.

// StagePath addresses a stage configuration.
func StagePath(experimentID, stageID string) string {
	return Path("experiments", experimentID, "stages", stageID)
}

// ExperimentPath addresses an experiment configuration.
func ExperimentPath(experimentID string) string {
	return Path("experiments", experimentID)
}

// ParticipantPath addresses a participant profile.
func ParticipantPath(experimentID, privateID string) string {
	return Path("experiments", experimentID, "participants", privateID)
}

// AnswerPath addresses a participant's answer for one stage.
func AnswerPath(experimentID, privateID, stageID string) string {
	return Path("experiments", experimentID, "participants", privateID, "stageData", stageID)
}

// ChatPath addresses one message of a cohort's public chat for a stage.
func ChatPath(experimentID, cohortID, stageID, messageID string) string {
	return Path("experiments", experimentID, "cohorts", cohortID, "publicStageData", stageID, "chats", messageID)
}

// ChatPrefix addresses a cohort's public chat message list for a stage.
func ChatPrefix(experimentID, cohortID, stageID string) string {
	return Path("experiments", experimentID, "cohorts", cohortID, "publicStageData", stageID, "chats")
}

// TriggerLogPath addresses the dedup marker for a trigger/responder pair.
func TriggerLogPath(experimentID, cohortID, stageID, triggerLogID string) string {
	return Path("experiments", experimentID, "cohorts", cohortID, "publicStageData", stageID, "triggerLogs", triggerLogID)
}

// PromptConfigPath addresses a stored agent prompt config for a stage.
func PromptConfigPath(experimentID, stageID, agentID string) string {
	return Path("experiments", experimentID, "agents", agentID, "prompts", stageID)
}
