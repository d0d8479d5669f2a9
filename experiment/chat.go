package experiment

import (
	"time"

	"github.com/google/uuid"
)

// UserType categorizes the sender of a chat message. The trigger log keys
// responses by this category so one participant-agent and one mediator-agent
// may each respond to the same trigger.
type UserType string

const (
	UserTypeParticipant UserType = "participant"
	UserTypeMediator    UserType = "mediator"
)

// ChatMessage is one entry of a stage's conversation. Messages are append
// only and ordered by the timestamp assigned when they are committed to the
// store, never by sender clocks.
type ChatMessage struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Type      UserType  `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// AgentID is set when the sender is an autonomous agent.
	AgentID string `json:"agentId,omitempty"`
	// Explanation carries the agent's structured-output rationale, kept for
	// operator inspection and never shown to participants.
	Explanation string `json:"explanation,omitempty"`
}

// NewChatMessage creates an unsent chat message. The timestamp is left zero;
// the turn coordinator assigns it at commit time.
func NewChatMessage(senderID string, userType UserType, text string) ChatMessage {
	return ChatMessage{
		ID:       uuid.NewString(),
		SenderID: senderID,
		Type:     userType,
		Text:     text,
	}
}

// AgentChatSettings bounds how eagerly an agent participates in a
// conversation.
type AgentChatSettings struct {
	// WordsPerMinute paces the simulated typing delay before a message is
	// committed. Nil disables the delay.
	WordsPerMinute *float64 `json:"wordsPerMinute,omitempty"`
	// MaxResponses caps the total messages the agent may send in the stage.
	// Nil means unlimited.
	MaxResponses *int `json:"maxResponses,omitempty"`
	// MinMessagesBeforeResponding holds the agent back until the
	// conversation has at least this many messages.
	MinMessagesBeforeResponding int `json:"minMessagesBeforeResponding"`
	// CanSelfTriggerCalls allows the agent to respond to its own messages.
	CanSelfTriggerCalls bool `json:"canSelfTriggerCalls"`
}

// TriggerLog marks that a response of a given responder category has been
// committed for a trigger message. Its creation via the store's atomic
// create-if-absent write is the engine's only cross-actor mutex.
type TriggerLog struct {
	TriggerMessageID string    `json:"triggerMessageId"`
	ResponderType    UserType  `json:"responderType"`
	Timestamp        time.Time `json:"timestamp"`
}

// TriggerLogID builds the store key for a (trigger, responder category)
// pair.
func TriggerLogID(triggerMessageID string, responderType UserType) string {
	return triggerMessageID + "-" + string(responderType)
}

// InitialTriggerID is the synthetic trigger id used to deduplicate an
// agent's conversation-opening message, which has no real trigger.
func InitialTriggerID(senderPublicID string) string {
	return "initial-" + senderPublicID
}
