package experiment

import (
	"encoding/json"
	"fmt"
)

// PromptItem is a polymorphic node of a prompt tree. Concrete item types
// implement the unexported isPromptItem marker enabling a closed set.
// GroupItem nests further items, so trees may be arbitrarily deep; the
// assembler bounds evaluation with an explicit recursion limit.
type PromptItem interface{ isPromptItem() }

// PromptItemType discriminates serialized prompt items.
type PromptItemType string

const (
	PromptItemTypeText           PromptItemType = "TEXT"
	PromptItemTypeProfileInfo    PromptItemType = "PROFILE_INFO"
	PromptItemTypeProfileContext PromptItemType = "PROFILE_CONTEXT"
	PromptItemTypeStageContext   PromptItemType = "STAGE_CONTEXT"
	PromptItemTypeGroup          PromptItemType = "GROUP"
)

// PromptItems is a prompt tree level. It carries the type discriminator
// through JSON so authored trees survive storage round-trips.
type PromptItems []PromptItem

// UnmarshalJSON decodes each element by its type discriminator.
func (items *PromptItems) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	decoded := make(PromptItems, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			Type PromptItemType `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return err
		}
		var (
			item PromptItem
			err  error
		)
		switch head.Type {
		case PromptItemTypeText:
			var v TextItem
			err = json.Unmarshal(raw, &v)
			item = v
		case PromptItemTypeProfileInfo:
			item = ProfileInfoItem{}
		case PromptItemTypeProfileContext:
			item = ProfileContextItem{}
		case PromptItemTypeStageContext:
			var v StageContextItem
			err = json.Unmarshal(raw, &v)
			item = v
		case PromptItemTypeGroup:
			var v GroupItem
			err = json.Unmarshal(raw, &v)
			item = v
		default:
			return fmt.Errorf("unknown prompt item type %q", head.Type)
		}
		if err != nil {
			return err
		}
		decoded = append(decoded, item)
	}
	*items = decoded
	return nil
}

// TextItem emits its literal text.
type TextItem struct {
	Text string `json:"text"`
}

func (TextItem) isPromptItem() {}

// MarshalJSON tags the item with its type discriminator.
func (t TextItem) MarshalJSON() ([]byte, error) {
	type alias TextItem
	return json.Marshal(struct {
		Type PromptItemType `json:"type"`
		alias
	}{PromptItemTypeText, alias(t)})
}

// ProfileContextItem emits the acting agent's private persona context.
type ProfileContextItem struct{}

func (ProfileContextItem) isPromptItem() {}

// MarshalJSON tags the item with its type discriminator.
func (ProfileContextItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type PromptItemType `json:"type"`
	}{PromptItemTypeProfileContext})
}

// ProfileInfoItem emits the acting agent's display identity (alias for
// participants, name plus avatar for mediators).
type ProfileInfoItem struct{}

func (ProfileInfoItem) isPromptItem() {}

// MarshalJSON tags the item with its type discriminator.
func (ProfileInfoItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type PromptItemType `json:"type"`
	}{PromptItemTypeProfileInfo})
}

// StageContextItem pulls display text and answers from a target stage into
// the prompt. An empty StageID expands to every stage preceding the current
// one in experiment order.
type StageContextItem struct {
	StageID                   string `json:"stageId"`
	IncludePrimaryText        bool   `json:"includePrimaryText"`
	IncludeInfoText           bool   `json:"includeInfoText"`
	IncludeHelpText           bool   `json:"includeHelpText"`
	IncludeStageDisplay       bool   `json:"includeStageDisplay"`
	IncludeParticipantAnswers bool   `json:"includeParticipantAnswers"`
}

func (StageContextItem) isPromptItem() {}

// MarshalJSON tags the item with its type discriminator.
func (s StageContextItem) MarshalJSON() ([]byte, error) {
	type alias StageContextItem
	return json.Marshal(struct {
		Type PromptItemType `json:"type"`
		alias
	}{PromptItemTypeStageContext, alias(s)})
}

// GroupItem groups nested items, optionally shuffling them with a seeded
// deterministic order before evaluation.
type GroupItem struct {
	Title         string         `json:"title"`
	Items         PromptItems    `json:"items"`
	ShuffleConfig *ShuffleConfig `json:"shuffleConfig,omitempty"`
}

func (GroupItem) isPromptItem() {}

// MarshalJSON tags the item with its type discriminator.
func (g GroupItem) MarshalJSON() ([]byte, error) {
	type alias GroupItem
	return json.Marshal(struct {
		Type PromptItemType `json:"type"`
		alias
	}{PromptItemTypeGroup, alias(g)})
}

// SeedSource scopes shuffle determinism: the same source and underlying id
// always produce the same order.
type SeedSource string

const (
	SeedSourceExperiment  SeedSource = "experiment"
	SeedSourceCohort      SeedSource = "cohort"
	SeedSourceParticipant SeedSource = "participant"
	SeedSourceCustom      SeedSource = "custom"
)

// ShuffleConfig controls deterministic reordering of a group's items.
type ShuffleConfig struct {
	Shuffle    bool       `json:"shuffle"`
	Seed       SeedSource `json:"seed"`
	CustomSeed string     `json:"customSeed,omitempty"`
}

// PromptConfig binds a prompt tree to generation and output constraints for
// one stage. Stored per experiment and agent; stage handlers provide a
// default when none is stored.
type PromptConfig struct {
	ID                     string                  `json:"id"`
	StageKind              StageKind               `json:"stageKind"`
	Prompt                 PromptItems             `json:"prompt,omitempty"`
	GenerationConfig       GenerationConfig        `json:"generationConfig"`
	StructuredOutputConfig *StructuredOutputConfig `json:"structuredOutputConfig,omitempty"`
	ChatSettings           *AgentChatSettings      `json:"chatSettings,omitempty"`
	NumRetries             int                     `json:"numRetries"`
}
