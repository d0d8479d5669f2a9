package experiment

// StageKind enumerates the closed set of stage types an experiment may
// contain. The engine dispatches per-kind behavior through stage.Manager;
// kinds without a registered handler fall back to default behavior.
type StageKind string

const (
	StageKindInfo                 StageKind = "info"
	StageKindTOS                  StageKind = "tos"
	StageKindProfile              StageKind = "profile"
	StageKindChat                 StageKind = "chat"
	StageKindChip                 StageKind = "chip"
	StageKindComprehension        StageKind = "comprehension"
	StageKindFlipCard             StageKind = "flipcard"
	StageKindRanking              StageKind = "ranking"
	StageKindPayout               StageKind = "payout"
	StageKindPrivateChat          StageKind = "privateChat"
	StageKindReveal               StageKind = "reveal"
	StageKindSalesperson          StageKind = "salesperson"
	StageKindStockInfo            StageKind = "stockinfo"
	StageKindAssetAllocation      StageKind = "assetAllocation"
	StageKindMultiAssetAllocation StageKind = "multiAssetAllocation"
	StageKindRole                 StageKind = "role"
	StageKindSurvey               StageKind = "survey"
	StageKindSurveyPerParticipant StageKind = "surveyPerParticipant"
	StageKindTransfer             StageKind = "transfer"
)

// IsChat reports whether the kind is one of the conversational stages, which
// are driven by chat triggers rather than single-shot completions.
func (k StageKind) IsChat() bool {
	return k == StageKindChat || k == StageKindPrivateChat || k == StageKindSalesperson
}

// StageDescriptions holds the experimenter-authored display text shown to
// participants for a stage.
type StageDescriptions struct {
	PrimaryText string `json:"primaryText"`
	InfoText    string `json:"infoText"`
	HelpText    string `json:"helpText"`
}

// StageConfig is a tagged variant keyed by Kind. Only the payload matching
// the kind is populated; the remaining pointers stay nil. Configs are
// immutable once an experiment starts.
type StageConfig struct {
	ID           string            `json:"id"`
	Kind         StageKind         `json:"kind"`
	Name         string            `json:"name"`
	Descriptions StageDescriptions `json:"descriptions"`

	Chat            *ChatStagePayload            `json:"chat,omitempty"`
	Survey          *SurveyStagePayload          `json:"survey,omitempty"`
	Ranking         *RankingStagePayload         `json:"ranking,omitempty"`
	Profile         *ProfileStagePayload         `json:"profile,omitempty"`
	StockInfo       *StockInfoStagePayload       `json:"stockInfo,omitempty"`
	FlipCard        *FlipCardStagePayload        `json:"flipCard,omitempty"`
	AssetAllocation *AssetAllocationStagePayload `json:"assetAllocation,omitempty"`
}

// ChatStagePayload carries the agent roster and conversation settings for
// chat and privateChat stages.
type ChatStagePayload struct {
	AgentIDs     []string          `json:"agentIds"`
	ChatSettings AgentChatSettings `json:"chatSettings"`
	// InitialMessage, when non-empty, is sent by an agent entering the
	// stage before any conversation exists.
	InitialMessage string `json:"initialMessage,omitempty"`
}

// SurveyStagePayload lists the questions of a survey or surveyPerParticipant
// stage in display order.
type SurveyStagePayload struct {
	Questions []SurveyQuestion `json:"questions"`
}

// RankingType selects what a ranking stage ranks.
type RankingType string

const (
	RankingTypeItems        RankingType = "items"
	RankingTypeParticipants RankingType = "participants"
)

// RankingItem is one rankable entry of an item-based ranking stage.
type RankingItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RankingStagePayload configures a ranking stage.
type RankingStagePayload struct {
	RankingType RankingType   `json:"rankingType"`
	Items       []RankingItem `json:"items,omitempty"`
}

// ProfileType distinguishes profile stages where participants pick their own
// display name from those using pre-assigned anonymous aliases.
type ProfileType string

const (
	ProfileTypeDefault   ProfileType = "default"
	ProfileTypeAnonymous ProfileType = "anonymous"
)

// ProfileStagePayload configures a profile stage.
type ProfileStagePayload struct {
	ProfileType ProfileType `json:"profileType"`
}

// StockInfoStagePayload configures a stockinfo stage.
type StockInfoStagePayload struct {
	StockIDs []string `json:"stockIds"`
}

// FlipCardStagePayload configures a flipcard stage.
type FlipCardStagePayload struct {
	Cards []FlipCard `json:"cards"`
}

// FlipCard is one card of a flipcard stage.
type FlipCard struct {
	ID        string `json:"id"`
	FrontText string `json:"frontText"`
	BackText  string `json:"backText"`
}

// AssetAllocationStagePayload configures an assetAllocation stage.
type AssetAllocationStagePayload struct {
	AssetA string `json:"assetA"`
	AssetB string `json:"assetB"`
}

// Experiment is the top-level configuration: ordered stage ids plus metadata
// needed by the engine (creator for API-key lookup).
type Experiment struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CreatorID string   `json:"creatorId"`
	StageIDs  []string `json:"stageIds"`
}

// PrecedingStageIDs returns the ids of all stages before stageID in
// experiment order. Returns nil if stageID is first or unknown.
func (e *Experiment) PrecedingStageIDs(stageID string) []string {
	for i, id := range e.StageIDs {
		if id == stageID {
			return e.StageIDs[:i]
		}
	}
	return nil
}

// NextStageID returns the stage following stageID, or "" when stageID is the
// last stage or unknown.
func (e *Experiment) NextStageID(stageID string) string {
	for i, id := range e.StageIDs {
		if id == stageID && i+1 < len(e.StageIDs) {
			return e.StageIDs[i+1]
		}
	}
	return ""
}
