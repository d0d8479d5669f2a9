package experiment

import "time"

// StageAnswer is a participant's persisted result for one stage. Like
// StageConfig it is a tagged variant: only the payload matching Kind is set.
type StageAnswer struct {
	StageID string    `json:"stageId"`
	Kind    StageKind `json:"kind"`

	// Ranking stages: ordered ids, best first.
	RankingList []string `json:"rankingList,omitempty"`
	// Survey stages: answers keyed by question id.
	SurveyAnswers map[string]SurveyAnswer `json:"surveyAnswers,omitempty"`
	// SurveyPerParticipant stages: per question id, answers keyed by the
	// participant the answer is about.
	PerParticipantAnswers map[string]map[string]SurveyAnswer `json:"perParticipantAnswers,omitempty"`
	// Chat stages: raised when the agent signals it is done conversing.
	// Independent of stage advancement, which is externally driven.
	ReadyToEndChat bool `json:"readyToEndChat,omitempty"`
	// AssetAllocation stages: percentage of the portfolio in asset A.
	AssetAPercent float64 `json:"assetAPercent,omitempty"`
	// Profile stages: model-chosen identity, applied to the participant
	// profile by the orchestrator.
	ProfileName     string `json:"profileName,omitempty"`
	ProfileAvatar   string `json:"profileAvatar,omitempty"`
	ProfilePronouns string `json:"profilePronouns,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}
