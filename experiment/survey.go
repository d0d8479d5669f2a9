package experiment

// SurveyQuestionKind enumerates the supported survey question types.
type SurveyQuestionKind string

const (
	SurveyQuestionKindText           SurveyQuestionKind = "text"
	SurveyQuestionKindCheck          SurveyQuestionKind = "check"
	SurveyQuestionKindMultipleChoice SurveyQuestionKind = "mc"
	SurveyQuestionKindScale          SurveyQuestionKind = "scale"
)

// MultipleChoiceOption is one selectable answer of a multiple choice
// question. Agents answer with the option ID, not the display text.
type MultipleChoiceOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SurveyQuestion is a tagged variant keyed by Kind.
type SurveyQuestion struct {
	ID    string             `json:"id"`
	Kind  SurveyQuestionKind `json:"kind"`
	Title string             `json:"title"`

	// Multiple choice only.
	Options []MultipleChoiceOption `json:"options,omitempty"`

	// Scale only. StepSize defaults to 1 when zero.
	LowerValue float64 `json:"lowerValue,omitempty"`
	UpperValue float64 `json:"upperValue,omitempty"`
	StepSize   float64 `json:"stepSize,omitempty"`
	LowerText  string  `json:"lowerText,omitempty"`
	UpperText  string  `json:"upperText,omitempty"`
}

// SurveyAnswer is a participant's answer to a single question. Exactly one
// value field is meaningful, matching the question kind.
type SurveyAnswer struct {
	QuestionID string             `json:"questionId"`
	Kind       SurveyQuestionKind `json:"kind"`

	Text      string  `json:"text,omitempty"`      // text questions
	IsChecked bool    `json:"isChecked,omitempty"` // check questions
	ChoiceID  string  `json:"choiceId,omitempty"`  // multiple choice questions
	Value     float64 `json:"value,omitempty"`     // scale questions
}
