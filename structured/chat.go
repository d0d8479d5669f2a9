package structured

import "github.com/PAIR-code/deliberate-lab-sub006/experiment"

// Default chat decision field names, used when a config leaves a mapping
// empty.
const (
	DefaultShouldRespondField = "shouldRespond"
	DefaultResponseField      = "response"
	DefaultExplanationField   = "explanation"
	DefaultReadyToEndField    = "readyToEndChat"
)

// ChatFields is an agent's structured decision about one conversational
// turn.
type ChatFields struct {
	// ShouldRespond is true unless the model explicitly declined.
	ShouldRespond bool
	// Message is the chat text to send; empty string means the field was
	// absent or not a string.
	Message string
	// MessageSet distinguishes an absent message field from an empty one.
	MessageSet bool
	// Explanation is the model's stated rationale, if any.
	Explanation string
	// ReadyToEndChat signals the agent considers the conversation done.
	ReadyToEndChat bool
}

// ExtractChatFields pulls the chat decision fields out of a parsed
// structured response using the config's field mappings.
func ExtractChatFields(parsed any, config *experiment.StructuredOutputConfig) ChatFields {
	fields := ChatFields{ShouldRespond: true}
	object, ok := parsed.(map[string]any)
	if !ok {
		return fields
	}

	shouldRespondField := config.ShouldRespondField
	if shouldRespondField == "" {
		shouldRespondField = DefaultShouldRespondField
	}
	// Default to responding unless the model explicitly said false.
	if v, ok := object[shouldRespondField].(bool); ok && !v {
		fields.ShouldRespond = false
	}

	messageField := config.MessageField
	if messageField == "" {
		messageField = DefaultResponseField
	}
	if v, ok := object[messageField].(string); ok {
		fields.Message = v
		fields.MessageSet = true
	}

	explanationField := config.ExplanationField
	if explanationField == "" {
		explanationField = DefaultExplanationField
	}
	if v, ok := object[explanationField].(string); ok {
		fields.Explanation = v
	}

	readyField := config.ReadyToEndField
	if readyField == "" {
		readyField = DefaultReadyToEndField
	}
	if v, ok := object[readyField].(bool); ok {
		fields.ReadyToEndChat = v
	}

	return fields
}

// DefaultChatConfig returns the standard chat decision schema: explanation,
// shouldRespond, response and readyToEndChat fields.
func DefaultChatConfig() *experiment.StructuredOutputConfig {
	return &experiment.StructuredOutputConfig{
		Enabled:        true,
		Type:           experiment.StructuredOutputTypeJSONFormat,
		AppendToPrompt: true,
		Schema: &experiment.StructuredOutputSchema{
			Type: experiment.DataTypeObject,
			Properties: []experiment.SchemaProperty{
				{
					Name: DefaultExplanationField,
					Schema: &experiment.StructuredOutputSchema{
						Type:        experiment.DataTypeString,
						Description: "1-2 sentences explaining why you are sending this message, or why you are staying silent, based on your persona and the chat context.",
					},
				},
				{
					Name: DefaultShouldRespondField,
					Schema: &experiment.StructuredOutputSchema{
						Type:        experiment.DataTypeBoolean,
						Description: "True if you will send a message, False if you prefer to stay silent.",
					},
				},
				{
					Name: DefaultResponseField,
					Schema: &experiment.StructuredOutputSchema{
						Type:        experiment.DataTypeString,
						Description: "Your chat message (empty if you prefer to stay silent).",
					},
				},
				{
					Name: DefaultReadyToEndField,
					Schema: &experiment.StructuredOutputSchema{
						Type:        experiment.DataTypeBoolean,
						Description: "Whether or not you completed your goals and are ready to end the conversation.",
					},
				},
			},
		},
		ShouldRespondField: DefaultShouldRespondField,
		MessageField:       DefaultResponseField,
		ExplanationField:   DefaultExplanationField,
		ReadyToEndField:    DefaultReadyToEndField,
	}
}
