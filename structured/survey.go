package structured

import (
	"fmt"
	"math"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

// QuestionSchema builds the output schema for a single survey question.
// Scale questions compile to INTEGER only when the bounds and step size are
// all whole numbers; the numeric range is carried in the description because
// the schema type alone cannot enforce it.
func QuestionSchema(question experiment.SurveyQuestion) *experiment.StructuredOutputSchema {
	description := question.Title

	switch question.Kind {
	case experiment.SurveyQuestionKindText:
		return &experiment.StructuredOutputSchema{
			Type:        experiment.DataTypeString,
			Description: description,
		}
	case experiment.SurveyQuestionKindCheck:
		return &experiment.StructuredOutputSchema{
			Type:        experiment.DataTypeBoolean,
			Description: description,
		}
	case experiment.SurveyQuestionKindMultipleChoice:
		enumItems := make([]string, len(question.Options))
		for i, option := range question.Options {
			enumItems[i] = option.ID
		}
		return &experiment.StructuredOutputSchema{
			Type:        experiment.DataTypeEnum,
			Description: description,
			EnumItems:   enumItems,
		}
	case experiment.SurveyQuestionKindScale:
		stepSize := question.StepSize
		if stepSize == 0 {
			stepSize = 1
		}
		dataType := experiment.DataTypeNumber
		if isWhole(question.LowerValue) && isWhole(question.UpperValue) && isWhole(stepSize) {
			dataType = experiment.DataTypeInteger
		}
		return &experiment.StructuredOutputSchema{
			Type:        dataType,
			Description: fmt.Sprintf("%s (from %v to %v)", description, question.LowerValue, question.UpperValue),
		}
	default:
		return &experiment.StructuredOutputSchema{
			Type:        experiment.DataTypeString,
			Description: description,
		}
	}
}

func isWhole(v float64) bool { return v == math.Trunc(v) }

// SurveySchema builds the whole-survey OBJECT schema: one property per
// question, keyed by question id.
func SurveySchema(questions []experiment.SurveyQuestion) *experiment.StructuredOutputSchema {
	properties := make([]experiment.SchemaProperty, len(questions))
	for i, question := range questions {
		properties[i] = experiment.SchemaProperty{
			Name:   question.ID,
			Schema: QuestionSchema(question),
		}
	}
	return &experiment.StructuredOutputSchema{
		Type:       experiment.DataTypeObject,
		Properties: properties,
	}
}

// PerParticipantSurveySchema builds the surveyPerParticipant schema: per
// question, an array of {participantId, answer} objects.
func PerParticipantSurveySchema(questions []experiment.SurveyQuestion) *experiment.StructuredOutputSchema {
	properties := make([]experiment.SchemaProperty, len(questions))
	for i, question := range questions {
		properties[i] = experiment.SchemaProperty{
			Name: question.ID,
			Schema: &experiment.StructuredOutputSchema{
				Type:        experiment.DataTypeArray,
				Description: "A list of {participantId, answer} items where each item is your answer to the question regarding a specific participant ID from the list of participants",
				ArrayItems: &experiment.StructuredOutputSchema{
					Type: experiment.DataTypeObject,
					Properties: []experiment.SchemaProperty{
						{
							Name: "participantId",
							Schema: &experiment.StructuredOutputSchema{
								Type:        experiment.DataTypeString,
								Description: "The ID of the participant whom you are answering the question about",
							},
						},
						{
							Name:   "answer",
							Schema: QuestionSchema(question),
						},
					},
				},
			},
		}
	}
	return &experiment.StructuredOutputSchema{
		Type:       experiment.DataTypeObject,
		Properties: properties,
	}
}

// ParseSurveyAnswer converts one raw parsed value into a typed answer for a
// question, or nil when the value's shape does not match the question kind.
func ParseSurveyAnswer(question experiment.SurveyQuestion, raw any) *experiment.SurveyAnswer {
	if raw == nil {
		return nil
	}
	answer := &experiment.SurveyAnswer{QuestionID: question.ID, Kind: question.Kind}
	switch question.Kind {
	case experiment.SurveyQuestionKindText:
		text, ok := raw.(string)
		if !ok {
			return nil
		}
		answer.Text = text
	case experiment.SurveyQuestionKindCheck:
		checked, ok := raw.(bool)
		if !ok {
			return nil
		}
		answer.IsChecked = checked
	case experiment.SurveyQuestionKindMultipleChoice:
		choice, ok := raw.(string)
		if !ok {
			return nil
		}
		answer.ChoiceID = choice
	case experiment.SurveyQuestionKindScale:
		value, ok := raw.(float64)
		if !ok {
			return nil
		}
		answer.Value = value
	default:
		return nil
	}
	return answer
}

// ParseSurveyResponse converts a parsed whole-survey object into the
// persisted answer map, dropping entries whose shape does not match.
func ParseSurveyResponse(questions []experiment.SurveyQuestion, parsed any) map[string]experiment.SurveyAnswer {
	responseMap, ok := parsed.(map[string]any)
	if !ok {
		return nil
	}
	answers := make(map[string]experiment.SurveyAnswer)
	for _, question := range questions {
		if answer := ParseSurveyAnswer(question, responseMap[question.ID]); answer != nil {
			answers[question.ID] = *answer
		}
	}
	return answers
}

// ParsePerParticipantResponse converts a parsed surveyPerParticipant object
// into question id -> participant id -> answer.
func ParsePerParticipantResponse(questions []experiment.SurveyQuestion, parsed any) map[string]map[string]experiment.SurveyAnswer {
	responseMap, ok := parsed.(map[string]any)
	if !ok {
		return nil
	}
	result := make(map[string]map[string]experiment.SurveyAnswer)
	for _, question := range questions {
		entries, ok := responseMap[question.ID].([]any)
		if !ok {
			continue
		}
		perParticipant := make(map[string]experiment.SurveyAnswer)
		for _, entry := range entries {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			participantID, ok := item["participantId"].(string)
			if !ok {
				continue
			}
			if answer := ParseSurveyAnswer(question, item["answer"]); answer != nil {
				perParticipant[participantID] = *answer
			}
		}
		if len(perParticipant) > 0 {
			result[question.ID] = perParticipant
		}
	}
	return result
}
