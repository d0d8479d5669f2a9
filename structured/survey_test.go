package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

func TestQuestionSchemaScaleTypeInference(t *testing.T) {
	tests := []struct {
		name     string
		question experiment.SurveyQuestion
		want     experiment.StructuredOutputDataType
	}{
		{
			name: "whole bounds default step",
			question: experiment.SurveyQuestion{
				Kind: experiment.SurveyQuestionKindScale, LowerValue: 1, UpperValue: 5,
			},
			want: experiment.DataTypeInteger,
		},
		{
			name: "fractional step",
			question: experiment.SurveyQuestion{
				Kind: experiment.SurveyQuestionKindScale, LowerValue: 0, UpperValue: 1, StepSize: 0.1,
			},
			want: experiment.DataTypeNumber,
		},
		{
			name: "fractional bound",
			question: experiment.SurveyQuestion{
				Kind: experiment.SurveyQuestionKindScale, LowerValue: 0.5, UpperValue: 5, StepSize: 1,
			},
			want: experiment.DataTypeNumber,
		},
		{
			name: "whole explicit step",
			question: experiment.SurveyQuestion{
				Kind: experiment.SurveyQuestionKindScale, LowerValue: 0, UpperValue: 10, StepSize: 2,
			},
			want: experiment.DataTypeInteger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := QuestionSchema(tt.question)
			assert.Equal(t, tt.want, schema.Type)
		})
	}
}

func TestQuestionSchemaScaleDescriptionCarriesRange(t *testing.T) {
	schema := QuestionSchema(experiment.SurveyQuestion{
		Kind:       experiment.SurveyQuestionKindScale,
		Title:      "Rate your confidence",
		LowerValue: 1,
		UpperValue: 7,
	})
	assert.Equal(t, "Rate your confidence (from 1 to 7)", schema.Description)
}

func TestQuestionSchemaMultipleChoiceUsesOptionIDs(t *testing.T) {
	schema := QuestionSchema(experiment.SurveyQuestion{
		Kind: experiment.SurveyQuestionKindMultipleChoice,
		Options: []experiment.MultipleChoiceOption{
			{ID: "opt-1", Text: "Strongly agree"},
			{ID: "opt-2", Text: "Strongly disagree"},
		},
	})
	assert.Equal(t, experiment.DataTypeEnum, schema.Type)
	assert.Equal(t, []string{"opt-1", "opt-2"}, schema.EnumItems)
}

func TestSurveySchemaKeysByQuestionID(t *testing.T) {
	questions := []experiment.SurveyQuestion{
		{ID: "q1", Kind: experiment.SurveyQuestionKindText, Title: "Why?"},
		{ID: "q2", Kind: experiment.SurveyQuestionKindCheck, Title: "Agree?"},
	}
	schema := SurveySchema(questions)
	require.Len(t, schema.Properties, 2)
	assert.Equal(t, "q1", schema.Properties[0].Name)
	assert.Equal(t, experiment.DataTypeString, schema.Properties[0].Schema.Type)
	assert.Equal(t, "q2", schema.Properties[1].Name)
	assert.Equal(t, experiment.DataTypeBoolean, schema.Properties[1].Schema.Type)
}

func TestParseSurveyResponse(t *testing.T) {
	questions := []experiment.SurveyQuestion{
		{ID: "q1", Kind: experiment.SurveyQuestionKindText},
		{ID: "q2", Kind: experiment.SurveyQuestionKindScale, LowerValue: 1, UpperValue: 5},
		{ID: "q3", Kind: experiment.SurveyQuestionKindCheck},
	}
	parsed := map[string]any{
		"q1": "it was fine",
		"q2": float64(4),
		"q3": "not a bool", // wrong shape, dropped
	}

	answers := ParseSurveyResponse(questions, parsed)
	require.Len(t, answers, 2)
	assert.Equal(t, "it was fine", answers["q1"].Text)
	assert.Equal(t, 4.0, answers["q2"].Value)
	assert.NotContains(t, answers, "q3")
}

func TestParseSurveyResponseNonObject(t *testing.T) {
	questions := []experiment.SurveyQuestion{{ID: "q1", Kind: experiment.SurveyQuestionKindText}}
	assert.Nil(t, ParseSurveyResponse(questions, "just a string"))
	assert.Nil(t, ParseSurveyResponse(questions, nil))
}

func TestParsePerParticipantResponse(t *testing.T) {
	questions := []experiment.SurveyQuestion{
		{ID: "q1", Kind: experiment.SurveyQuestionKindScale, LowerValue: 1, UpperValue: 5},
	}
	parsed := map[string]any{
		"q1": []any{
			map[string]any{"participantId": "p-a", "answer": float64(3)},
			map[string]any{"participantId": "p-b", "answer": float64(5)},
			map[string]any{"answer": float64(1)}, // no participant id, dropped
		},
	}

	result := ParsePerParticipantResponse(questions, parsed)
	require.Contains(t, result, "q1")
	require.Len(t, result["q1"], 2)
	assert.Equal(t, 3.0, result["q1"]["p-a"].Value)
	assert.Equal(t, 5.0, result["q1"]["p-b"].Value)
}
