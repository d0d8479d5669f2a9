package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

func TestParseStripsCodeFences(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "bare json", text: `{"key": "value"}`},
		{name: "plain fence", text: "```\n{\"key\": \"value\"}\n```"},
		{name: "json fence", text: "```json\n{\"key\": \"value\"}\n```"},
		{name: "surrounding whitespace", text: "  \n```json\n{\"key\": \"value\"}\n```  \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := Parse(tt.text)
			require.NoError(t, err)
			object, ok := value.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "value", object["key"])
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse("not json at all")
	assert.Error(t, err)

	_, err = Parse("```\n{truncated\n```")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	schema := &experiment.StructuredOutputSchema{
		Type: experiment.DataTypeObject,
		Properties: []experiment.SchemaProperty{
			{Name: "count", Schema: &experiment.StructuredOutputSchema{Type: experiment.DataTypeInteger}},
			{Name: "choice", Schema: &experiment.StructuredOutputSchema{
				Type:      experiment.DataTypeEnum,
				EnumItems: []string{"yes", "no"},
			}},
		},
	}

	valid := map[string]any{"count": float64(3), "choice": "yes"}
	assert.NoError(t, Validate(schema, valid))

	missingField := map[string]any{"count": float64(3)}
	assert.Error(t, Validate(schema, missingField))

	badEnum := map[string]any{"count": float64(3), "choice": "maybe"}
	assert.Error(t, Validate(schema, badEnum))
}
