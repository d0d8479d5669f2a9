package structured

import (
	"encoding/json"
	"strings"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

// Enabled reports whether a config should constrain output at all. A nil
// config, a NONE type without prompt appending, a missing schema or an
// OBJECT schema with zero properties all disable structured output.
func Enabled(config *experiment.StructuredOutputConfig) bool {
	if config == nil {
		return false
	}
	if config.Type == experiment.StructuredOutputTypeNone && !config.AppendToPrompt {
		return false
	}
	if config.Schema == nil {
		return false
	}
	if config.Schema.Type == experiment.DataTypeObject && len(config.Schema.Properties) == 0 {
		return false
	}
	return config.Enabled
}

// SchemaObject serializes a schema node into the nested description object
// embedded in prompts. An OBJECT's declared properties are exactly its
// required fields.
func SchemaObject(schema *experiment.StructuredOutputSchema) map[string]any {
	obj := map[string]any{
		"type": strings.ToLower(string(schema.Type)),
	}
	if schema.Description != "" {
		obj["description"] = schema.Description
	}
	if len(schema.Properties) > 0 {
		props := map[string]any{}
		required := make([]string, 0, len(schema.Properties))
		for _, p := range schema.Properties {
			props[p.Name] = SchemaObject(p.Schema)
			required = append(required, p.Name)
		}
		obj["properties"] = props
		obj["required"] = required
	}
	if schema.ArrayItems != nil {
		obj["items"] = SchemaObject(schema.ArrayItems)
	}
	if len(schema.EnumItems) > 0 {
		obj["enumItems"] = schema.EnumItems
	}
	return obj
}

// SchemaJSON renders a schema as indented JSON for prompt embedding.
func SchemaJSON(schema *experiment.StructuredOutputSchema) string {
	data, err := json.MarshalIndent(SchemaObject(schema), "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// InstructionPrompt compiles a config into the instruction text appended to
// a prompt, or "" when structured output is disabled or not prompt-carried.
func InstructionPrompt(config *experiment.StructuredOutputConfig, includeScaffolding bool) string {
	if !Enabled(config) || !config.AppendToPrompt || config.Schema == nil {
		return ""
	}
	scaffolding := ""
	if includeScaffolding {
		scaffolding = "\n--- Response format ---\n"
	}
	return scaffolding + "Return only valid JSON, according to the following schema:\n" + SchemaJSON(config.Schema) + "\n"
}
