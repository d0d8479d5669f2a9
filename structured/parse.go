package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Parse best-effort decodes model text as JSON after stripping any markdown
// code-fence wrapping. The returned error is data for the caller to classify
// (status structured_output_parse_error); the raw text stays with the caller.
func Parse(rawText string) (any, error) {
	cleaned := StripCodeFences(rawText)
	if strings.TrimSpace(cleaned) == "" {
		return nil, fmt.Errorf("empty response text")
	}
	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return nil, fmt.Errorf("decode structured output: %w", err)
	}
	return value, nil
}

// StripCodeFences removes a surrounding markdown code fence (``` or
// ```json) if present, returning the inner text unchanged otherwise.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(trimmed[:idx])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{[\"") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// Validate checks a parsed value against the logical schema using a real
// JSON Schema validator. Declared OBJECT properties are enforced as
// required.
func Validate(schema *experiment.StructuredOutputSchema, value any) error {
	doc, err := json.Marshal(validationSchemaObject(schema))
	if err != nil {
		return fmt.Errorf("marshal validation schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(doc))); err != nil {
		return fmt.Errorf("add validation schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile validation schema: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("validate structured output: %w", err)
	}
	return nil
}

// validationSchemaObject converts the logical schema into standard JSON
// Schema vocabulary (enum instead of enumItems, string-typed enums).
func validationSchemaObject(schema *experiment.StructuredOutputSchema) map[string]any {
	obj := map[string]any{}
	switch schema.Type {
	case experiment.DataTypeEnum:
		obj["type"] = "string"
		if len(schema.EnumItems) > 0 {
			items := make([]any, len(schema.EnumItems))
			for i, e := range schema.EnumItems {
				items[i] = e
			}
			obj["enum"] = items
		}
	default:
		obj["type"] = strings.ToLower(string(schema.Type))
	}
	if len(schema.Properties) > 0 {
		props := map[string]any{}
		required := make([]string, 0, len(schema.Properties))
		for _, p := range schema.Properties {
			props[p.Name] = validationSchemaObject(p.Schema)
			required = append(required, p.Name)
		}
		obj["properties"] = props
		obj["required"] = required
	}
	if schema.ArrayItems != nil {
		obj["items"] = validationSchemaObject(schema.ArrayItems)
	}
	return obj
}
