package experiment

// StructuredOutputType selects how output constraints reach the sampler.
type StructuredOutputType string

const (
	// StructuredOutputTypeNone places no constraint on the sampler.
	StructuredOutputTypeNone StructuredOutputType = "NONE"
	// StructuredOutputTypeJSONFormat asks for JSON without a fixed schema.
	StructuredOutputTypeJSONFormat StructuredOutputType = "JSON_FORMAT"
	// StructuredOutputTypeJSONSchema constrains output to the schema.
	StructuredOutputTypeJSONSchema StructuredOutputType = "JSON_SCHEMA"
)

// StructuredOutputDataType enumerates schema node types.
type StructuredOutputDataType string

const (
	DataTypeString  StructuredOutputDataType = "STRING"
	DataTypeNumber  StructuredOutputDataType = "NUMBER"
	DataTypeInteger StructuredOutputDataType = "INTEGER"
	DataTypeBoolean StructuredOutputDataType = "BOOLEAN"
	DataTypeArray   StructuredOutputDataType = "ARRAY"
	DataTypeObject  StructuredOutputDataType = "OBJECT"
	DataTypeEnum    StructuredOutputDataType = "ENUM"
)

// SchemaProperty is a named field of an OBJECT schema. Declared properties
// are exactly the required fields when the schema is serialized.
type SchemaProperty struct {
	Name   string                  `json:"name"`
	Schema *StructuredOutputSchema `json:"schema"`
}

// StructuredOutputSchema is a recursive tagged type describing the JSON
// shape requested from a model. Leaves are STRING, NUMBER, INTEGER, BOOLEAN
// or ENUM; OBJECT carries Properties and ARRAY carries ArrayItems.
type StructuredOutputSchema struct {
	Type        StructuredOutputDataType `json:"type"`
	Description string                   `json:"description,omitempty"`
	Properties  []SchemaProperty         `json:"properties,omitempty"`
	ArrayItems  *StructuredOutputSchema  `json:"arrayItems,omitempty"`
	EnumItems   []string                 `json:"enumItems,omitempty"`
}

// StructuredOutputConfig attaches a schema to a prompt.
type StructuredOutputConfig struct {
	Enabled        bool                    `json:"enabled"`
	Type           StructuredOutputType    `json:"type"`
	Schema         *StructuredOutputSchema `json:"schema,omitempty"`
	AppendToPrompt bool                    `json:"appendToPrompt"`

	// Chat decision field mappings. Empty names fall back to the defaults
	// in the structured package.
	ShouldRespondField string `json:"shouldRespondField,omitempty"`
	MessageField       string `json:"messageField,omitempty"`
	ExplanationField   string `json:"explanationField,omitempty"`
	ReadyToEndField    string `json:"readyToEndField,omitempty"`
}
