package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FlatObjectSchema accepts a JSON object whose values are all scalars.
func FlatObjectSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type": []string{"string", "number", "boolean", "null"},
		},
	}
}

var (
	flatOnce   sync.Once
	flatSchema *jsonschema.Schema
	flatErr    error
)

// ValidateFlatObject reports whether data is a flat JSON object.
func ValidateFlatObject(data []byte) error {
	flatOnce.Do(func() {
		flatSchema, flatErr = compileSchema(FlatObjectSchema())
	})
	if flatErr != nil {
		return flatErr
	}
	return validate(flatSchema, data)
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
