package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validateAgainstSchema compiles t's input schema and validates arguments
// against it. A validation failure does not exclude a candidate from
// scoring outright (see CallTool) unless it is the sole remaining
// candidate, in which case the failure is surfaced as error text.
func validateAgainstSchema(t ToolDescriptor, arguments json.RawMessage) error {
	schemaDoc := map[string]any{"type": "object"}
	if len(t.InputSchema.Properties) > 0 {
		schemaDoc["properties"] = t.InputSchema.Properties
	}
	if len(t.InputSchema.Required) > 0 {
		schemaDoc["required"] = t.InputSchema.Required
	}
	schemaJSON, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	schema, err := jsonschema.CompileString(t.Name+".schema.json", string(schemaJSON))
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var value any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &value); err != nil {
			return fmt.Errorf("decode arguments: %w", err)
		}
	} else {
		value = map[string]any{}
	}

	return schema.Validate(value)
}
