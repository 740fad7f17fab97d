package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// traceSchema constrains the shape of submitted chart traces without
// enumerating every trace family Plotly supports. Traces stay open
// objects, but the well-known axis and label fields must carry the types
// a renderer expects.
const traceSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "maxItems": 100,
  "items": {
    "type": "object",
    "properties": {
      "type": {"type": "string", "maxLength": 50},
      "name": {"type": "string", "maxLength": 200},
      "mode": {"type": "string", "maxLength": 100},
      "x": {"type": "array"},
      "y": {"type": "array"},
      "z": {"type": "array"},
      "values": {"type": "array"},
      "labels": {"type": "array"},
      "text": {"type": ["array", "string"]}
    },
    "additionalProperties": true
  }
}`

// ValidateTraces checks a trace array against the trace schema.
func ValidateTraces(traces []map[string]interface{}) error {
	data, err := json.Marshal(traces)
	if err != nil {
		return fmt.Errorf("failed to serialize traces: %w", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader([]byte(traceSchema))
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate traces against schema: %w", err)
	}
	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}
		return fmt.Errorf("trace validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}
