package cddt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const documentSchemaURL = "cddt.schema.json"

// documentSchema describes the serialized CDDT layout.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["cddt"],
  "properties": {
    "cddt": {
      "type": "object",
      "required": ["max_range", "theta_discretization", "map", "compressed_lut"],
      "properties": {
        "lut_translations": {"type": "array", "items": {"type": "number"}},
        "max_range": {"type": "number", "minimum": 0},
        "theta_discretization": {"type": "integer", "minimum": 0},
        "map": {
          "type": "object",
          "required": ["width", "height"],
          "properties": {
            "path": {"type": "string"},
            "width": {"type": "integer", "minimum": 0},
            "height": {"type": "integer", "minimum": 0},
            "data": {
              "type": "array",
              "items": {"type": "array", "items": {"type": "number"}}
            }
          }
        },
        "compressed_lut": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["theta", "zeros"],
            "properties": {
              "theta": {"type": "number"},
              "zeros": {
                "type": "array",
                "items": {"type": "array", "items": {"type": "number"}}
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func documentSchemaValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString(documentSchemaURL, documentSchema)
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks raw JSON or YAML (optionally compressed) against
// the document schema. Violations are reported as ErrFormat.
func ValidateDocument(data []byte) error {
	body, format, err := unwrapPayload(data)
	if err != nil {
		return err
	}
	return validateBody(body, format)
}

func validateBody(body []byte, format Format) error {
	schema, err := documentSchemaValidator()
	if err != nil {
		return fmt.Errorf("compiling document schema: %w", err)
	}

	v, err := genericValue(body, format)
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return nil
}

// genericValue decodes body into the map/slice/float64 shape produced by
// encoding/json, which is what the validator expects. YAML is round-tripped
// through JSON to get there.
func genericValue(body []byte, format Format) (interface{}, error) {
	jsonBody := body
	if format == FormatYAML {
		var y interface{}
		if err := yaml.Unmarshal(body, &y); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
		b, err := json.Marshal(y)
		if err != nil {
			return nil, fmt.Errorf("converting YAML to JSON: %w", err)
		}
		jsonBody = b
	}

	var v interface{}
	if err := json.Unmarshal(jsonBody, &v); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return v, nil
}
