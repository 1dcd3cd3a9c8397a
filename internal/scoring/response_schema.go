package scoring

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// responseSchemaJSON describes the provider answer. No field is required:
// absent scores are defaulted, not rejected.
const responseSchemaJSON = `{
  "type": "object",
  "properties": {
    "professionalism": { "type": "number" },
    "friendliness": { "type": "number" },
    "resolution_effectiveness": { "type": "number" },
    "explanation": {
      "type": "object",
      "properties": {
        "professionalism": { "type": "string" },
        "friendliness": { "type": "string" },
        "resolution_effectiveness": { "type": "string" }
      }
    }
  }
}`

var responseSchema = mustLoadSchema(responseSchemaJSON)

func mustLoadSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(err)
	}
	return schema
}

// invalidFields validates obj and returns the dotted paths of fields that
// violate the schema.
func invalidFields(obj map[string]any) (map[string]bool, error) {
	result, err := responseSchema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return nil, fmt.Errorf("validate response: %w", err)
	}
	invalid := make(map[string]bool)
	for _, e := range result.Errors() {
		invalid[e.Field()] = true
	}
	return invalid, nil
}
