package analysis

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// responseSchema is the shape accepted from the analysis service.
// image_prompts is optional per key; missing prompts fall back to a
// placeholder at selection time.
const responseSchema = `{
  "type": "object",
  "required": ["persona_analysis"],
  "properties": {
    "persona_analysis": {
      "type": "object",
      "required": ["tags", "pain_points", "influencers"],
      "properties": {
        "tags":        {"type": "array", "items": {"type": "string"}},
        "pain_points": {"type": "array", "items": {"type": "string"}},
        "influencers": {"type": "array", "items": {"type": "string"}}
      }
    },
    "image_prompts": {
      "type": "object",
      "properties": {
        "rendering": {"type": "string"},
        "sketch":    {"type": "string"},
        "interior":  {"type": "string"}
      }
    }
  }
}`

var responseSchemaLoader = gojsonschema.NewStringLoader(responseSchema)

// validateDocument checks a decoded JSON document against responseSchema.
func validateDocument(document any) error {
	result, err := gojsonschema.Validate(responseSchemaLoader, gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return fmt.Errorf("response does not match schema: %s", strings.Join(messages, "; "))
}
