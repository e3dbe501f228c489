package quizgen

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const quizSchemaJSON = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "additionalProperties": false,
    "required": ["question", "options", "correct_answer"],
    "properties": {
      "question": {"type": "string", "minLength": 1},
      "options": {
        "type": "array",
        "minItems": 4,
        "maxItems": 4,
        "items": {"type": "string"}
      },
      "correct_answer": {"type": "integer", "minimum": 0, "maximum": 3}
    }
  }
}`

var quizSchema = mustSchema(quizSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compiling quiz schema: %v", err))
	}
	return s
}

// validateQuiz checks raw JSON against the quiz schema.
func validateQuiz(raw []byte) error {
	result, err := quizSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuiz, strings.Join(msgs, "; "))
}
