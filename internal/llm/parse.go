package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/libelia/libelia/internal/model"
)

// ErrInvalidResponse is returned when the LLM output holds no usable JSON object.
var ErrInvalidResponse = errors.New("invalid LLM response")

// StripCodeFences removes a surrounding ```json fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseEvaluation decodes the LLM output. Prose around the object is
// ignored and missing collections default to empty.
func ParseEvaluation(raw string) (*model.LLMEvaluation, error) {
	text := StripCodeFences(raw)
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object (raw: %.200s)", ErrInvalidResponse, raw)
	}

	var eval model.LLMEvaluation
	if err := json.Unmarshal([]byte(text[start:end+1]), &eval); err != nil {
		return nil, fmt.Errorf("%w: %v (raw: %.200s)", ErrInvalidResponse, err, raw)
	}
	if eval.Alternatives == nil {
		eval.Alternatives = []model.AlternativeFeedback{}
	}
	if eval.Development == nil {
		eval.Development = model.DevelopmentDetails{}
	}
	return &eval, nil
}
