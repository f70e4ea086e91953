package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ErrDecode marks a model answer that could not be decoded.
var ErrDecode = errors.New("undecodable model answer")

func isDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}

// AnswerSchema is the closed JSON Schema of the answer type a reviewer asks
// the model for. Every field is required and no other property is allowed.
func AnswerSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflector.Reflect(reflect.New(t).Interface())
}

// DecodeAnswer decodes a model answer into out. Besides plain JSON it
// accepts a fenced code block, an object that was encoded a second time as a
// JSON string, and JSON that jsonrepair can fix. Failures wrap ErrDecode.
func DecodeAnswer(raw string, out any) error {
	answer := unfence(raw)
	if json.Unmarshal([]byte(answer), out) == nil {
		return nil
	}

	var inner string
	if json.Unmarshal([]byte(answer), &inner) == nil {
		answer = unfence(inner)
		if json.Unmarshal([]byte(answer), out) == nil {
			return nil
		}
	}

	answer = objectBody(answer)
	repaired, err := jsonrepair.JSONRepair(answer)
	if err != nil {
		return fmt.Errorf("%w: repair: %v (answer: %s)", ErrDecode, err, answer)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("%w: %v (repaired: %s)", ErrDecode, err, repaired)
	}
	return nil
}

// unfence strips a ```json fence around the answer.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// objectBody drops prose before the first brace and collapses a doubled
// opening brace ("{ {") that some local models emit.
func objectBody(s string) string {
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if rest, ok := strings.CutPrefix(s, "{"); ok {
		if rest = strings.TrimSpace(rest); strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}
