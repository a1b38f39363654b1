package resilience

import (
	"encoding/json"
	"fmt"
	"strings"

	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// JSONValidator rejects structured responses that are not a JSON document.
// When the request schema lists required top-level properties, an object
// response must carry each of them. Requests that did not ask for JSON pass
// untouched.
type JSONValidator struct{}

// ValidateResponse implements transport.Validator.
func (JSONValidator) ValidateResponse(req *transport.Request, resp *transport.Response) error {
	if req.Format != transport.FormatJSON {
		return nil
	}

	content := strings.TrimSpace(resp.Content)
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return &llmerrors.ValidationError{
			Message: "response is not valid JSON",
			Content: resp.Content,
			Cause:   err,
		}
	}
	resp.Content = content

	obj, ok := decoded.(map[string]any)
	if !ok || len(req.Schema) == 0 {
		return nil
	}
	for _, field := range requiredFields(req.Schema) {
		if _, present := obj[field]; !present {
			return &llmerrors.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("required property %q is missing", field),
				Content: resp.Content,
			}
		}
	}
	return nil
}

// requiredFields returns the schema's top-level "required" list. Schemas
// that cannot be read impose no requirement.
func requiredFields(schema json.RawMessage) []string {
	var s struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	return s.Required
}
