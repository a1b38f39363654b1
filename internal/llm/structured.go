package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// GenerateStructuredResponse asks for a JSON document conforming to schema
// and returns it undecoded. Content that is not JSON, or an object missing a
// property the schema requires, fails with *llmerrors.ValidationError and is
// neither retried nor cached.
func (s *Service) GenerateStructuredResponse(ctx context.Context, messages []transport.Message, schema json.RawMessage, opts Options) (json.RawMessage, error) {
	if len(schema) > 0 && !json.Valid(schema) {
		return nil, &llmerrors.ValidationError{Field: "schema", Message: "schema is not valid JSON"}
	}

	req, err := s.newRequest(transport.OpStructured, messages, structuredSystemMessage(opts.SystemMessage, schema), opts)
	if err != nil {
		return nil, err
	}
	req.Format = transport.FormatJSON
	req.Schema = schema

	resp, err := s.handler.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Content), nil
}

// GenerateStructured is GenerateStructuredResponse decoded into T.
func GenerateStructured[T any](ctx context.Context, s *Service, messages []transport.Message, schema json.RawMessage, opts Options) (T, error) {
	var out T

	raw, err := s.GenerateStructuredResponse(ctx, messages, schema, opts)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &llmerrors.ValidationError{
			Message: fmt.Sprintf("response does not decode into %T", out),
			Content: string(raw),
			Cause:   err,
		}
	}
	return out, nil
}

// structuredSystemMessage appends the schema and a JSON-only directive to
// the caller's system message.
func structuredSystemMessage(base string, schema json.RawMessage) string {
	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}
	if len(schema) > 0 {
		b.WriteString("Respond with a JSON object that conforms to this JSON schema:\n")
		b.Write(schema)
		b.WriteString("\n\n")
	}
	b.WriteString("Return only valid JSON. Do not wrap it in markdown or add any text before or after it.")
	return b.String()
}
