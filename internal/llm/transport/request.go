package transport

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

// Message roles accepted by the upstream API.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a structured content part.
type PartType string

// Content part types.
const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ContentPart is one element of structured message content.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Message is one conversation turn. Content holds plain text; Parts holds
// structured content and, when present, is sent instead of Content.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text returns all textual content of the message.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, p := range m.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Parameters tunes generation. Nil fields are left to the upstream default.
type Parameters struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	MaxTokens        *int64   `json:"max_tokens,omitempty"`
}

// Merge returns p with every field set in overrides replaced.
func (p Parameters) Merge(overrides Parameters) Parameters {
	if overrides.Temperature != nil {
		p.Temperature = overrides.Temperature
	}
	if overrides.TopP != nil {
		p.TopP = overrides.TopP
	}
	if overrides.FrequencyPenalty != nil {
		p.FrequencyPenalty = overrides.FrequencyPenalty
	}
	if overrides.PresencePenalty != nil {
		p.PresencePenalty = overrides.PresencePenalty
	}
	if overrides.MaxTokens != nil {
		p.MaxTokens = overrides.MaxTokens
	}
	return p
}

// Float returns a pointer to v for Parameters literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v for Parameters literals.
func Int(v int64) *int64 { return &v }

// ResponseFormat selects plain text or a JSON object response.
type ResponseFormat string

// Response formats.
const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json_object"
)

// OperationType distinguishes the three gateway operations for logging,
// caching and retry policy.
type OperationType string

// Gateway operations.
const (
	OpChat       OperationType = "chat"
	OpStructured OperationType = "structured"
	OpStream     OperationType = "stream"
)

// Request is the normalized form of one gateway call. Messages already
// include the resolved system message.
type Request struct {
	ID         string          `json:"id"`
	Operation  OperationType   `json:"operation"`
	Model      string          `json:"model"`
	Messages   []Message       `json:"messages"`
	Parameters Parameters      `json:"parameters"`
	Format     ResponseFormat  `json:"format,omitempty"`
	Schema     json.RawMessage `json:"schema,omitempty"`

	// EstimatedTokens is the token-bucket charge, filled by the service.
	EstimatedTokens int `json:"estimated_tokens"`

	// OnDelta receives streamed increments; only set for OpStream.
	OnDelta func(string) `json:"-"`
}

// Streaming reports whether the request wants an incremental response.
func (r *Request) Streaming() bool {
	return r.Operation == OpStream
}

// Cacheable reports whether responses to r may be memoized.
func (r *Request) Cacheable() bool {
	return r.Operation == OpChat || r.Operation == OpStructured
}

// Usage reports upstream token accounting.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is the normalized upstream result.
type Response struct {
	ID           string        `json:"id,omitempty"`
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        Usage         `json:"usage"`
	Latency      time.Duration `json:"latency"`

	// Cached is set on responses served from the cache.
	Cached bool `json:"-"`
}

// Clone returns a shallow copy safe to mutate per caller.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
