// Package providers implements transport.Upstream against OpenAI-compatible
// chat-completion APIs.
package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// RequestIDHeader carries the gateway request ID to the upstream.
const RequestIDHeader = "X-Request-ID"

// Client performs single chat-completion calls. It never retries; the
// gateway pipeline owns retries and rate limiting.
type Client struct {
	client *openai.Client
	logger *slog.Logger
}

var _ transport.Upstream = (*Client)(nil)

// NewClient creates an upstream client from cfg. The API key must already be
// resolved into cfg.APIKey.
func NewClient(cfg configuration.UpstreamConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, configuration.ErrMissingAPIKey
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = configuration.DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithHeader("OpenAI-Organization", cfg.Organization))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client: &client,
		logger: slog.Default().With("component", "upstream"),
	}, nil
}

// Complete performs one non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	completion, err := c.client.Chat.Completions.New(ctx, buildParams(req), requestOptions(req)...)
	if err != nil {
		return nil, upstreamError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &llmerrors.UpstreamError{Message: "response contained no choices"}
	}

	choice := completion.Choices[0]
	return &transport.Response{
		ID:           completion.ID,
		Model:        completion.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: transport.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}

// Stream performs one streaming chat completion, passing each non-empty
// content increment to onDelta. The returned response holds the text
// accumulated by this call only.
func (c *Client) Stream(ctx context.Context, req *transport.Request, onDelta func(string)) (*transport.Response, error) {
	params := buildParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params, requestOptions(req)...)
	defer stream.Close()

	var (
		content strings.Builder
		resp    transport.Response
		chunks  int
	)
	for stream.Next() {
		chunk := stream.Current()
		chunks++
		if resp.ID == "" {
			resp.ID = chunk.ID
			resp.Model = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			resp.Usage = transport.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			resp.FinishReason = choice.FinishReason
		}
		if delta := choice.Delta.Content; delta != "" {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		c.logger.Debug("stream interrupted",
			"request_id", req.ID,
			"chunks", chunks,
			"received", content.Len(),
			"error", err)
		return nil, upstreamError(err)
	}

	resp.Content = content.String()
	return &resp, nil
}

func requestOptions(req *transport.Request) []option.RequestOption {
	if req.ID == "" {
		return nil
	}
	return []option.RequestOption{option.WithHeader(RequestIDHeader, req.ID)}
}

// buildParams converts a gateway request to chat-completion parameters.
// Unset tuning fields are omitted so the upstream default applies.
func buildParams(req *transport.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: convertMessages(req.Messages),
	}

	p := req.Parameters
	if p.Temperature != nil {
		params.Temperature = openai.Float(*p.Temperature)
	}
	if p.TopP != nil {
		params.TopP = openai.Float(*p.TopP)
	}
	if p.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*p.FrequencyPenalty)
	}
	if p.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*p.PresencePenalty)
	}
	if p.MaxTokens != nil {
		params.MaxTokens = openai.Int(*p.MaxTokens)
	}

	if req.Format == transport.FormatJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params
}

func convertMessages(messages []transport.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case transport.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case transport.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Text()))
		case transport.RoleTool:
			out = append(out, openai.ToolMessage(msg.Text(), msg.ToolCallID))
		default:
			if len(msg.Parts) == 0 {
				out = append(out, openai.UserMessage(msg.Content))
				continue
			}
			out = append(out, openai.UserMessage(convertParts(msg)))
		}
	}
	return out
}

func convertParts(msg transport.Message) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts)+1)
	if msg.Content != "" {
		parts = append(parts, openai.TextContentPart(msg.Content))
	}
	for _, p := range msg.Parts {
		switch p.Type {
		case transport.PartImageURL:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: p.ImageURL,
			}))
		default:
			parts = append(parts, openai.TextContentPart(p.Text))
		}
	}
	return parts
}

// upstreamError converts an SDK failure into an *llmerrors.UpstreamError.
// HTTP failures carry their status and Retry-After hint; everything else
// keeps the original error as Cause for connection-level classification.
func upstreamError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &llmerrors.UpstreamError{Message: err.Error(), Cause: err}
	}

	message := apiErr.Message
	if message == "" {
		message = http.StatusText(apiErr.StatusCode)
	}

	out := &llmerrors.UpstreamError{
		StatusCode: apiErr.StatusCode,
		Message:    message,
		Code:       apiErr.Code,
		Cause:      err,
	}
	if apiErr.Response != nil {
		out.RetryAfter = parseRetryAfter(apiErr.Response.Header, time.Now())
	}
	return out
}

// parseRetryAfter reads retry-after-ms or Retry-After, which may be delta
// seconds or an HTTP date.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	if ms := h.Get("Retry-After-Ms"); ms != "" {
		if v, err := strconv.ParseFloat(ms, 64); err == nil && v > 0 {
			return time.Duration(v * float64(time.Millisecond))
		}
	}

	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
