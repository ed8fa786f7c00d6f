// Package anthropic implements the Native-dialect Provider for Anthropic's
// Messages API (spec §4.2). It uses anthropic-sdk-go to build the typed
// request body, then sends it over a plain http.Client and hands the
// response body to pkg/streaming directly, so the project's own Streaming
// Parser — not the SDK's bundled one — does the event parsing.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/agenterrors"
	"github.com/forgekit/forge-agent/pkg/llm"
	"github.com/forgekit/forge-agent/pkg/streaming"
	"github.com/forgekit/forge-agent/pkg/tools"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 4096
)

// Config configures a Client.
type Config struct {
	Endpoint  string
	MaxTokens int64
	Timeout   time.Duration

	Auth       llm.AuthProvider
	Customizer llm.RequestCustomizer // optional; nil uses the default headers/URL
}

// Client implements llm.Provider for Anthropic's native Messages API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a Client. auth must not be nil.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "anthropic" }

// Send implements llm.Provider: builds the wire request via anthropic-sdk-go
// types, POSTs it, and parses the SSE response through pkg/streaming.
func (c *Client) Send(ctx context.Context, req llm.LLMRequest, sink streaming.Sink) (*llm.LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.ModelHint),
		MaxTokens: c.cfg.MaxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	params.Messages = convertMessages(req.Messages)

	body, err := json.Marshal(params)
	if err != nil {
		return nil, agenterrors.NewInvalidRequestError("marshal request", err)
	}
	body, err = injectStreamingAndCache(body, req.Messages)
	if err != nil {
		return nil, agenterrors.NewInvalidRequestError("inject cache markers", err)
	}
	endpoint := c.cfg.Endpoint
	if c.cfg.Customizer != nil {
		var wire map[string]any
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, agenterrors.NewInvalidRequestError("decode request for customizer", err)
		}
		c.cfg.Customizer.MutateBody(wire)
		if body, err = json.Marshal(wire); err != nil {
			return nil, agenterrors.NewInvalidRequestError("marshal customized request", err)
		}
		endpoint = c.cfg.Customizer.StreamingURL(endpoint)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, agenterrors.NewInvalidRequestError("build HTTP request", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("anthropic-version", defaultVersion)
	headers := map[string]string{}
	if c.cfg.Auth != nil {
		if err := c.cfg.Auth.Authenticate(ctx, headers); err != nil {
			return nil, err
		}
	}
	if c.cfg.Customizer != nil {
		c.cfg.Customizer.CustomizeHeaders(headers)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, agenterrors.NewNetworkError("sending request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		info := parseRateLimitHeaders(resp.Header)
		return nil, agenterrors.NewRateLimitError(fmt.Sprintf("status %d", resp.StatusCode), info, nil)
	}
	if resp.StatusCode >= 500 {
		return nil, agenterrors.NewServiceError(fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, agenterrors.NewAuthError(fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, agenterrors.NewInvalidRequestError(fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	blocks, usage, err := streaming.Run(resp.Body, streaming.SyntaxNative, sink, nil, nil)
	if err != nil {
		return nil, err
	}
	return &llm.LLMResponse{
		Content:       blocks,
		Usage:         usage,
		RateLimitInfo: parseRateLimitHeaders(resp.Header),
	}, nil
}

func convertMessages(messages []message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var content []anthropic.ContentBlockParamUnion
		for _, b := range m.Content {
			switch v := b.(type) {
			case message.TextBlock:
				content = append(content, anthropic.NewTextBlock(v.Text))
			case message.ImageBlock:
				// Image blocks are replaced by a "[image omitted]" text
				// placeholder; the image data itself is not forwarded.
				content = append(content, anthropic.NewTextBlock("[image omitted]"))
			case message.ToolUseBlock:
				content = append(content, anthropic.NewToolUseBlock(v.ID, v.Input, v.Name))
			case message.ToolResultBlock:
				isErr := v.IsError != nil && *v.IsError
				content = append(content, anthropic.NewToolResultBlock(v.ToolUseID, v.Content, isErr))
			}
		}
		if len(content) == 0 {
			continue
		}
		if m.Role == message.Assistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out
}

func convertTools(specs []tools.Spec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		raw, _ := json.Marshal(s.ParametersSchema)
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(raw, &schema)
		param := anthropic.ToolUnionParamOfTool(schema, s.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(s.Description)
		}
		out = append(out, param)
	}
	return out
}

// injectStreamingAndCache sets "stream": true and walks the already-built
// wire body to attach ephemeral cache_control markers per spec §4.2's
// message-count formula, without needing SDK-side cache-control field
// support.
func injectStreamingAndCache(body []byte, messages []message.Message) ([]byte, error) {
	var wire map[string]any
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	wire["stream"] = true

	marks := llm.CacheMarks(len(messages))
	if len(marks) == 0 {
		return json.Marshal(wire)
	}
	wireMessages, _ := wire["messages"].([]any)
	for idx := range marks {
		if idx < 0 || idx >= len(wireMessages) {
			continue
		}
		msgObj, ok := wireMessages[idx].(map[string]any)
		if !ok {
			continue
		}
		content, _ := msgObj["content"].([]any)
		ci := llm.FirstCacheableIndex(messages[idx])
		if ci < 0 || ci >= len(content) {
			continue
		}
		block, ok := content[ci].(map[string]any)
		if !ok {
			continue
		}
		block["cache_control"] = map[string]any{"type": "ephemeral"}
	}
	return json.Marshal(wire)
}

func parseRateLimitHeaders(h http.Header) *agenterrors.RateLimitInfo {
	info := &agenterrors.RateLimitInfo{}
	hasInfo := false
	if v := h.Get("anthropic-ratelimit-requests-remaining"); v != "" {
		if n, err := parseInt(v); err == nil {
			info.RequestsRemaining = &n
			hasInfo = true
		}
	}
	if v := h.Get("anthropic-ratelimit-tokens-remaining"); v != "" {
		if n, err := parseInt(v); err == nil {
			info.TokensRemaining = &n
			hasInfo = true
		}
	}
	if v := h.Get("retry-after"); v != "" {
		if n, err := parseInt(v); err == nil {
			d := time.Duration(n) * time.Second
			info.RetryAfter = &d
			hasInfo = true
		}
	}
	if !hasInfo {
		return nil
	}
	return info
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
