// Package llm provides the provider-agnostic transport: request/response
// types, authentication and message-conversion polymorphism points, the
// cache-marker injector, and the retry/rate-limit policy (spec §4.2).
package llm

import (
	"context"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/agenterrors"
	"github.com/forgekit/forge-agent/pkg/streaming"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// LLMRequest is the provider-agnostic request built by the agent loop.
type LLMRequest struct {
	Messages     []message.Message
	Tools        []tools.Spec
	SystemPrompt string
	ModelHint    string
}

// LLMResponse is the provider-agnostic finalized response.
type LLMResponse struct {
	Content       []message.Block
	Usage         message.Usage
	RateLimitInfo *agenterrors.RateLimitInfo
}

// RateLimitInfo is re-exported from pkg/agenterrors so callers of this
// package need not import it directly.
type RateLimitInfo = agenterrors.RateLimitInfo

// Provider is the uniform transport contract every LLM backend satisfies
// (Anthropic-native, Bedrock, …).
type Provider interface {
	// Name identifies the provider, e.g. for logging.
	Name() string
	// Send issues req and streams fragments to sink as they arrive,
	// returning the finalized response once the stream completes.
	Send(ctx context.Context, req LLMRequest, sink streaming.Sink) (*LLMResponse, error)
}

// AuthProvider supplies and, where supported, refreshes request credentials.
// Variants: static API key, bearer token with refresh, OS keyring-backed,
// and a mock for tests (spec §4.2, §9).
type AuthProvider interface {
	// Authenticate mutates headers to carry valid credentials.
	Authenticate(ctx context.Context, headers map[string]string) error
	// Refresh obtains fresh credentials; a provider without refresh support
	// (e.g. a static API key) returns an auth-kind *agenterrors.Error. The
	// providers in this module do not call it on a 401.
	Refresh(ctx context.Context) error
}

// RequestCustomizer lets a provider mutate the outbound wire JSON (version
// headers, beta flags) and choose the streaming vs. non-streaming URL
// variant, without the core send pipeline knowing provider-specific details.
type RequestCustomizer interface {
	CustomizeHeaders(headers map[string]string)
	// MutateBody is given the provider's already-serialized wire body and
	// may rewrite it in place (e.g. inject a beta flag) before it is sent.
	MutateBody(body map[string]any)
	StreamingURL(base string) string
}

// MessageConverter maps generic Messages to a provider's wire format,
// attaches cache controls, and elides blocks the provider can't carry
// (e.g. RedactedThinking going to a provider with no such concept).
// Stateless: a converter must not retain state across calls (spec §4.2.1).
type MessageConverter interface {
	// Convert returns the provider wire messages plus the extracted system
	// prompt (providers that require a separate system field, like
	// Anthropic, pull it out here).
	Convert(messages []message.Message) (systemPrompt string, wireMessages []any)
}
