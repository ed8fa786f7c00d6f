// Package bedrock implements a second, structurally distinct Provider (spec
// §4.2) on top of AWS Bedrock's Converse API. It exercises the
// MessageConverter and AuthProvider polymorphism points end to end: its wire
// format (Converse's content-block union) has nothing in common with the
// Anthropic Messages API json that pkg/llm/anthropic builds, and its
// authentication is AWS SigV4 via the default credential chain rather than a
// header-carried AuthProvider.
//
// The teacher's own ChatStream for this API is disabled: the ConverseStream
// event stream serializes tool
// schemas through document.NewLazyDocument, which drops tool input to {}.
// This provider therefore only implements the non-streaming Converse call,
// and synthesizes the fragment sequence a streaming call would have
// produced so callers still see ToolName/ToolParameter/ToolEnd/Complete.
// Block timestamps are distributed the way spec §4.2 describes for
// non-streaming responses: start at request start, end at response end.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/forgekit/forge-agent/internal/message"
	"github.com/forgekit/forge-agent/pkg/agenterrors"
	"github.com/forgekit/forge-agent/pkg/llm"
	"github.com/forgekit/forge-agent/pkg/streaming"
	"github.com/forgekit/forge-agent/pkg/tools"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 1.0
)

// Config configures a Client. Region is required; credentials resolve in the
// same three-branch order the teacher uses: explicit access keys, then a
// named profile, then the SDK's default chain (env vars, shared config,
// IAM role).
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string

	ModelID     string
	MaxTokens   int32
	Temperature float32
}

// Client implements llm.Provider against AWS Bedrock's Converse API.
type Client struct {
	cfg    Config
	client *bedrockruntime.Client
}

// NewClient resolves AWS credentials per cfg and returns a ready Client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		return nil, agenterrors.NewInvalidRequestError("bedrock: Region is required", nil)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	case cfg.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, agenterrors.NewAuthError("loading AWS credentials", err)
	}

	return &Client{cfg: cfg, client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "bedrock" }

// Send implements llm.Provider by issuing a single non-streaming Converse
// call and replaying its result as a synthetic fragment sequence.
func (c *Client) Send(ctx context.Context, req llm.LLMRequest, sink streaming.Sink) (*llm.LLMResponse, error) {
	start := time.Now()

	modelID := c.cfg.ModelID
	if req.ModelHint != "" {
		modelID = req.ModelHint
	}

	converseMessages := convertMessages(req.Messages)
	if len(converseMessages) == 0 {
		return nil, agenterrors.NewInvalidRequestError("bedrock: no messages to send", nil)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: converseMessages,
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.cfg.MaxTokens),
			Temperature: aws.Float32(c.cfg.Temperature),
		},
	}
	if req.SystemPrompt != "" {
		input.System = []bedrocktypes.SystemContentBlock{&bedrocktypes.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = convertTools(req.Tools)
	}

	output, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, classifyError(err)
	}

	blocks, usage := extractResponse(output, start, time.Now())
	emitSyntheticFragments(sink, blocks)

	return &llm.LLMResponse{Content: blocks, Usage: usage}, nil
}

// convertMessages maps the shared Message/Block vocabulary onto Converse's
// content-block union (spec §4.2's MessageConverter polymorphism point).
// There is no system-role Block; system prompts travel via LLMRequest.
// SystemPrompt and are attached to ConverseInput directly by the caller.
func convertMessages(messages []message.Message) []bedrocktypes.Message {
	var out []bedrocktypes.Message

	for _, m := range messages {
		var content []bedrocktypes.ContentBlock
		for _, b := range m.Content {
			switch v := b.(type) {
			case message.TextBlock:
				content = append(content, &bedrocktypes.ContentBlockMemberText{Value: v.Text})
			case message.ImageBlock:
				content = append(content, &bedrocktypes.ContentBlockMemberText{Value: "[image omitted]"})
			case message.ToolUseBlock:
				input := document.NewLazyDocument(v.Input)
				content = append(content, &bedrocktypes.ContentBlockMemberToolUse{
					Value: bedrocktypes.ToolUseBlock{
						ToolUseId: aws.String(v.ID),
						Name:      aws.String(v.Name),
						Input:     input,
					},
				})
			case message.ToolResultBlock:
				status := bedrocktypes.ToolResultStatusSuccess
				if v.IsError != nil && *v.IsError {
					status = bedrocktypes.ToolResultStatusError
				}
				content = append(content, &bedrocktypes.ContentBlockMemberToolResult{
					Value: bedrocktypes.ToolResultBlock{
						ToolUseId: aws.String(v.ToolUseID),
						Status:    status,
						Content: []bedrocktypes.ToolResultContentBlock{
							&bedrocktypes.ToolResultContentBlockMemberText{Value: v.Content},
						},
					},
				})
			}
		}
		if len(content) == 0 {
			continue
		}
		role := bedrocktypes.ConversationRoleUser
		if m.Role == message.Assistant {
			role = bedrocktypes.ConversationRoleAssistant
		}
		out = append(out, bedrocktypes.Message{Role: role, Content: content})
	}
	return out
}

func convertTools(specs []tools.Spec) *bedrocktypes.ToolConfiguration {
	var out []bedrocktypes.Tool
	for _, s := range specs {
		input := document.NewLazyDocument(s.ParametersSchema)
		out = append(out, &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpecification{
				Name:        aws.String(s.Name),
				Description: aws.String(s.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{Value: input},
			},
		})
	}
	return &bedrocktypes.ToolConfiguration{Tools: out}
}

func extractResponse(output *bedrockruntime.ConverseOutput, start, end time.Time) ([]message.Block, message.Usage) {
	var blocks []message.Block
	if msg, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage); ok {
		for i, b := range msg.Value.Content {
			blocks = append(blocks, toBlock(b, start, end, i, len(msg.Value.Content)))
		}
	}

	usage := message.Usage{}
	if output.Usage != nil {
		usage.InputTokens = uint32(aws.ToInt32(output.Usage.InputTokens))
		usage.OutputTokens = uint32(aws.ToInt32(output.Usage.OutputTokens))
	}
	return blocks, usage
}

// toBlock distributes start/end timestamps across a non-streaming
// response's blocks (spec §4.2): the first block starts at request start,
// the last ends at response end, everything between is interpolated evenly.
func toBlock(b bedrocktypes.ContentBlock, start, end time.Time, index, total int) message.Block {
	blockStart, blockEnd := interpolate(start, end, index, total)

	var block message.Block
	switch v := b.(type) {
	case *bedrocktypes.ContentBlockMemberText:
		block = message.TextBlock{Text: v.Value}
	case *bedrocktypes.ContentBlockMemberToolUse:
		var input map[string]any
		if v.Value.Input != nil {
			raw, _ := v.Value.Input.MarshalSmithyDocument()
			_ = json.Unmarshal(raw, &input)
		}
		block = message.ToolUseBlock{
			ID:    aws.ToString(v.Value.ToolUseId),
			Name:  aws.ToString(v.Value.Name),
			Input: input,
		}
	default:
		block = message.TextBlock{}
	}
	return message.WithTimes(block, blockStart, blockEnd)
}

func interpolate(start, end time.Time, index, total int) (time.Time, time.Time) {
	if total <= 1 {
		return start, end
	}
	span := end.Sub(start) / time.Duration(total)
	return start.Add(span * time.Duration(index)), start.Add(span * time.Duration(index+1))
}

// emitSyntheticFragments replays a finished response through sink as the
// fragment sequence a streaming call would have produced, so UI code does
// not need a separate non-streaming code path.
func emitSyntheticFragments(sink streaming.Sink, blocks []message.Block) {
	if sink == nil {
		return
	}
	for _, b := range blocks {
		switch v := b.(type) {
		case message.TextBlock:
			sink.Send(streaming.PlainText{Text: v.Text})
		case message.ToolUseBlock:
			sink.Send(streaming.ToolName{Name: v.Name, ID: v.ID})
			for k, val := range v.Input {
				raw, _ := json.Marshal(val)
				sink.Send(streaming.ToolParameter{ToolID: v.ID, Name: k, Value: string(raw)})
			}
			sink.Send(streaming.ToolEnd{ID: v.ID})
		}
	}
	sink.Send(streaming.Complete{})
}

func classifyError(err error) error {
	return agenterrors.NewServiceError(fmt.Sprintf("bedrock converse: %v", err), err)
}
