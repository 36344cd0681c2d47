// Package anthropic implements the Chatter interface on the official
// Anthropic SDK, with streaming via Messages.NewStreaming and event
// accumulation.
package anthropic

import (
	"context"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/llm/provider"
)

const (
	// DefaultModel is used when a request carries no model.
	DefaultModel = "claude-sonnet-4-5"

	// defaultMaxTokens applies when the request does not set a cap; the
	// Anthropic API requires one.
	defaultMaxTokens = 1024
)

// Chatter is an Anthropic chat client.
type Chatter struct {
	client anthropicsdk.Client
}

// Config holds configuration for the Anthropic chatter.
type Config struct {
	// APIKey overrides the ANTHROPIC_API_KEY environment variable when set.
	APIKey string
}

// NewChatter creates an Anthropic chat client.
func NewChatter(cfg Config) *Chatter {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &Chatter{
		client: anthropicsdk.NewClient(opts...),
	}
}

// Name returns the canonical provider name.
func (c *Chatter) Name() string {
	return "anthropic"
}

// Chat performs a blocking chat completion.
func (c *Chatter) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params := buildParams(req)

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	return toResponse(msg), nil
}

// ChatStream performs a streaming chat completion, invoking handler per text
// delta. The accumulated message is returned once the stream ends.
func (c *Chatter) ChatStream(ctx context.Context, req *llm.ChatRequest, handler provider.StreamHandler) (*llm.ChatResponse, error) {
	params := buildParams(req)

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropicsdk.Message{}

	for stream.Next() {
		event := stream.Current()

		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulating stream event: %w", err)
		}

		switch evt := event.AsAny().(type) {
		case anthropicsdk.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropicsdk.TextDelta:
				if handler != nil {
					err := handler(llm.StreamChunk{
						Model:     string(params.Model),
						CreatedAt: time.Now(),
						Message:   llm.NewMessage(llm.RoleAssistant, delta.Text),
					})
					if err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream error: %w", err)
	}

	resp := toResponse(&message)

	if handler != nil {
		err := handler(llm.StreamChunk{
			Model:      resp.Model,
			CreatedAt:  time.Now(),
			Message:    llm.NewMessage(llm.RoleAssistant, ""),
			Done:       true,
			StopReason: resp.StopReason,
			Usage:      resp.Usage,
		})
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// buildParams translates the internal request into Anthropic message params.
func buildParams(req *llm.ChatRequest) anthropicsdk.MessageNewParams {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = int64(*req.MaxTokens)
	}

	messages := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleAssistant:
			messages = append(messages, anthropicsdk.NewAssistantMessage(
				anthropicsdk.NewTextBlock(m.Content),
			))
		default:
			messages = append(messages, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(m.Content),
			))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}

	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.System},
		}
	}

	if req.Temperature != nil {
		params.Temperature = anthropicsdk.Float(*req.Temperature)
	}

	return params
}

// toResponse translates an Anthropic message into the internal response format.
func toResponse(msg *anthropicsdk.Message) *llm.ChatResponse {
	var content string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			content += text.Text
		}
	}

	return &llm.ChatResponse{
		Model:      string(msg.Model),
		CreatedAt:  time.Now(),
		Message:    llm.NewMessage(llm.RoleAssistant, content),
		Done:       true,
		StopReason: string(msg.StopReason),
		Usage: &llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// Ensure Chatter implements provider.Chatter
var _ provider.Chatter = (*Chatter)(nil)
