package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicConfig configures an Anthropic-shaped client: messages.create
// with an SSE event stream carrying delta.text/delta.thinking deltas.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// AnthropicClient implements Client against Anthropic's Messages API.
type AnthropicClient struct {
	client       anthropic.Client
	retrier      retrier
	defaultModel string
	maxTokens    int
}

// NewAnthropicClient builds an AnthropicClient from cfg.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		retrier:      newRetrier(cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) model() string { return c.defaultModel }

// Send streams a completion for prompt appended to history, feeding content
// and reasoning ("thinking") deltas to sink in arrival order.
func (c *AnthropicClient) Send(ctx context.Context, history []ChatMessage, prompt, systemPrompt string, sink StreamSink) (ChatMessage, error) {
	if sink == nil {
		sink = NopSink{}
	}
	start := time.Now()
	full, system := buildHistory(history, prompt, systemPrompt)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model()),
		Messages:  convertAnthropicMessages(full),
		MaxTokens: int64(c.maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]

	var lastErr error
	retryErr := c.retrier.Retry(ctx, func(err error) bool {
		return IsRetryable(c.wrapErr(err))
	}, func() error {
		stream = c.client.Messages.NewStreaming(ctx, params)
		return nil
	})
	if retryErr != nil {
		return ChatMessage{Role: RoleError, Content: retryErr.Error()}, retryErr
	}

	var content strings.Builder
	var reasoning strings.Builder
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					sink.OnContent(delta.Text)
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					reasoning.WriteString(delta.Thinking)
					sink.OnReasoning(delta.Thinking)
				}
			}
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
		case "message_stop":
			// handled after loop exits via stream.Err() check
		}
	}
	if err := stream.Err(); err != nil {
		lastErr = c.wrapErr(err)
		return ChatMessage{Role: RoleError, Content: lastErr.Error()}, lastErr
	}

	return ChatMessage{
		Role:      RoleAssistant,
		Content:   content.String(),
		Reasoning: reasoning.String(),
		Usage: Usage{
			InputTokens:    inputTokens,
			OutputTokens:   outputTokens,
			TotalTokens:    inputTokens + outputTokens,
			ElapsedSeconds: time.Since(start).Seconds(),
		},
	}, nil
}

func (c *AnthropicClient) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewProviderError("anthropic", c.model(), err).WithStatus(apiErr.StatusCode)
	}
	return NewProviderError("anthropic", c.model(), err)
}

func convertAnthropicMessages(messages []ChatMessage) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			continue
		}
		content := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result
}
