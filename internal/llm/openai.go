package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-shaped client: Chat Completions with
// choices[].delta.content streaming and usage reported in the stream tail.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// OpenAIClient implements Client against the Chat Completions API.
type OpenAIClient struct {
	client       *openai.Client
	retrier      retrier
	defaultModel string
	maxTokens    int
}

// NewOpenAIClient builds an OpenAIClient from cfg.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		retrier:      newRetrier(cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

// Send streams a chat completion, accumulating choices[].delta.content and
// reporting usage from the stream's final chunk.
func (c *OpenAIClient) Send(ctx context.Context, history []ChatMessage, prompt, systemPrompt string, sink StreamSink) (ChatMessage, error) {
	if sink == nil {
		sink = NopSink{}
	}
	start := time.Now()
	full, system := buildHistory(history, prompt, systemPrompt)

	req := openai.ChatCompletionRequest{
		Model:    c.defaultModel,
		Messages: convertOpenAIMessages(full, system),
		Stream:   true,
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	var stream *openai.ChatCompletionStream
	retryErr := c.retrier.Retry(ctx, func(err error) bool {
		return IsRetryable(c.wrapErr(err))
	}, func() error {
		s, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if retryErr != nil {
		wrapped := c.wrapErr(retryErr)
		return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
	}
	defer stream.Close()

	var content strings.Builder
	var inputTokens, outputTokens int

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			wrapped := c.wrapErr(err)
			return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
		}
		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			content.WriteString(delta)
			sink.OnContent(delta)
		}
	}

	return ChatMessage{
		Role:    RoleAssistant,
		Content: content.String(),
		Usage: Usage{
			InputTokens:    inputTokens,
			OutputTokens:   outputTokens,
			TotalTokens:    inputTokens + outputTokens,
			ElapsedSeconds: time.Since(start).Seconds(),
		},
	}, nil
}

func (c *OpenAIClient) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError("openai", c.defaultModel, err).WithStatus(apiErr.HTTPStatusCode)
	}
	return NewProviderError("openai", c.defaultModel, err)
}

func convertOpenAIMessages(messages []ChatMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		role := msg.Role
		if role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		} else {
			role = openai.ChatMessageRoleUser
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return result
}
