package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig configures an Ollama-shaped client: line-delimited JSON
// chat responses over plain net/http, terminated by a `done:true` line.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaClient implements Client against Ollama's /api/chat endpoint.
type OllamaClient struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

// NewOllamaClient builds an OllamaClient from cfg.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaClient{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

// Send posts a streaming chat request and scans line-delimited JSON chunks
// until the response carrying done:true.
func (c *OllamaClient) Send(ctx context.Context, history []ChatMessage, prompt, systemPrompt string, sink StreamSink) (ChatMessage, error) {
	if sink == nil {
		sink = NopSink{}
	}
	start := time.Now()
	full, system := buildHistory(history, prompt, systemPrompt)

	model := c.defaultModel
	if model == "" {
		err := NewProviderError("ollama", "", errors.New("model is required"))
		return ChatMessage{Role: RoleError, Content: err.Error()}, err
	}

	messages := make([]ollamaChatMessage, 0, len(full)+1)
	if system != "" {
		messages = append(messages, ollamaChatMessage{Role: RoleSystem, Content: system})
	}
	for _, msg := range full {
		messages = append(messages, ollamaChatMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(ollamaChatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		wrapped := NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
		return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		wrapped := NewProviderError("ollama", model, err)
		return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		wrapped := NewProviderError("ollama", model, err)
		return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		wrapped := NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
		return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var content strings.Builder
	var inputTokens, outputTokens int

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			wrapped := NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err))
			return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
		}
		if chunk.Error != "" {
			wrapped := NewProviderError("ollama", model, errors.New(chunk.Error))
			return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
		}
		if chunk.Message != nil && chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			sink.OnContent(chunk.Message.Content)
		}
		if chunk.Done {
			inputTokens = chunk.PromptEvalCount
			outputTokens = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		wrapped := NewProviderError("ollama", model, err)
		return ChatMessage{Role: RoleError, Content: wrapped.Error()}, wrapped
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
