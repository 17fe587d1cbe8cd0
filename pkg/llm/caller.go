package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type caller struct {
	client  *http.Client
	timeout time.Duration
	apiKey  string
	baseURL string
	model   string
	logger  *slog.Logger
}

// post sends body as JSON and decodes a 200 reply into out.
func (c *caller) post(ctx context.Context, provider, path string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("llm call",
		"provider", provider,
		"model", c.model,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: provider, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// --- OpenAI caller ---

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat *openAIRespFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *caller) openai(ctx context.Context, r Request) (string, error) {
	body := openAIRequest{
		Model:     c.model,
		Messages:  messages(r),
		MaxTokens: r.MaxTokens,
	}
	if r.JSON {
		body.ResponseFormat = &openAIRespFormat{Type: "json_object"}
	}

	var result openAIResponse
	err := c.post(ctx, ProviderOpenAI, "/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey}, body, &result)
	if err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("openai error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", ErrEmptyReply)
	}
	return nonEmpty(result.Choices[0].Message.Content)
}

// --- Anthropic caller ---

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *caller) anthropic(ctx context.Context, r Request) (string, error) {
	prompt := r.Prompt
	if r.JSON {
		prompt += "\n\nReturn ONLY valid JSON, no markdown or extra text."
	}
	maxTokens := r.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    r.System,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}

	var result anthropicResponse
	err := c.post(ctx, ProviderAnthropic, "/v1/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, body, &result)
	if err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("anthropic error: %s", result.Error.Message)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return nonEmpty(text.String())
}

// --- Ollama caller ---

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (c *caller) ollama(ctx context.Context, r Request) (string, error) {
	body := ollamaChatRequest{
		Model:    c.model,
		Messages: messages(r),
		Stream:   false,
	}
	if r.JSON {
		body.Format = "json"
	}
	if r.MaxTokens > 0 {
		body.Options = map[string]any{"num_predict": r.MaxTokens}
	}

	var result ollamaChatResponse
	if err := c.post(ctx, ProviderOllama, "/api/chat", nil, body, &result); err != nil {
		return "", err
	}
	return nonEmpty(result.Message.Content)
}

func messages(r Request) []chatMessage {
	var msgs []chatMessage
	if r.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: r.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: r.Prompt})
}

func nonEmpty(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyReply
	}
	return s, nil
}
