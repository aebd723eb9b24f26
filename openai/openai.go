package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"xray-diagnosis-service/llm"
	"xray-diagnosis-service/parser"
)

const chatEndpoint = "https://api.openai.com/v1/chat/completions"

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Client is the OpenAI vision adapter.
type Client struct {
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
	endpoint   string
}

// NewClient creates a new OpenAI vision client.
func NewClient(apiKey, model string, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		endpoint:   chatEndpoint,
	}
}

func (c *Client) Name() string  { return "openai" }
func (c *Client) Model() string { return c.model }

// Analyze sends the encoded chest X-ray and symptoms to the OpenAI vision
// API and returns the decoded diagnosis payload.
func (c *Client) Analyze(ctx context.Context, imageBase64, symptoms string) (map[string]any, *llm.ProviderError) {
	if c.apiKey == "" {
		return nil, llm.Permanent(c.Name(), "API key not configured", nil)
	}

	reqBody := ChatRequest{
		Model:       c.model,
		Temperature: 0.1,
		MaxTokens:   4096,
		Messages: []Message{
			{
				Role: "user",
				Content: []any{
					TextContent{Type: "text", Text: llm.BuildPrompt(symptoms)},
					ImageContent{
						Type:     "image_url",
						ImageURL: ImageURL{URL: "data:image/jpeg;base64," + imageBase64},
					},
				},
			},
		},
	}

	return llm.Retry(ctx, c.maxRetries, time.Second, func() (map[string]any, *llm.ProviderError) {
		return c.call(ctx, reqBody)
	})
}

func (c *Client) call(ctx context.Context, reqBody ChatRequest) (map[string]any, *llm.ProviderError) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, llm.Transient(c.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Transient(c.Name(), "failed to read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, llm.Transient(c.Name(), fmt.Sprintf("API error (status %d)", resp.StatusCode), nil)
	default:
		return nil, llm.Permanent(c.Name(), fmt.Sprintf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 200)), nil)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, llm.Permanent(c.Name(), "failed to parse response envelope", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.Permanent(c.Name(), "no choices in response", nil)
	}

	choice := chatResp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, llm.Permanent(c.Name(), "model refused: "+truncate(choice.Message.Refusal, 120), nil)
	}
	if choice.FinishReason == "content_filter" {
		return nil, llm.Permanent(c.Name(), "response blocked by content filter", nil)
	}

	content := choice.Message.Content
	if content == "" {
		return nil, llm.Permanent(c.Name(), "empty response content", nil)
	}
	if parser.IsRefusal(content) {
		return nil, llm.Permanent(c.Name(), "model refused to analyze medical image", nil)
	}

	payload, err := parser.Decode(content)
	if err != nil {
		return nil, llm.Permanent(c.Name(), "malformed JSON in response", err)
	}
	return payload, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
