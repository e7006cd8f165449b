package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"metaapi-trading-bot/config"
)

// Provider represents the LLM provider type
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

// Default API endpoints per provider
const (
	ClaudeURL   = "https://api.anthropic.com"
	OpenAIURL   = "https://api.openai.com"
	DeepSeekURL = "https://api.deepseek.com"
)

// ErrNotConfigured is returned when no API key is set for the provider
var ErrNotConfigured = errors.New("llm client not configured")

// ClientConfig holds LLM client configuration
type ClientConfig struct {
	Provider    Provider      `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	BaseURL     string        `json:"base_url"` // Overrides the provider endpoint
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Provider:    ProviderClaude,
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   64,
		Temperature: 0,
		Timeout:     30 * time.Second,
	}
}

// ConfigFromAI builds a client configuration from the AI config section
func ConfigFromAI(ai config.AIConfig) *ClientConfig {
	cfg := DefaultClientConfig()
	if ai.LLMProvider != "" {
		cfg.Provider = Provider(ai.LLMProvider)
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		cfg.APIKey = ai.OpenAIAPIKey
		cfg.Model = "gpt-4o-mini"
	case ProviderDeepSeek:
		cfg.APIKey = ai.DeepSeekAPIKey
		cfg.Model = "deepseek-chat"
	default:
		cfg.APIKey = ai.ClaudeAPIKey
	}
	if ai.LLMModel != "" {
		cfg.Model = ai.LLMModel
	}
	if ai.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(ai.TimeoutSeconds) * time.Second
	}
	return cfg
}

// Client is the LLM API client
type Client struct {
	config *ClientConfig
	http   *resty.Client
}

// NewClient creates a new LLM client
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch cfg.Provider {
		case ProviderOpenAI:
			baseURL = OpenAIURL
		case ProviderDeepSeek:
			baseURL = DeepSeekURL
		default:
			baseURL = ClaudeURL
		}
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Client{config: cfg, http: client}
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeRequest represents a Claude API request
type ClaudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
}

// ClaudeResponse represents a Claude API response
type ClaudeResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIRequest represents an OpenAI-compatible chat request
type OpenAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// OpenAIResponse represents an OpenAI-compatible chat response
type OpenAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a completion request to the LLM
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	switch c.config.Provider {
	case ProviderClaude:
		return c.completeClaude(ctx, systemPrompt, userPrompt)
	case ProviderOpenAI, ProviderDeepSeek:
		return c.completeChat(ctx, systemPrompt, userPrompt)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

func (c *Client) completeClaude(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out ClaudeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.config.APIKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(ClaudeRequest{
			Model:       c.config.Model,
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
			System:      systemPrompt,
			Messages:    []Message{{Role: "user", Content: userPrompt}},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	if out.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", out.Error.Type, out.Error.Message)
	}
	if resp.IsError() {
		return "", fmt.Errorf("API error: status %d", resp.StatusCode())
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("empty response from Claude")
	}
	return out.Content[0].Text, nil
}

// completeChat serves OpenAI and DeepSeek, which share the chat completions API
func (c *Client) completeChat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var out OpenAIResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.config.APIKey).
		SetBody(OpenAIRequest{
			Model: c.config.Model,
			Messages: []Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	if out.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", out.Error.Type, out.Error.Message)
	}
	if resp.IsError() {
		return "", fmt.Errorf("API error: status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s", c.config.Provider)
	}
	return out.Choices[0].Message.Content, nil
}

// GetProvider returns the configured provider
func (c *Client) GetProvider() Provider {
	return c.config.Provider
}

// IsConfigured checks if the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
