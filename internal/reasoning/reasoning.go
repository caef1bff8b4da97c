// Package reasoning is the agents' external LLM client: a single
// "demand a JSON object back" call used by the analyst, strategist, and
// sentinel agents (§4.7). Adapted from the teacher's browser-automation
// Anthropic/OpenAI providers, trimmed to the one call shape every agent
// needs — no tool-calling, no summarization/extraction helpers.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/pkg/observability"
)

// Client asks an LLM provider for a JSON-structured response to a
// prompt and unmarshals it into out.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, out interface{}) error
}

// New builds the configured provider (§6: LLM_PROVIDER ∈ {anthropic,openai}).
func New(cfg config.SwarmConfig, logger *observability.Logger) (Client, error) {
	switch cfg.LLMProvider {
	case "anthropic", "":
		model := cfg.LLMModel
		if model == "" {
			model = "claude-3-sonnet-20240229"
		}
		return &anthropicClient{apiKey: cfg.LLMAPIKey, model: model, maxTokens: cfg.LLMMaxTokens, httpClient: &http.Client{Timeout: 60 * time.Second}, logger: logger}, nil
	case "openai":
		model := cfg.LLMModel
		if model == "" {
			model = "gpt-4o-mini"
		}
		return &openAIClient{apiKey: cfg.LLMAPIKey, model: model, maxTokens: cfg.LLMMaxTokens, httpClient: &http.Client{Timeout: 30 * time.Second}, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func unmarshalJSONResponse(text string, out interface{}) error {
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to parse reasoning response as json: %w", err)
	}
	return nil
}

// --- Anthropic ---

type anthropicClient struct {
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *observability.Logger
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Model   string                  `json:"model"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *anthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, out interface{}) error {
	ctx, span := observability.SpanFromContext(ctx).TracerProvider().Tracer("reasoning").Start(ctx, "anthropic.Complete")
	defer span.End()

	request := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicContentBlock{{Type: "text", Text: userPrompt}}},
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	var response anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode anthropic response: %w", err)
	}
	if response.Error != nil {
		return fmt.Errorf("anthropic api error: %s", response.Error.Message)
	}
	if len(response.Content) == 0 {
		return fmt.Errorf("anthropic response had no content blocks")
	}

	c.logger.Info(ctx, "reasoning call completed", map[string]interface{}{
		"provider":      "anthropic",
		"model":         response.Model,
		"input_tokens":  response.Usage.InputTokens,
		"output_tokens": response.Usage.OutputTokens,
	})

	return unmarshalJSONResponse(response.Content[0].Text, out)
}

// --- OpenAI ---

type openAIClient struct {
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *observability.Logger
}

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string, out interface{}) error {
	ctx, span := observability.SpanFromContext(ctx).TracerProvider().Tracer("reasoning").Start(ctx, "openai.Complete")
	defer span.End()

	request := openAIRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	var response openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode openai response: %w", err)
	}
	if response.Error != nil {
		return fmt.Errorf("openai api error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return fmt.Errorf("openai response had no choices")
	}

	c.logger.Info(ctx, "reasoning call completed", map[string]interface{}{
		"provider":          "openai",
		"model":             response.Model,
		"prompt_tokens":     response.Usage.PromptTokens,
		"completion_tokens": response.Usage.CompletionTokens,
	})

	return unmarshalJSONResponse(response.Choices[0].Message.Content, out)
}
