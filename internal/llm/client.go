// Package llm wraps the generative service: an OpenAI-compatible chat
// client plus the parser that turns free-text model output into a
// validated Intent or Plan.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/deca/voicecmd/internal/config"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chatter is the outbound generative call. *Client implements it; tests
// substitute fakes.
type Chatter interface {
	ChatCompletion(ctx context.Context, messages []Message) (string, error)
}

// Client calls an OpenAI-compatible chat completion endpoint. It is an
// explicitly constructed value handed to the parser; there is no
// process-wide singleton.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	log         *zap.SugaredLogger
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	return &Client{
		apiKey:      cfg.LLMAPIKey,
		baseURL:     cfg.LLMBaseURL,
		model:       cfg.LLMModel,
		maxTokens:   cfg.LLMMaxTokens,
		temperature: cfg.LLMTemperature,
		httpClient: &http.Client{
			Timeout: cfg.LLMTimeout,
		},
		log: log,
	}
}

// ChatCompletion performs one blocking chat completion round trip and
// returns the raw text of the first choice.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	reqBody := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"stream":      false,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Warnw("chat API error", "status", resp.StatusCode, "body", string(respBody))
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.log.Debugw("chat completion ok", "model", c.model, "elapsed", time.Since(start))
	return result.Choices[0].Message.Content, nil
}
