package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/replykit-io/replykit/internal/config"
)

const (
	defaultModel    = "gpt-4"
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultTimeout  = 30 * time.Second
)

// ErrEmptyReply is returned when the model produced no usable text.
var ErrEmptyReply = errors.New("reply: model returned empty response")

// Generator drafts a reply body for one inbound message.
type Generator interface {
	Generate(ctx context.Context, pc PromptContext) (string, error)
}

// OpenAIGenerator calls the OpenAI chat completions API.
type OpenAIGenerator struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIGenerator builds a generator from the ai config section.
func NewOpenAIGenerator(cfg config.AIConfig) *OpenAIGenerator {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAIGenerator{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends the prompt to the completions endpoint and returns the
// drafted reply body.
func (g *OpenAIGenerator) Generate(ctx context.Context, pc PromptContext) (string, error) {
	system, user := BuildPrompt(pc)
	payload := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
		MaxTokens:   600,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("reply: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("reply: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reply: completions call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reply: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("reply: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("reply: completions status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("reply: completions status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
