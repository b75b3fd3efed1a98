// Package responder calls an OpenAI-compatible chat-completions endpoint
// to generate automated replies on behalf of an administrator.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"relaychat/pkg/types"
)

const systemPrompt = "You are a support agent answering on behalf of the site's team. Reply briefly and helpfully to the visitor's message."

// Config configures the gateway. An empty APIKey leaves it unconfigured;
// Generate then returns ErrNotConfigured without a network call.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Gateway implements interfaces.Responder against any OpenAI-compatible
// API. The call is scoped to one submission; its timeout and failure never
// reach other conversations.
type Gateway struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewGateway builds the gateway with a dedicated HTTP client so responder
// latency shares nothing with the rest of the process.
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
	}

	return &Gateway{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger.With(zap.String("component", "responder")),
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate produces a reply for prompt with history as prior context,
// oldest turn first. Fails with ErrNotConfigured, *UpstreamError, or a
// wrapped transport error; callers map all three to a fallback message.
func (g *Gateway) Generate(ctx context.Context, prompt string, history []types.Turn) (string, error) {
	if g.apiKey == "" {
		return "", ErrNotConfigured
	}

	messages := make([]apiMessage, 0, len(history)+2)
	messages = append(messages, apiMessage{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, apiMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, apiMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(apiRequest{Model: g.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("responder request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrMalformedResponse
	}

	g.logger.Debug("generation complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("history_turns", len(history)),
	)

	return parsed.Choices[0].Message.Content, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
