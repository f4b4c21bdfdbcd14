// Package scriptgen asks a chat-completions model for a Host/Guest dialogue.
package scriptgen

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	maxErrorBody = 4096
)

const systemPrompt = `You write scripts for a two-person podcast.
Every line of dialogue must start with "Host:" or "Guest:" followed by what that person says.
Alternate between the Host and the Guest. Do not add stage directions, headings, music cues or narration.`

// APIError is returned when the completions endpoint answers with a non-200 status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scriptgen: status %d: %s", e.StatusCode, e.Body)
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Client. Empty baseURL and model fall back to the
// OpenAI defaults.
func NewClient(apiKey, baseURL, model string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = otelLog
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return operation + " " + r.URL.Path
				}),
			),
		},
		log: logger.With("component", "scriptgen", "model", model),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate returns the raw dialogue the model wrote about topic.
func (c *Client) Generate(ctx context.Context, topic string) (string, error) {
	ctx, span := tracer.Start(ctx, "generate script")
	defer span.End()
	span.SetAttributes(attribute.String("model", c.model), attribute.Int("topic.length", len(topic)))

	text, err := c.complete(ctx, topic)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	generated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return text, err
}

func (c *Client) complete(ctx context.Context, topic string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Write a podcast dialogue about: " + topic},
		},
	})
	if err != nil {
		return "", fmt.Errorf("scriptgen: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("scriptgen: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scriptgen: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("scriptgen: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("scriptgen: response has no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	c.log.Debug("script received", "length", len(text), "elapsed", time.Since(start))
	return text, nil
}
