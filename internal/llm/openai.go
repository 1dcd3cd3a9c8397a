package llm

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
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// HTTPDoer allows tests to fake HTTP transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAIClient calls an OpenAI-compatible Chat Completions endpoint in JSON mode.
type OpenAIClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient HTTPDoer
}

// NewOpenAIClient creates a client; a nil httpClient gets one bounded by cfg.Timeout.
func NewOpenAIClient(cfg Config, httpClient HTTPDoer) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is empty")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModels[ProviderOpenAI]
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		model:      model,
		endpoint:   strings.TrimRight(base, "/") + "/v1/chat/completions",
		httpClient: httpClient,
	}, nil
}

func (c *OpenAIClient) Name() string  { return string(ProviderOpenAI) }
func (c *OpenAIClient) Model() string { return c.model }
func (c *OpenAIClient) Close() error  { return nil }

// GenerateJSON requests a json_object response and returns the message content.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	payload, err := json.Marshal(chatCompletionsRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.1,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read openai response: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(body))
		var apiErr openAIErrorEnvelope
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", &StatusError{Provider: c.Name(), StatusCode: response.StatusCode, Message: msg}
	}

	var parsed chatCompletionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if parsed.Error.Message != "" {
		return "", fmt.Errorf("openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	message := parsed.Choices[0].Message
	if strings.TrimSpace(message.Refusal) != "" {
		return "", fmt.Errorf("openai refusal: %s", strings.TrimSpace(message.Refusal))
	}

	content, err := parseMessageContent(message.Content)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(content), nil
}

func parseMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var asParts []responseContentPart
	if err := json.Unmarshal(raw, &asParts); err == nil {
		var builder strings.Builder
		for _, part := range asParts {
			if part.Type == "text" {
				builder.WriteString(part.Text)
			}
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("unsupported openai message content format: %s", string(raw))
}

type chatCompletionsRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice        `json:"choices"`
	Error   openAIErrorResponse `json:"error"`
}

type chatChoice struct {
	Message chatMessageResponse `json:"message"`
}

type chatMessageResponse struct {
	Content json.RawMessage `json:"content"`
	Refusal string          `json:"refusal"`
}

type responseContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIErrorEnvelope struct {
	Error openAIErrorResponse `json:"error"`
}

type openAIErrorResponse struct {
	Message string `json:"message"`
}
