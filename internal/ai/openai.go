package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// HTTPDoer allows tests to fake HTTP transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI, DashScope compatible mode, vLLM, Ollama).
type OpenAIClient struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient HTTPDoer
}

// Compile-time interface check.
var _ models.Oracle = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client. model is used when a request leaves it empty.
func NewOpenAIClient(name, baseURL, apiKey, model string, timeout time.Duration, httpClient HTTPDoer) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &OpenAIClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (c *OpenAIClient) Name() string { return c.name }

// Chat sends one non-streaming completion. Transport failures and 5xx map
// to ErrProviderUnavailable, 429 to ErrRateLimited, deadline to
// ErrInferenceTimeout and undecodable bodies to ErrInvalidResponse.
func (c *OpenAIClient) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.ChatResponse{}, classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ChatResponse{}, classifyError(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(body))
		var envelope errorEnvelope
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return models.ChatResponse{}, fmt.Errorf("%w: status %d: %s", ErrRateLimited, resp.StatusCode, msg)
		case resp.StatusCode >= http.StatusInternalServerError:
			return models.ChatResponse{}, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, msg)
		default:
			return models.ChatResponse{}, fmt.Errorf("%s status %d: %s", c.name, resp.StatusCode, msg)
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.ChatResponse{}, fmt.Errorf("%w: decode response: %v", ErrInvalidResponse, err)
	}
	if parsed.Error.Message != "" {
		return models.ChatResponse{}, fmt.Errorf("%w: %s", ErrInvalidResponse, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return models.ChatResponse{}, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	msg := parsed.Choices[0].Message
	content, err := parseMessageContent(msg.Content)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	out := models.ChatResponse{Content: content, Model: parsed.Model}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (c *OpenAIClient) buildRequest(req models.ChatRequest) chatRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	out := chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	// DashScope reads enable_thinking from the body; other servers ignore it.
	if c.name == "dashscope" {
		out.EnableThinking = &req.EnableThinking
	}
	return out
}

func parseMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String(), nil
	}

	return "", fmt.Errorf("unsupported message content format: %s", string(raw))
}

// classifyError maps transport errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []models.Message   `json:"messages"`
	Tools          []models.Tool      `json:"tools,omitempty"`
	ToolChoice     *models.ToolChoice `json:"tool_choice,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	Temperature    float64            `json:"temperature"`
	EnableThinking *bool              `json:"enable_thinking,omitempty"`
}

type chatResponse struct {
	Model   string        `json:"model"`
	Choices []chatChoice  `json:"choices"`
	Error   errorResponse `json:"error"`
}

type chatChoice struct {
	Message struct {
		Content   json.RawMessage `json:"content"`
		ToolCalls []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type errorEnvelope struct {
	Error errorResponse `json:"error"`
}

type errorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
