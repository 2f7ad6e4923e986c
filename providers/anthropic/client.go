package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"content-hand/config"
	"content-hand/providers"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Client spricht die Anthropic-Messages-API an.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      providers.RetryPolicy
	Logger     *zap.Logger
}

var _ providers.ModelProvider = (*Client)(nil)

// NewClient erstellt einen neuen Anthropic-Client aus der Konfiguration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		apiKey:     cfg.AnthropicAPIKey,
		baseURL:    strings.TrimRight(cfg.AnthropicBaseURL, "/"),
		httpClient: &http.Client{Timeout: time.Duration(cfg.ModelTimeout) * time.Second},
		retry:      providers.NewRetryPolicy(cfg.ModelRateLimit, 2, cfg.ModelMaxRetries),
		Logger:     logger,
	}
}

// Name gibt den Namen des Providers zurück.
func (c *Client) Name() string {
	return "anthropic"
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke führt einen Messages-Aufruf mit Retry und Rate-Limit aus.
func (c *Client) Invoke(ctx context.Context, req providers.InvokeRequest) (providers.InvokeResponse, error) {
	if c.apiKey == "" {
		return providers.InvokeResponse{}, fmt.Errorf("anthropic API key required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	prompt := req.Prompt
	if len(req.ResponseSchema) > 0 {
		prompt += "\n\nRespond only with a JSON object matching this schema:\n" + string(req.ResponseSchema)
	}
	body := messagesRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	}

	var out messagesResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, body, &out)
	})
	if err != nil {
		c.Logger.Warn("Anthropic messages call failed", zap.String("model", req.Model), zap.Error(err))
		return providers.InvokeResponse{}, err
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return providers.InvokeResponse{}, fmt.Errorf("empty response from API")
	}

	model := out.Model
	if model == "" {
		model = req.Model
	}
	usage := providers.Usage{
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
	}
	usage.EstimatedCostUSD = providers.EstimateCost(model, usage.PromptTokens, usage.CompletionTokens)

	return providers.InvokeResponse{Content: text.String(), Model: model, Usage: usage}, nil
}

func (c *Client) doRequest(ctx context.Context, in messagesRequest, out *messagesResponse) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return providers.Retryable(fmt.Errorf("API request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return providers.Retryable(fmt.Errorf("rate limited (429)"))
	}
	if resp.StatusCode >= 500 {
		return providers.Retryable(fmt.Errorf("server error (%d): %s", resp.StatusCode, string(raw)))
	}
	if resp.StatusCode != http.StatusOK {
		var e apiError
		if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, e.Error.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
