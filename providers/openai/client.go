package openai

import (
	"bytes"
	"context"
	"encoding/base64"
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

const defaultImageSize = "1792x1024"

// Client spricht die OpenAI-kompatible Chat-Completions- und Images-API an.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      providers.RetryPolicy
	Logger     *zap.Logger
}

var (
	_ providers.ModelProvider  = (*Client)(nil)
	_ providers.ImageGenerator = (*Client)(nil)
)

// NewClient erstellt einen neuen OpenAI-Client aus der Konfiguration.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		httpClient: &http.Client{Timeout: time.Duration(cfg.ModelTimeout) * time.Second},
		retry:      providers.NewRetryPolicy(cfg.ModelRateLimit, 2, cfg.ModelMaxRetries),
		Logger:     logger,
	}
}

// Name gibt den Namen des Providers zurück.
func (c *Client) Name() string {
	return "openai"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke führt einen Chat-Completion-Aufruf mit Retry und Rate-Limit aus.
func (c *Client) Invoke(ctx context.Context, req providers.InvokeRequest) (providers.InvokeResponse, error) {
	if c.apiKey == "" {
		return providers.InvokeResponse{}, fmt.Errorf("openai API key required")
	}
	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	prompt := req.Prompt
	if len(req.ResponseSchema) > 0 {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
		prompt += "\n\nRespond with a JSON object matching this schema:\n" + string(req.ResponseSchema)
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: prompt})

	var out chatResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/chat/completions", body, &out)
	})
	if err != nil {
		c.Logger.Warn("OpenAI chat completion failed", zap.String("model", req.Model), zap.Error(err))
		return providers.InvokeResponse{}, err
	}
	if len(out.Choices) == 0 {
		return providers.InvokeResponse{}, fmt.Errorf("empty response from API")
	}

	model := out.Model
	if model == "" {
		model = req.Model
	}
	usage := providers.Usage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	usage.EstimatedCostUSD = providers.EstimateCost(model, usage.PromptTokens, usage.CompletionTokens)

	return providers.InvokeResponse{
		Content: out.Choices[0].Message.Content,
		Model:   model,
		Usage:   usage,
	}, nil
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage erzeugt ein Bild und liefert die PNG-Bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt, model string) ([]byte, providers.Usage, error) {
	if c.apiKey == "" {
		return nil, providers.Usage{}, fmt.Errorf("openai API key required")
	}
	body := imageRequest{Model: model, Prompt: prompt, N: 1, Size: defaultImageSize, ResponseFormat: "b64_json"}
	var out imageResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, "/images/generations", body, &out)
	})
	if err != nil {
		return nil, providers.Usage{}, err
	}
	// ab hier ist das Bild abgerechnet
	usage := providers.Usage{EstimatedCostUSD: providers.EstimateImageCost(model)}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, usage, fmt.Errorf("empty image response from API")
	}
	data, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, usage, fmt.Errorf("decode image: %w", err)
	}
	return data, usage, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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
