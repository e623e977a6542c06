package vlm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nutrilabel/internal/apperr"
	"nutrilabel/internal/nutrition"
)

const (
	defaultModel       = "llama-3.2-11b-vision-preview"
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultTemperature = 0.2
	defaultTimeout     = 90 * time.Second
)

// Response formats understood by OpenAIConfig.ResponseFormat.
const (
	FormatJSONObject = "json_object"
	FormatJSONSchema = "json_schema"
	FormatNone       = "none"
)

// OpenAIConfig describes how the chat-completions provider is initialised.
// Any OpenAI compatible endpoint works, including Groq.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	Temperature    float64
	Timeout        time.Duration
	ResponseFormat string
	Schema         *nutrition.Schema
	HTTPClient     *http.Client
}

// OpenAIProvider is a thin wrapper around the Chat Completions API.
type OpenAIProvider struct {
	apiKey         string
	model          string
	baseURL        string
	temperature    float64
	responseFormat string
	schema         *nutrition.Schema
	httpClient     *http.Client
}

// NewOpenAI builds a provider for an OpenAI compatible API.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("vlm: api key must not be empty")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	temp := cfg.Temperature
	if temp <= 0 {
		temp = defaultTemperature
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	format := strings.ToLower(strings.TrimSpace(cfg.ResponseFormat))
	switch format {
	case "":
		format = FormatJSONObject
	case FormatJSONObject, FormatNone:
	case FormatJSONSchema:
		if cfg.Schema == nil {
			cfg.Schema = nutrition.ResponseSchema()
		}
	default:
		return nil, fmt.Errorf("vlm: unknown response format %q", cfg.ResponseFormat)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &OpenAIProvider{
		apiKey:         apiKey,
		model:          model,
		baseURL:        strings.TrimRight(baseURL, "/"),
		temperature:    temp,
		responseFormat: format,
		schema:         cfg.Schema,
		httpClient:     httpClient,
	}, nil
}

// Model returns the configured model identifier.
func (p *OpenAIProvider) Model() string { return p.model }

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (p *OpenAIProvider) buildRequest(req Request) chatRequest {
	payload := chatRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContentPart{
				{Type: "text", Text: req.Instruction},
				{Type: "image_url", ImageURL: &chatImageURL{URL: req.ImageURL}},
			},
		}},
	}
	switch p.responseFormat {
	case FormatJSONObject:
		payload.ResponseFormat = map[string]any{"type": FormatJSONObject}
	case FormatJSONSchema:
		payload.ResponseFormat = map[string]any{
			"type": FormatJSONSchema,
			"json_schema": map[string]any{
				"name":   "nutrition_label",
				"strict": true,
				"schema": p.schema,
			},
		}
	}
	return payload
}

// Complete posts one chat completion. Transport errors and non-2xx statuses
// are KindModelUnavailable.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Output, error) {
	const op = "vlm.OpenAI.Complete"

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return Output{}, apperr.E(apperr.KindInternal, op, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Output{}, apperr.E(apperr.KindInternal, op, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Output{}, apperr.E(apperr.KindModelUnavailable, op, fmt.Errorf("call model: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return Output{}, apperr.E(apperr.KindModelUnavailable, op, fmt.Errorf("model returned status %s", resp.Status))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Output{}, apperr.E(apperr.KindModelUnavailable, op, fmt.Errorf("decode response: %w", err))
	}

	out := Output{
		Usage:   decoded.Usage,
		Model:   decoded.Model,
		Latency: time.Since(start),
	}
	if out.Model == "" {
		out.Model = p.model
	}
	if len(decoded.Choices) > 0 {
		out.Content = strings.TrimSpace(decoded.Choices[0].Message.Content)
	}
	return out, nil
}
