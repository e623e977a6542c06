package vlm

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"nutrilabel/internal/apperr"
	"nutrilabel/internal/nutrition"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiConfig holds configuration for the Vertex AI provider.
type GeminiConfig struct {
	ProjectID       string
	Location        string
	CredentialsFile string
	Model           string
	Temperature     float64
	Schema          *nutrition.Schema
}

// GeminiProvider implements Provider on Google's Vertex AI.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// NewGemini creates the Vertex AI client and configures a model that answers
// in JSON constrained by the nutrition schema.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("vlm: google project id must not be empty")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us-central1"
	}

	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("vlm: create vertex client: %w", err)
	}

	name := strings.TrimSpace(cfg.Model)
	if name == "" {
		name = defaultGeminiModel
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = defaultTemperature
	}
	schema := cfg.Schema
	if schema == nil {
		schema = nutrition.ResponseSchema()
	}

	model := client.GenerativeModel(name)
	model.SetTemperature(float32(temp))
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = toGenaiSchema(schema)

	return &GeminiProvider{client: client, model: model, name: name}, nil
}

// Model returns the configured model identifier.
func (p *GeminiProvider) Model() string { return p.name }

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Complete sends the image by URI together with the instruction.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (Output, error) {
	const op = "vlm.Gemini.Complete"

	start := time.Now()
	resp, err := p.model.GenerateContent(ctx,
		genai.FileData{MIMEType: imageMIMEType(req.ImageURL), FileURI: req.ImageURL},
		genai.Text(req.Instruction),
	)
	if err != nil {
		return Output{}, apperr.E(apperr.KindModelUnavailable, op, fmt.Errorf("generate content: %w", err))
	}

	out := Output{Model: p.name, Latency: time.Since(start)}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out.Content = strings.TrimSpace(b.String())
	return out, nil
}

func imageMIMEType(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if t := mime.TypeByExtension(strings.ToLower(path.Ext(u.Path))); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return "image/jpeg"
}

func toGenaiSchema(s *nutrition.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Nullable:    s.Nullable,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
