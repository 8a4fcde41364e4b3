package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGeminiBase        = "https://generativelanguage.googleapis.com"
	defaultReasoningModel    = "gemini-2.0-flash-thinking-exp-01-21"
	defaultExtractionModel   = "gemini-2.0-flash-lite"
	defaultReasoningTimeout  = 180 * time.Second
	defaultExtractionTimeout = 60 * time.Second
)

// GeminiConfig configura el adapter de razonamiento y extracción.
// Reasoning y Extraction usan transportes separados (timeouts y breakers propios).
type GeminiConfig struct {
	BaseURL         string
	APIKey          string
	ReasoningModel  string
	ExtractionModel string
	Reasoning       ClientConfig
	Extraction      ClientConfig
}

// Gemini implementa ports.Reasoner y ports.SchemaExtractor sobre generateContent.
type Gemini struct {
	reasoning       *client
	extraction      *client
	base            string
	apiKey          string
	reasoningModel  string
	extractionModel string
}

// NewGemini crea el adapter. Campos vacíos toman los valores de producción.
func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBase
	}
	if cfg.ReasoningModel == "" {
		cfg.ReasoningModel = defaultReasoningModel
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = defaultExtractionModel
	}
	if cfg.Reasoning.Name == "" {
		cfg.Reasoning.Name = "gemini-reasoning"
	}
	if cfg.Reasoning.Timeout <= 0 {
		cfg.Reasoning.Timeout = defaultReasoningTimeout
	}
	if cfg.Extraction.Name == "" {
		cfg.Extraction.Name = "gemini-extraction"
	}
	if cfg.Extraction.Timeout <= 0 {
		cfg.Extraction.Timeout = defaultExtractionTimeout
	}
	return &Gemini{
		reasoning:       newClient(cfg.Reasoning),
		extraction:      newClient(cfg.Extraction),
		base:            strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		reasoningModel:  cfg.ReasoningModel,
		extractionModel: cfg.ExtractionModel,
	}
}

// --- wire types ---

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// schema es el subconjunto OpenAPI que acepta responseSchema.
type schema struct {
	Type       string            `json:"type"`
	Properties map[string]schema `json:"properties,omitempty"`
	Required   []string          `json:"required,omitempty"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	TopK             int     `json:"topK"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

var errNoCandidates = errors.New("response without candidates")

// forecastSchema es el schema del forecast que se exige al extractor.
var forecastSchema = schema{
	Type:     "OBJECT",
	Required: []string{"reasoning", "probability", "uncertainty", "model_confidence"},
	Properties: map[string]schema{
		"reasoning":   {Type: "STRING"},
		"probability": {Type: "NUMBER"},
		"uncertainty": {
			Type:     "OBJECT",
			Required: []string{"lower_bound", "upper_bound", "confidence_level"},
			Properties: map[string]schema{
				"lower_bound":      {Type: "NUMBER"},
				"upper_bound":      {Type: "NUMBER"},
				"confidence_level": {Type: "NUMBER"},
			},
		},
		"model_confidence": {Type: "NUMBER"},
	},
}

// Reason genera la respuesta libre del forecast.
func (g *Gemini) Reason(ctx context.Context, system, userContent string) (string, error) {
	return g.generate(ctx, g.reasoning, g.reasoningModel, system, userContent, generationConfig{
		Temperature:      0.2,
		TopP:             0.1,
		TopK:             40,
		MaxOutputTokens:  65536,
		ResponseMimeType: "text/plain",
	})
}

// ExtractForecast re-parsea una respuesta libre en JSON restringido por el schema del forecast.
func (g *Gemini) ExtractForecast(ctx context.Context, system, userContent string) (string, error) {
	return g.generate(ctx, g.extraction, g.extractionModel, system, userContent, generationConfig{
		Temperature:      0,
		TopP:             0.1,
		TopK:             20,
		MaxOutputTokens:  8192,
		ResponseMimeType: "application/json",
		ResponseSchema:   &forecastSchema,
	})
}

func (g *Gemini) generate(ctx context.Context, c *client, model, system, userContent string, gc generationConfig) (string, error) {
	req := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: userContent}}}},
		GenerationConfig: gc,
	}
	if system != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.base, url.PathEscape(model), url.QueryEscape(g.apiKey))

	var resp generateResponse
	if err := c.postJSON(ctx, endpoint, nil, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errNoCandidates
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
