package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPerplexityBase  = "https://api.perplexity.ai"
	defaultPerplexityModel = "sonar-pro"
	defaultResearchTimeout = 120 * time.Second
)

// PerplexityConfig configura el adapter de research.
type PerplexityConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  ClientConfig
}

// Perplexity implementa ports.Researcher sobre /chat/completions.
type Perplexity struct {
	c      *client
	base   string
	apiKey string
	model  string
}

// NewPerplexity crea el adapter. Campos vacíos toman los valores de producción.
func NewPerplexity(cfg PerplexityConfig) *Perplexity {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPerplexityBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultPerplexityModel
	}
	if cfg.Client.Name == "" {
		cfg.Client.Name = "perplexity"
	}
	if cfg.Client.Timeout <= 0 {
		cfg.Client.Timeout = defaultResearchTimeout
	}
	return &Perplexity{
		c:      newClient(cfg.Client),
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model                  string        `json:"model"`
	Messages               []chatMessage `json:"messages"`
	Temperature            float64       `json:"temperature"`
	TopP                   float64       `json:"top_p"`
	TopK                   int           `json:"top_k"`
	FrequencyPenalty       float64       `json:"frequency_penalty"`
	SearchRecencyFilter    string        `json:"search_recency_filter"`
	ReturnImages           bool          `json:"return_images"`
	ReturnRelatedQuestions bool          `json:"return_related_questions"`
	Stream                 bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var errNoChoices = errors.New("response without choices")

// Research pide el informe de investigación. Devuelve el contenido de la última choice.
func (p *Perplexity) Research(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:         0.2,
		TopP:                0.3,
		TopK:                40,
		FrequencyPenalty:    1.1,
		SearchRecencyFilter: "month",
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)

	var resp chatResponse
	if err := p.c.postJSON(ctx, p.base+"/chat/completions", header, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	return resp.Choices[len(resp.Choices)-1].Message.Content, nil
}
