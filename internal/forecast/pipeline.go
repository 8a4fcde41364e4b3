// Package forecast produce el forecast probabilístico de un mercado en dos etapas:
// investigación (informe) y razonamiento (forecast), ambas detrás de la cache.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Pipeline orquesta research → forecast → extracción.
//
// Claves de cache:
//   - etapa 1: la descripción del mercado → informe (texto crudo)
//   - etapa 2: el texto del informe → forecast ya extraído
//
// Dos descripciones distintas que producen el mismo informe comparten el forecast.
type Pipeline struct {
	cache      ports.ResponseCache
	researcher ports.Researcher
	reasoner   ports.Reasoner
	extractor  *Extractor
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewPipeline crea el pipeline. cache puede ser nil (sin cache).
func NewPipeline(
	cache ports.ResponseCache,
	researcher ports.Researcher,
	reasoner ports.Reasoner,
	extractor *Extractor,
	m *metrics.Metrics,
) *Pipeline {
	if cache == nil {
		cache = noCache{}
	}
	return &Pipeline{
		cache:      cache,
		researcher: researcher,
		reasoner:   reasoner,
		extractor:  extractor,
		metrics:    m,
		now:        time.Now,
	}
}

// Forecast devuelve el forecast del mercado descrito.
//
// Errores:
//   - *domain.UpstreamError si falla la llamada de research o de razonamiento (fatal para este mercado);
//   - domain.ErrExtraction si la respuesta no se pudo convertir en forecast (el mercado se omite).
func (p *Pipeline) Forecast(ctx context.Context, marketDescription string) (domain.Forecast, error) {
	start := p.now()
	defer func() { p.metrics.ObserveForecast(p.now().Sub(start).Seconds()) }()

	report, err := p.Report(ctx, marketDescription)
	if err != nil {
		return domain.Forecast{}, err
	}

	var cached domain.Forecast
	if p.cache.Get(ctx, report, &cached) {
		slog.Debug("cached forecast found")
		return cached, nil
	}

	raw, err := p.reasoner.Reason(ctx, forecastSystemPrompt, forecastPrompt(report, marketDescription))
	if err != nil {
		p.metrics.UpstreamFailure(domain.StageForecast)
		return domain.Forecast{}, fmt.Errorf("forecast.Pipeline: %w", domain.NewUpstreamError(domain.StageForecast, err))
	}

	f, ok := p.extractor.Extract(ctx, raw)
	if !ok {
		return domain.Forecast{}, fmt.Errorf("forecast.Pipeline: %w", domain.ErrExtraction)
	}

	if err := p.cache.Set(ctx, report, f); err != nil {
		slog.Warn("could not cache forecast, continuing uncached", "err", err)
	}
	return f, nil
}

// Report devuelve el informe de investigación del mercado, desde cache o generándolo.
func (p *Pipeline) Report(ctx context.Context, marketDescription string) (string, error) {
	var report string
	if p.cache.Get(ctx, marketDescription, &report) && report != "" {
		slog.Debug("cached report found")
		return report, nil
	}

	slog.Debug("no cached report, generating")
	report, err := p.researcher.Research(ctx, researchSystemPrompt, researchPrompt(marketDescription))
	if err != nil {
		p.metrics.UpstreamFailure(domain.StageResearch)
		return "", fmt.Errorf("forecast.Pipeline: %w", domain.NewUpstreamError(domain.StageResearch, err))
	}

	if err := p.cache.Set(ctx, marketDescription, report); err != nil {
		slog.Warn("could not cache report, continuing uncached", "err", err)
	}
	return report, nil
}

// noCache es la cache vacía que se usa cuando no se configura ninguna.
type noCache struct{}

func (noCache) Get(context.Context, string, any) bool  { return false }
func (noCache) Set(context.Context, string, any) error { return nil }
