package scanner

// concurrent.go: worker pool acotado para los forecasts de cada run.
//
// Cada mercado lanza hasta tres llamadas a modelos. Como mucho cfg.Workers mercados
// están en vuelo a la vez.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"golang.org/x/sync/errgroup"
)

// forecastResult es el resultado de un mercado. ok=false ⇒ failure describe el motivo.
type forecastResult struct {
	market   domain.Market
	forecast domain.Forecast
	ok       bool
	failure  domain.MarketFailure
}

// forecastMarketsConcurrent corre el pipeline para cada mercado con como mucho workers
// goroutines a la vez. Los resultados vuelven en el orden de markets.
//
// Un fallo de un mercado nunca cancela a los demás; solo la cancelación de ctx
// interrumpe el lote, y en ese caso se devuelve ctx.Err().
func (s *Scanner) forecastMarketsConcurrent(ctx context.Context, markets []domain.Market) ([]forecastResult, error) {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	results := make([]forecastResult, len(markets))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, market := range markets {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = forecastResult{market: market, failure: failureFor(market, ctx.Err())}
				return nil
			}

			start := time.Now()
			f, err := s.forecaster.Forecast(ctx, market.ForecastInput())
			if err != nil {
				slog.Warn("forecast failed, skipping market",
					"condition_id", market.ConditionID,
					"err", err,
				)
				results[i] = forecastResult{market: market, failure: failureFor(market, err)}
				return nil
			}

			for _, w := range f.Warnings() {
				slog.Warn("forecast out of bounds", "condition_id", market.ConditionID, "warning", w)
			}
			slog.Debug("forecast ready",
				"condition_id", market.ConditionID,
				"probability", f.Probability,
				"duration", time.Since(start).Round(time.Millisecond),
			)
			results[i] = forecastResult{market: market, forecast: f, ok: true}
			return nil
		})
	}
	_ = g.Wait() // los workers nunca devuelven error

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Debug("concurrent forecasts complete",
		"markets", len(markets),
		"workers", workers,
	)
	return results, nil
}

// failureFor traduce el error del pipeline en un diagnóstico para el run.
func failureFor(m domain.Market, err error) domain.MarketFailure {
	stage := domain.StageForecast
	var upErr *domain.UpstreamError
	switch {
	case errors.As(err, &upErr):
		stage = upErr.Stage
	case errors.Is(err, domain.ErrExtraction):
		stage = domain.StageExtraction
	}
	return domain.MarketFailure{
		ConditionID: m.ConditionID,
		Stage:       stage,
		Reason:      err.Error(),
	}
}
