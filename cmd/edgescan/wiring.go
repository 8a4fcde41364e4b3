package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/llm"
	"github.com/alejandrodnm/polyedge/internal/cache"
	"github.com/alejandrodnm/polyedge/internal/forecast"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// openCache construye la cache del backend configurado.
// El closer libera la conexión a Redis; para el backend de ficheros no hace nada.
func openCache(ctx context.Context, cfg config.CacheConfig, m *metrics.Metrics) (*cache.Cache, func() error, error) {
	opts := []cache.Option{cache.WithTTL(cfg.TTL), cache.WithMetrics(m)}

	switch cfg.Backend {
	case "redis":
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			Expiry:   cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("response cache on redis", "addr", cfg.RedisAddr)
		return cache.New(store, opts...), store.Close, nil
	default:
		store, err := cache.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("response cache on disk", "dir", store.Dir())
		return cache.New(store, opts...), func() error { return nil }, nil
	}
}

// newPipeline conecta los adapters de los modelos con la cache.
func newPipeline(cfg config.LLMConfig, c *cache.Cache, m *metrics.Metrics) *forecast.Pipeline {
	transport := func(timeout time.Duration) llm.ClientConfig {
		return llm.ClientConfig{
			Timeout:         timeout,
			RatePerSec:      cfg.RatePerSecond,
			Burst:           cfg.Burst,
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
		}
	}

	researcher := llm.NewPerplexity(llm.PerplexityConfig{
		BaseURL: cfg.PerplexityBase,
		APIKey:  cfg.PerplexityAPIKey,
		Model:   cfg.ResearchModel,
		Client:  transport(cfg.ResearchTimeout),
	})
	gemini := llm.NewGemini(llm.GeminiConfig{
		BaseURL:         cfg.GeminiBase,
		APIKey:          cfg.GeminiAPIKey,
		ReasoningModel:  cfg.ReasoningModel,
		ExtractionModel: cfg.ExtractionModel,
		Reasoning:       transport(cfg.ReasoningTimeout),
		Extraction:      transport(cfg.ExtractionTimeout),
	})

	return forecast.NewPipeline(c, researcher, gemini, forecast.NewExtractor(gemini, m), m)
}

// newMetrics crea el registry con los collectors del proceso y los del pipeline.
func newMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// serveMetrics expone /metrics en addr hasta que ctx se cancele.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
}

// closeWith cierra c y loguea el error, para usar en defer.
func closeWith(name string, c func() error) {
	if err := c(); err != nil {
		slog.Warn("close failed", "resource", name, "err", err)
	}
}
