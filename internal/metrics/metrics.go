// Package metrics expone los contadores Prometheus del pipeline de forecast y ranking.
//
// Todos los métodos aceptan un receptor nil para que los componentes funcionen
// sin métricas en tests y en el subcomando forecast.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "polyedge"

// Resultados de lookup de la cache.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheCorrupt = "corrupt"
)

// Metrics agrupa los collectors registrados.
type Metrics struct {
	cacheLookups     *prometheus.CounterVec
	cacheWriteErrors prometheus.Counter
	extractions      *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	edges            *prometheus.CounterVec
	forecastSeconds  prometheus.Histogram
}

// New crea los collectors y los registra en reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Response cache lookups by result",
			},
			[]string{"result"},
		),
		cacheWriteErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "write_errors_total",
				Help:      "Response cache writes that failed",
			},
		),
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "forecast",
				Name:      "extractions_total",
				Help:      "Forecast extractions by terminal state",
			},
			[]string{"state"},
		),
		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "forecast",
				Name:      "upstream_failures_total",
				Help:      "Generation calls that failed, by pipeline stage",
			},
			[]string{"stage"},
		),
		edges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ranking",
				Name:      "edges_total",
				Help:      "Edge computations by result",
			},
			[]string{"result"},
		),
		forecastSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "forecast",
				Name:      "duration_seconds",
				Help:      "End-to-end forecast latency per market",
				Buckets:   []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 300},
			},
		),
	}

	reg.MustRegister(
		m.cacheLookups,
		m.cacheWriteErrors,
		m.extractions,
		m.upstreamFailures,
		m.edges,
		m.forecastSeconds,
	)
	return m
}

// CacheLookup cuenta un lookup con el resultado dado (hit, miss, expired, corrupt).
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// CacheWriteError cuenta una escritura fallida.
func (m *Metrics) CacheWriteError() {
	if m == nil {
		return
	}
	m.cacheWriteErrors.Inc()
}

// Extraction cuenta una extracción terminada en el estado dado.
func (m *Metrics) Extraction(state string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(state).Inc()
}

// UpstreamFailure cuenta un fallo de generación en la etapa dada.
func (m *Metrics) UpstreamFailure(stage string) {
	if m == nil {
		return
	}
	m.upstreamFailures.WithLabelValues(stage).Inc()
}

// Edge cuenta un cálculo de edge ("computed" o "missing_liquidity").
func (m *Metrics) Edge(result string) {
	if m == nil {
		return
	}
	m.edges.WithLabelValues(result).Inc()
}

// ObserveForecast registra la duración de un forecast completo.
func (m *Metrics) ObserveForecast(seconds float64) {
	if m == nil {
		return
	}
	m.forecastSeconds.Observe(seconds)
}
