package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run es el resultado de una pasada completa de scan → forecast → ranking.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	MarketsScanned int // mercados que pasaron el filtro
	Forecasts      int // mercados con forecast válido
	Failures       []MarketFailure
	Edges          []EdgeRecord // todos los registros calculados, en orden de llegada
	ByEdge         []EdgeRecord // edge > 0, ordenados por edge
	ByEV           []EdgeRecord // edge > 0, ordenados por adjusted_ev
}

// MarketFailure es el diagnóstico de un mercado omitido del ranking.
type MarketFailure struct {
	ConditionID string
	Stage       string
	Reason      string
}

// NewRun crea un Run vacío con un ID nuevo.
func NewRun(startedAt time.Time) Run {
	return Run{
		ID:        uuid.NewString(),
		StartedAt: startedAt.UTC(),
	}
}

// Duration devuelve cuánto tardó el run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
