package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream marca fallos de red o respuestas no-2xx de los servicios de generación.
	ErrUpstream = errors.New("upstream failure")
	// ErrExtraction indica que ningún estado del extractor produjo un forecast válido.
	ErrExtraction = errors.New("forecast extraction failed")
)

// Etapas del pipeline que pueden producir un UpstreamError.
const (
	StageResearch   = "research"
	StageForecast   = "forecast"
	StageExtraction = "extraction"
)

// StageBooks marca un mercado con forecast que se quedó sin ningún orderbook.
const StageBooks = "books"

// UpstreamError es fatal para el mercado en curso y nunca se reintenta dentro del pipeline.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, ErrUpstream).
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// NewUpstreamError envuelve err con la etapa en la que ocurrió.
func NewUpstreamError(stage string, err error) *UpstreamError {
	return &UpstreamError{Stage: stage, Err: err}
}
