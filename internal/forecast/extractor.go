package forecast

// extractor.go: convierte la respuesta libre del modelo en un domain.Forecast.
//
// Máquina de estados, el primer éxito gana:
//
//	StripAndParse ──ok──▶ Done
//	      │ fallo
//	      ▼
//	AssistedReparse ──ok──▶ Done
//	      │ fallo
//	      ▼
//	   Failure
//
// AssistedReparse vuelve a mandar el texto ORIGINAL (no el JSON fallido) a un
// modelo con salida restringida por schema.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

type state int

const (
	stateStripAndParse state = iota
	stateAssistedReparse
	stateFailure
	stateDone
)

func (s state) String() string {
	switch s {
	case stateStripAndParse:
		return "strip_and_parse"
	case stateAssistedReparse:
		return "assisted_reparse"
	case stateFailure:
		return "failure"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Extractor implementa la cadena de fallback de parseo.
type Extractor struct {
	assist  ports.SchemaExtractor
	metrics *metrics.Metrics
}

// NewExtractor crea un Extractor. assist puede ser nil: en ese caso
// AssistedReparse falla directamente.
func NewExtractor(assist ports.SchemaExtractor, m *metrics.Metrics) *Extractor {
	return &Extractor{assist: assist, metrics: m}
}

// Extract devuelve el forecast y true, o un forecast vacío y false si todos los
// estados fallaron. Nunca devuelve error por input malformado.
func (e *Extractor) Extract(ctx context.Context, raw string) (domain.Forecast, bool) {
	var (
		f       domain.Forecast
		current = stateStripAndParse
		solved  state
	)
	for current != stateDone && current != stateFailure {
		solved = current
		current, f = e.step(ctx, current, raw)
	}

	if current == stateFailure {
		e.metrics.Extraction(stateFailure.String())
		return domain.Forecast{}, false
	}

	e.metrics.Extraction(solved.String())
	for _, w := range f.Warnings() {
		slog.Warn("forecast out of expected bounds, passing through", "state", solved, "warning", w)
	}
	return f, true
}

// step ejecuta un estado y devuelve el siguiente.
func (e *Extractor) step(ctx context.Context, s state, raw string) (state, domain.Forecast) {
	switch s {
	case stateStripAndParse:
		f, err := ParseForecast(raw)
		if err != nil {
			slog.Info("forecast reply is not clean JSON, falling back to assisted reparse", "err", err)
			return stateAssistedReparse, domain.Forecast{}
		}
		return stateDone, f

	case stateAssistedReparse:
		if e.assist == nil {
			return stateFailure, domain.Forecast{}
		}
		reply, err := e.assist.ExtractForecast(ctx, extractSystemPrompt, extractPrompt(raw))
		if err != nil {
			slog.Warn("assisted reparse call failed", "err", err)
			return stateFailure, domain.Forecast{}
		}
		f, err := ParseForecast(reply)
		if err != nil {
			slog.Warn("assisted reparse returned invalid JSON", "err", err)
			return stateFailure, domain.Forecast{}
		}
		return stateDone, f

	default:
		return stateFailure, domain.Forecast{}
	}
}

// wireForecast usa punteros para distinguir "ausente" de "cero".
type wireForecast struct {
	Reasoning       *string          `json:"reasoning"`
	Probability     *float64         `json:"probability"`
	Uncertainty     *wireUncertainty `json:"uncertainty"`
	ModelConfidence *float64         `json:"model_confidence"`
}

type wireUncertainty struct {
	LowerBound      *float64 `json:"lower_bound"`
	UpperBound      *float64 `json:"upper_bound"`
	ConfidenceLevel *float64 `json:"confidence_level"`
}

var errMissingField = errors.New("missing required field")

// ParseForecast quita los fences de markdown, recorta espacios y decodifica
// el JSON exigiendo todos los campos del forecast.
func ParseForecast(raw string) (domain.Forecast, error) {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var w wireForecast
	if err := json.Unmarshal([]byte(clean), &w); err != nil {
		return domain.Forecast{}, fmt.Errorf("decode forecast: %w", err)
	}

	switch {
	case w.Reasoning == nil:
		return domain.Forecast{}, fmt.Errorf("%w: reasoning", errMissingField)
	case w.Probability == nil:
		return domain.Forecast{}, fmt.Errorf("%w: probability", errMissingField)
	case w.Uncertainty == nil:
		return domain.Forecast{}, fmt.Errorf("%w: uncertainty", errMissingField)
	case w.Uncertainty.LowerBound == nil:
		return domain.Forecast{}, fmt.Errorf("%w: uncertainty.lower_bound", errMissingField)
	case w.Uncertainty.UpperBound == nil:
		return domain.Forecast{}, fmt.Errorf("%w: uncertainty.upper_bound", errMissingField)
	case w.Uncertainty.ConfidenceLevel == nil:
		return domain.Forecast{}, fmt.Errorf("%w: uncertainty.confidence_level", errMissingField)
	case w.ModelConfidence == nil:
		return domain.Forecast{}, fmt.Errorf("%w: model_confidence", errMissingField)
	}

	return domain.Forecast{
		Reasoning:   *w.Reasoning,
		Probability: *w.Probability,
		Uncertainty: domain.Uncertainty{
			LowerBound:      *w.Uncertainty.LowerBound,
			UpperBound:      *w.Uncertainty.UpperBound,
			ConfidenceLevel: *w.Uncertainty.ConfidenceLevel,
		},
		ModelConfidence: *w.ModelConfidence,
	}, nil
}
