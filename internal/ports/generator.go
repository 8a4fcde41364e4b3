package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Researcher genera el informe de investigación (etapa 1) para un mercado.
type Researcher interface {
	Research(ctx context.Context, system, user string) (string, error)
}

// Reasoner genera la respuesta libre del superforecaster (etapa 2).
type Reasoner interface {
	Reason(ctx context.Context, system, content string) (string, error)
}

// SchemaExtractor re-deriva los campos del forecast con generación restringida por schema.
type SchemaExtractor interface {
	ExtractForecast(ctx context.Context, system, content string) (string, error)
}

// ResponseCache es la cache clave→valor con expiración que usa el pipeline.
type ResponseCache interface {
	// Get decodifica el valor guardado en out. Devuelve false si no hay entrada válida.
	Get(ctx context.Context, key string, out any) bool
	// Set guarda value bajo key. Un error aquí nunca es fatal para el caller.
	Set(ctx context.Context, key string, value any) error
}

// Forecaster produce el forecast de un mercado a partir de su descripción.
type Forecaster interface {
	Forecast(ctx context.Context, marketDescription string) (domain.Forecast, error)
}
