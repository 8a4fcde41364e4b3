package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Notifier presenta el resultado de un run al usuario.
type Notifier interface {
	// Notify muestra los rankings del run.
	// En la implementación de consola, imprime tablas formateadas.
	Notify(ctx context.Context, run domain.Run) error
}
