package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Storage persiste snapshots de mercados y el resultado de cada run.
type Storage interface {
	// SaveMarketSnapshot guarda el listado de mercados del día dado.
	SaveMarketSnapshot(ctx context.Context, day time.Time, markets []domain.Market) error

	// LoadMarketSnapshot devuelve el snapshot del día, y false si no existe.
	LoadMarketSnapshot(ctx context.Context, day time.Time) ([]domain.Market, bool, error)

	// SaveRun persiste un run con sus edge records.
	SaveRun(ctx context.Context, run domain.Run) error

	// GetHistory devuelve los edge records positivos registrados en el rango dado.
	GetHistory(ctx context.Context, from, to time.Time) ([]domain.EdgeRecord, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
