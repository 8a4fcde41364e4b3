package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// MarketProvider obtiene el listado de mercados del CLOB.
type MarketProvider interface {
	// FetchMarkets devuelve todos los mercados del CLOB.
	// Pagina automáticamente con next_cursor hasta agotar los resultados.
	FetchMarkets(ctx context.Context) ([]domain.Market, error)
}

// EventQuery filtra el listado de eventos de Gamma.
type EventQuery struct {
	Active     bool
	Closed     bool
	EndAfter   time.Time // zero = sin límite
	EndBefore  time.Time // zero = sin límite
	ExcludeTag string    // label de tag a excluir ("Sports")
	IncludeTag string    // label de tag requerido
	OrderBook  bool      // solo eventos con enableOrderBook
}

// EventProvider obtiene eventos de Gamma con sus mercados.
type EventProvider interface {
	FetchEvents(ctx context.Context, q EventQuery) ([]domain.Event, error)
}
