package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

const (
	eventsPath     = "/events"
	eventsPageSize = 100
	// tope de páginas para no iterar sin fin si Gamma ignora el offset
	maxEventPages = 500
)

// FetchEvents lista los eventos de Gamma paginando por offset hasta una página vacía
// y aplica en cliente los filtros de q (ventana de fecha, order book, tags).
func (c *Client) FetchEvents(ctx context.Context, q ports.EventQuery) ([]domain.Event, error) {
	var all []domain.Event
	fetched := 0

	for page := 0; page < maxEventPages; page++ {
		params := url.Values{}
		params.Set("active", strconv.FormatBool(q.Active))
		params.Set("closed", strconv.FormatBool(q.Closed))
		params.Set("limit", strconv.Itoa(eventsPageSize))
		params.Set("offset", strconv.Itoa(page*eventsPageSize))
		params.Set("order", "createdAt")
		params.Set("ascending", "false")

		var resp []gammaEvent
		if err := c.get(ctx, c.gammaLimiter, c.gammaBase+eventsPath+"?"+params.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("gamma.FetchEvents: offset %d: %w", page*eventsPageSize, err)
		}
		if len(resp) == 0 {
			break
		}
		fetched += len(resp)

		for _, raw := range resp {
			e := mapEvent(raw)
			if keepEvent(e, raw, q) {
				all = append(all, e)
			}
		}
	}

	slog.Info("events fetched", "total", fetched, "kept", len(all))
	return all, nil
}

// keepEvent aplica los filtros de cliente. Un evento al que le falta el campo que
// mira un filtro (endDate, enableOrderBook, tags) nunca pasa ese filtro.
func keepEvent(e domain.Event, raw gammaEvent, q ports.EventQuery) bool {
	if !q.EndAfter.IsZero() || !q.EndBefore.IsZero() {
		if e.EndDate.IsZero() {
			return false
		}
		if !q.EndAfter.IsZero() && e.EndDate.Before(q.EndAfter) {
			return false
		}
		if !q.EndBefore.IsZero() && e.EndDate.After(q.EndBefore) {
			return false
		}
	}
	if q.OrderBook && (raw.EnableOrderBook == nil || !*raw.EnableOrderBook) {
		return false
	}
	if (q.IncludeTag != "" || q.ExcludeTag != "") && raw.Tags == nil {
		return false
	}
	if q.IncludeTag != "" && !e.HasTag(q.IncludeTag) {
		return false
	}
	if q.ExcludeTag != "" && e.HasTag(q.ExcludeTag) {
		return false
	}
	return true
}
