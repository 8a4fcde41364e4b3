package polymarket

// clob.go: Polymarket CLOB API adapter: listado de mercados y order books.
//
// FetchOrderBooks dispara los batches de /books en paralelo y tolera fallos parciales.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	marketsPath = "/markets"
	booksPath   = "/books"
	batchSize   = 20 // máx token_ids por request a /books

	// "LTE=" es el cursor final codificado en base64 que indica última página.
	endCursor = "LTE="
)

// FetchMarkets devuelve todos los mercados del CLOB.
// Pagina con next_cursor hasta que el cursor viene vacío o es "LTE=".
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	var all []domain.Market
	cursor := ""

	for page := 1; ; page++ {
		u := c.clobBase + marketsPath
		if cursor != "" {
			u += "?next_cursor=" + url.QueryEscape(cursor)
		}

		var resp marketsResponse
		if err := c.get(ctx, c.clobLimiter, u, &resp); err != nil {
			return nil, fmt.Errorf("clob.FetchMarkets: page %d: %w", page, err)
		}
		all = append(all, mapMarkets(resp.Data)...)

		slog.Debug("fetched markets page",
			"page", page,
			"count", len(resp.Data),
			"total", len(all),
		)

		if resp.NextCursor == "" || resp.NextCursor == endCursor {
			break
		}
		cursor = resp.NextCursor
	}

	slog.Info("markets fetched", "total", len(all))
	return all, nil
}

// FetchOrderBooks obtiene los orderbooks para los token_ids dados usando el endpoint batch.
// Un token sin book en la respuesta simplemente no aparece en el map.
//
// Si algún batch falla, el map trae igualmente los books de los batches buenos y el
// error agrupa los fallos (errors.Join). Los tokens de un batch fallido no aparecen.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	result := make(map[string]domain.OrderBook, len(tokenIDs))
	if len(tokenIDs) == 0 {
		return result, nil
	}

	batches := splitBatches(tokenIDs, batchSize)
	got := make([]map[string]domain.OrderBook, len(batches))
	errs := make([]error, len(batches))

	// El limiter de /books marca el ritmo; cada batch escribe solo en su índice.
	var g errgroup.Group
	for i, batch := range batches {
		g.Go(func() error {
			books, err := c.fetchBooksBatch(ctx, batch)
			if err != nil {
				slog.Warn("order book batch failed",
					"batch", i,
					"tokens", len(batch),
					"err", err,
				)
				errs[i] = fmt.Errorf("batch %d (%d tokens): %w", i, len(batch), err)
				return nil
			}
			got[i] = books
			return nil
		})
	}
	_ = g.Wait()

	for _, books := range got {
		maps.Copy(result, books)
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	if err := errors.Join(errs...); err != nil {
		return result, fmt.Errorf("clob.FetchOrderBooks: %w", err)
	}
	return result, nil
}

// splitBatches divide tokenIDs en slices de tamaño máximo size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := min(i+size, len(tokenIDs))
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}
