package polymarket

import (
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// mapMarkets convierte los DTOs del CLOB a domain.Market.
func mapMarkets(raw []clobMarket) []domain.Market {
	markets := make([]domain.Market, 0, len(raw))
	for _, r := range raw {
		markets = append(markets, mapMarket(r))
	}
	return markets
}

// mapMarket convierte un clobMarket DTO a domain.Market.
func mapMarket(r clobMarket) domain.Market {
	m := domain.Market{
		ConditionID: r.ConditionID,
		QuestionID:  r.QuestionID,
		Question:    r.Question,
		Description: r.Description,
		Category:    r.Category,
		Slug:        r.MarketSlug,
		Active:      r.Active,
		Closed:      r.Closed,
		Tokens:      make([]domain.Token, 0, len(r.Tokens)),
	}
	if r.EndDateISO != nil {
		m.EndDate = parseDate(*r.EndDateISO)
	}
	for _, t := range r.Tokens {
		m.Tokens = append(m.Tokens, domain.Token{
			TokenID: t.TokenID,
			Outcome: t.Outcome,
			Price:   t.Price,
		})
	}
	return m
}

// mapEvent convierte un evento de Gamma a domain.Event, incluidos sus mercados.
func mapEvent(r gammaEvent) domain.Event {
	e := domain.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		EndDate:     parseDate(r.EndDate),
		Active:      r.Active,
		Closed:      r.Closed,
		Tags:        make([]domain.Tag, 0, len(r.Tags)),
		Markets:     make([]domain.Market, 0, len(r.Markets)),
	}
	if r.EnableOrderBook != nil {
		e.EnableOrderBook = *r.EnableOrderBook
	}
	for _, t := range r.Tags {
		e.Tags = append(e.Tags, domain.Tag{ID: t.ID, Label: t.Label, Slug: t.Slug})
	}

	// La categoría del evento es su primera tag
	category := ""
	if len(e.Tags) > 0 {
		category = e.Tags[0].Label
	}
	for _, gm := range r.Markets {
		e.Markets = append(e.Markets, mapGammaMarket(gm, category))
	}
	return e
}

// mapGammaMarket convierte un mercado embebido de Gamma. Los tokens se reconstruyen
// emparejando por índice clobTokenIds, outcomes y outcomePrices.
func mapGammaMarket(r gammaMarket, category string) domain.Market {
	m := domain.Market{
		ConditionID: r.ConditionID,
		QuestionID:  r.QuestionID,
		Question:    r.Question,
		Description: r.Description,
		Category:    category,
		Slug:        r.Slug,
		Active:      r.Active,
		Closed:      r.Closed,
	}

	m.EndDate = parseDate(r.EndDate)
	if m.EndDate.IsZero() {
		m.EndDate = parseDate(r.EndDateISO)
	}

	ids := decodeStringArray(r.ClobTokenIDs)
	outcomes := decodeStringArray(r.Outcomes)
	prices := decodeStringArray(r.OutcomePrices)
	m.Tokens = make([]domain.Token, 0, len(ids))
	for i, id := range ids {
		t := domain.Token{TokenID: id}
		if i < len(outcomes) {
			t.Outcome = outcomes[i]
		}
		if i < len(prices) {
			t.Price = domain.ParsePrice(prices[i])
		}
		m.Tokens = append(m.Tokens, t)
	}
	return m
}

// parseDate prueba los formatos de fecha que usa Polymarket. Devuelve zero si ninguno encaja.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
// Los niveles con precio o tamaño <= 0 se descartan.
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
