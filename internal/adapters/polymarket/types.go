package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// marketsResponse es la respuesta paginada de GET /markets.
type marketsResponse struct {
	Limit      int          `json:"limit"`
	Count      int          `json:"count"`
	NextCursor string       `json:"next_cursor"`
	Data       []clobMarket `json:"data"`
}

// clobMarket es un mercado tal como lo lista el CLOB.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	QuestionID  string      `json:"question_id"`
	Question    string      `json:"question"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	MarketSlug  string      `json:"market_slug"`
	EndDateISO  *string     `json:"end_date_iso"` // null en mercados sin fecha
	Tokens      []clobToken `json:"tokens"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
}

// clobToken representa un token (YES/NO) en el CLOB.
type clobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Market  string         `json:"market"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaEvent es un evento de GET /events.
type gammaEvent struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	EndDate         string        `json:"endDate"`
	Active          bool          `json:"active"`
	Closed          bool          `json:"closed"`
	EnableOrderBook *bool         `json:"enableOrderBook"` // ausente en eventos antiguos
	Tags            []gammaTag    `json:"tags"`
	Markets         []gammaMarket `json:"markets"`
}

// gammaTag es una etiqueta de evento. Gamma devuelve el id como string.
type gammaTag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// gammaMarket es un mercado embebido en un evento de Gamma.
// outcomes, outcomePrices y clobTokenIds vienen como arrays JSON codificados en string.
type gammaMarket struct {
	ConditionID   string `json:"conditionId"`
	QuestionID    string `json:"questionID"`
	Question      string `json:"question"`
	Description   string `json:"description"`
	Slug          string `json:"slug"`
	EndDate       string `json:"endDate"`
	EndDateISO    string `json:"endDateIso"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
}

// decodeStringArray decodifica un array JSON embebido en un string ("[\"Yes\", \"No\"]").
func decodeStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
