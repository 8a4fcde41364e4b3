package domain

import "sort"

// EdgeRecord es el resultado de cruzar un forecast con el mejor ask de un token.
// Se calcula en cada pasada de ranking y nunca se cachea.
type EdgeRecord struct {
	Title           string      `json:"title"`
	ConditionID     string      `json:"condition_id"`
	TokenID         string      `json:"token_id"`
	Outcome         string      `json:"outcome"`
	Probability     float64     `json:"probability"`
	ModelConfidence float64     `json:"model_confidence"`
	Uncertainty     Uncertainty `json:"uncertainty"`
	BestAskPrice    float64     `json:"best_ask_price"`
	BestAskSize     float64     `json:"best_ask_size"`
	Edge            float64     `json:"edge"`
	AdjustedEV      float64     `json:"adjusted_ev"`
}

// SortKey elige la métrica de ranking.
type SortKey string

const (
	SortByEdge SortKey = "edge"
	SortByEV   SortKey = "ev"
)

// ComputeEdge calcula el edge y el EV ajustado de un token frente a su book.
//
//	p           = probability            (outcome "Yes")
//	p           = 1 - probability        (cualquier otro outcome)
//	edge        = p - best_ask.price
//	adjusted_ev = edge × best_ask.size
//
// Devuelve false si no hay asks (sin liquidez contra la que evaluar).
// Solo mira el primer nivel del book: no modela slippage.
func ComputeEdge(title, conditionID string, f Forecast, t Token, asks []BookEntry) (EdgeRecord, bool) {
	if len(asks) == 0 {
		return EdgeRecord{}, false
	}
	best := SortedAsks(asks)[0]

	edge := f.DirectionalProbability(t.Outcome) - best.Price
	return EdgeRecord{
		Title:           title,
		ConditionID:     conditionID,
		TokenID:         t.TokenID,
		Outcome:         t.Outcome,
		Probability:     f.Probability,
		ModelConfidence: f.ModelConfidence,
		Uncertainty:     f.Uncertainty,
		BestAskPrice:    best.Price,
		BestAskSize:     best.Size,
		Edge:            edge,
		AdjustedEV:      edge * best.Size,
	}, true
}

// RankEdges devuelve solo los registros con edge > 0, ordenados de mayor a menor
// según la clave pedida. El orden es estable: ante empate gana el que llegó primero.
// El slice de entrada no se modifica.
func RankEdges(records []EdgeRecord, by SortKey) []EdgeRecord {
	ranked := make([]EdgeRecord, 0, len(records))
	for _, r := range records {
		if r.Edge > 0 {
			ranked = append(ranked, r)
		}
	}

	metric := func(r EdgeRecord) float64 { return r.Edge }
	if by == SortByEV {
		metric = func(r EdgeRecord) float64 { return r.AdjustedEV }
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return metric(ranked[i]) > metric(ranked[j])
	})
	return ranked
}
