package domain

import "time"

// Market representa un mercado de predicción binario en Polymarket.
type Market struct {
	ConditionID string    `json:"condition_id"`
	QuestionID  string    `json:"question_id"`
	Question    string    `json:"question"`
	Description string    `json:"description"` // texto que alimenta al pipeline de forecast
	Category    string    `json:"category"`
	Slug        string    `json:"market_slug"`
	EndDate     time.Time `json:"end_date"` // fecha de resolución (zero si la API no la trae)
	Tokens      []Token   `json:"tokens"`
	Active      bool      `json:"active"`
	Closed      bool      `json:"closed"`
}

// Token es uno de los outcomes del mercado (YES/NO).
type Token struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"` // "Yes" | "No"
	Price   float64 `json:"price"`   // último precio del CLOB
}

// Event agrupa uno o más mercados en Gamma.
type Event struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	EndDate         time.Time `json:"end_date"`
	Active          bool      `json:"active"`
	Closed          bool      `json:"closed"`
	EnableOrderBook bool      `json:"enable_order_book"`
	Tags            []Tag     `json:"tags"`
	Markets         []Market  `json:"markets"`
}

// Tag es una etiqueta de Gamma ("Sports", "Politics", ...).
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// HasTag devuelve true si el evento tiene una tag con ese label.
func (e Event) HasTag(label string) bool {
	for _, t := range e.Tags {
		if t.Label == label {
			return true
		}
	}
	return false
}

// IsTradeable devuelve true si el mercado está activo y no cerrado.
func (m Market) IsTradeable() bool {
	return m.Active && !m.Closed
}

// Title devuelve el título a mostrar: la pregunta o, en su defecto, el condition_id.
func (m Market) Title() string {
	if m.Question != "" {
		return m.Question
	}
	return m.ConditionID
}

// ForecastInput devuelve el texto que identifica el mercado ante el pipeline.
// Si la descripción está vacía se usa la pregunta.
func (m Market) ForecastInput() string {
	if m.Description != "" {
		return m.Description
	}
	return m.Question
}

// HoursToResolution devuelve las horas hasta que el mercado se resuelve.
// Devuelve 0 si EndDate no está definido o ya pasó.
func (m Market) HoursToResolution(now time.Time) float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := m.EndDate.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// TokenIDs devuelve los token_ids no vacíos del mercado.
func (m Market) TokenIDs() []string {
	ids := make([]string, 0, len(m.Tokens))
	for _, t := range m.Tokens {
		if t.TokenID != "" {
			ids = append(ids, t.TokenID)
		}
	}
	return ids
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa los primeros caracteres del conditionID como fallback.
func TruncateQuestion(question, conditionID string, maxLen int) string {
	q := question
	if q == "" {
		if len(conditionID) > 20 {
			q = conditionID[:20] + "..."
		} else {
			q = conditionID
		}
	}
	r := []rune(q)
	if len(r) > maxLen {
		q = string(r[:maxLen-3]) + "..."
	}
	return q
}
