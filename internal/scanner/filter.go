package scanner

import (
	"strings"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// FilterConfig contiene los parámetros configurables de filtrado.
type FilterConfig struct {
	// MinHoursToResolution descarta mercados que se resuelven antes de X horas.
	MinHoursToResolution float64
	// MaxDaysToResolution descarta mercados que se resuelven después de X días (0 = sin límite).
	MaxDaysToResolution float64
	// RequireEndDate descarta mercados sin fecha de resolución.
	RequireEndDate bool
	// ExcludeCategories descarta mercados de estas categorías (sin distinguir mayúsculas).
	ExcludeCategories []string
	// MaxMarkets limita cuántos mercados pasan al pipeline de forecast (0 = todos).
	// Cada mercado nuevo cuesta dos o tres llamadas a los modelos.
	MaxMarkets int
}

// DefaultFilterConfig devuelve una configuración de filtrado conservadora.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinHoursToResolution: 24,
		MaxDaysToResolution:  30,
		RequireEndDate:       true,
		ExcludeCategories:    []string{"Sports"},
		MaxMarkets:           50,
	}
}

// Filter aplica los filtros configurados sobre una lista de mercados.
type Filter struct {
	cfg     FilterConfig
	exclude map[string]struct{}
}

// NewFilter crea un Filter con la configuración dada.
func NewFilter(cfg FilterConfig) *Filter {
	exclude := make(map[string]struct{}, len(cfg.ExcludeCategories))
	for _, c := range cfg.ExcludeCategories {
		exclude[strings.ToLower(c)] = struct{}{}
	}
	return &Filter{cfg: cfg, exclude: exclude}
}

// Apply devuelve los mercados que pasan todos los filtros, en el orden de entrada.
func (f *Filter) Apply(markets []domain.Market, now time.Time) []domain.Market {
	result := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if f.cfg.MaxMarkets > 0 && len(result) >= f.cfg.MaxMarkets {
			break
		}
		if f.passes(m, now) {
			result = append(result, m)
		}
	}
	return result
}

// passes devuelve true si el mercado supera todos los criterios.
func (f *Filter) passes(m domain.Market, now time.Time) bool {
	if !m.IsTradeable() {
		return false
	}
	if len(m.TokenIDs()) == 0 || m.ForecastInput() == "" {
		return false
	}
	if _, ok := f.exclude[strings.ToLower(m.Category)]; ok && m.Category != "" {
		return false
	}

	if m.EndDate.IsZero() {
		return !f.cfg.RequireEndDate
	}
	hours := m.HoursToResolution(now)
	if hours == 0 {
		// ya vencido, pendiente de resolución
		return false
	}
	if f.cfg.MinHoursToResolution > 0 && hours < f.cfg.MinHoursToResolution {
		return false
	}
	if f.cfg.MaxDaysToResolution > 0 && hours > f.cfg.MaxDaysToResolution*24 {
		return false
	}
	return true
}
