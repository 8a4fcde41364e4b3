package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Fuentes de mercados soportadas.
const (
	SourceMarkets = "markets" // listado del CLOB
	SourceEvents  = "events"  // eventos de Gamma con sus mercados
)

const defaultWorkers = 4

// Config contiene la configuración del scanner.
type Config struct {
	ScanInterval time.Duration
	Workers      int
	Source       string
	Filter       FilterConfig
	// Events solo se usa con Source == SourceEvents.
	Events ports.EventQuery
	Once   bool
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		ScanInterval: time.Hour,
		Workers:      defaultWorkers,
		Source:       SourceMarkets,
		Filter:       DefaultFilterConfig(),
		Events: ports.EventQuery{
			Active:     true,
			OrderBook:  true,
			ExcludeTag: "Sports",
		},
	}
}

// Scanner es el orquestador del loop scan → forecast → ranking.
type Scanner struct {
	cfg        Config
	markets    ports.MarketProvider
	events     ports.EventProvider
	books      ports.BookProvider
	forecaster ports.Forecaster
	storage    ports.Storage
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	filter     *Filter
	now        func() time.Time
}

// New crea un Scanner con todas las dependencias inyectadas.
// events, storage y m pueden ser nil.
func New(
	cfg Config,
	markets ports.MarketProvider,
	events ports.EventProvider,
	books ports.BookProvider,
	forecaster ports.Forecaster,
	storage ports.Storage,
	notifier ports.Notifier,
	m *metrics.Metrics,
) *Scanner {
	return &Scanner{
		cfg:        cfg,
		markets:    markets,
		events:     events,
		books:      books,
		forecaster: forecaster,
		storage:    storage,
		notifier:   notifier,
		metrics:    m,
		filter:     NewFilter(cfg.Filter),
		now:        time.Now,
	}
}

// Run ejecuta el loop de escaneo hasta que el contexto se cancele.
// Si cfg.Once está activo, solo ejecuta un ciclo.
func (s *Scanner) Run(ctx context.Context) error {
	slog.Info("scanner starting",
		"interval", s.cfg.ScanInterval,
		"source", s.cfg.Source,
		"workers", s.cfg.Workers,
		"once", s.cfg.Once,
	)

	if err := s.runCycle(ctx); err != nil {
		slog.Error("scan cycle failed", "err", err)
		if s.cfg.Once {
			return err
		}
	}

	if s.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner stopped")
			return nil
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				slog.Error("scan cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta exactamente un ciclo y devuelve el run, sin notificar ni persistir.
func (s *Scanner) RunOnce(ctx context.Context) (domain.Run, error) {
	return s.cycle(ctx)
}

// runCycle ejecuta un ciclo completo y notifica/persiste el resultado.
func (s *Scanner) runCycle(ctx context.Context) error {
	run, err := s.cycle(ctx)
	if err != nil {
		return err
	}

	if err := s.notifier.Notify(ctx, run); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	if s.storage != nil {
		if err := s.storage.SaveRun(ctx, run); err != nil {
			slog.Warn("storage error", "err", err)
		}
	}

	slog.Info("scan cycle complete",
		"run_id", run.ID,
		"markets", run.MarketsScanned,
		"forecasts", run.Forecasts,
		"failures", len(run.Failures),
		"positive_edges", len(run.ByEdge),
		"duration", run.Duration().Round(time.Millisecond),
	)
	return nil
}

// cycle hace fetch → filter → forecast → books → edge → rank.
func (s *Scanner) cycle(ctx context.Context) (domain.Run, error) {
	run := domain.NewRun(s.now())

	all, err := s.loadMarkets(ctx)
	if err != nil {
		return domain.Run{}, err
	}

	markets := s.filter.Apply(all, s.now())
	run.MarketsScanned = len(markets)
	slog.Info("markets selected", "fetched", len(all), "selected", len(markets))

	results, err := s.forecastMarketsConcurrent(ctx, markets)
	if err != nil {
		return domain.Run{}, fmt.Errorf("scanner.cycle: forecasts: %w", err)
	}

	var (
		tokenIDs []string
		priced   []forecastResult
	)
	for _, r := range results {
		if !r.ok {
			run.Failures = append(run.Failures, r.failure)
			continue
		}
		priced = append(priced, r)
		tokenIDs = append(tokenIDs, r.market.TokenIDs()...)
	}
	run.Forecasts = len(priced)

	if len(tokenIDs) > 0 {
		books, err := s.books.FetchOrderBooks(ctx, tokenIDs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Run{}, fmt.Errorf("scanner.cycle: fetch books: %w", ctxErr)
			}
			slog.Warn("some order books unavailable",
				"tokens", len(tokenIDs),
				"books", len(books),
				"err", err,
			)
		}
		edges, failures := s.computeEdges(priced, books, err)
		run.Edges = edges
		run.Failures = append(run.Failures, failures...)
	}

	run.ByEdge = domain.RankEdges(run.Edges, domain.SortByEdge)
	run.ByEV = domain.RankEdges(run.Edges, domain.SortByEV)
	run.FinishedAt = s.now()
	return run, nil
}

// loadMarkets obtiene los mercados de la fuente configurada.
// Con la fuente CLOB reutiliza el snapshot del día si existe.
func (s *Scanner) loadMarkets(ctx context.Context) ([]domain.Market, error) {
	if s.cfg.Source == SourceEvents {
		if s.events == nil {
			return nil, fmt.Errorf("scanner.loadMarkets: no event provider configured")
		}
		events, err := s.events.FetchEvents(ctx, s.cfg.Events)
		if err != nil {
			return nil, fmt.Errorf("scanner.loadMarkets: fetch events: %w", err)
		}
		return flattenEvents(events), nil
	}

	today := s.now()
	if s.storage != nil {
		markets, ok, err := s.storage.LoadMarketSnapshot(ctx, today)
		if err != nil {
			slog.Warn("could not load market snapshot, fetching", "err", err)
		} else if ok {
			slog.Debug("using today's market snapshot", "markets", len(markets))
			return markets, nil
		}
	}

	markets, err := s.markets.FetchMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner.loadMarkets: fetch markets: %w", err)
	}

	if s.storage != nil {
		if err := s.storage.SaveMarketSnapshot(ctx, today, markets); err != nil {
			slog.Warn("could not save market snapshot", "err", err)
		}
	}
	return markets, nil
}

// computeEdges cruza cada forecast con el book de cada token del mercado.
// Los tokens sin book o sin asks se omiten. Si booksErr != nil, un mercado que
// no recibió ningún book se reporta como fallo en la etapa de books.
func (s *Scanner) computeEdges(priced []forecastResult, books map[string]domain.OrderBook, booksErr error) ([]domain.EdgeRecord, []domain.MarketFailure) {
	var (
		records  []domain.EdgeRecord
		failures []domain.MarketFailure
	)
	for _, r := range priced {
		found := 0
		for _, t := range r.market.Tokens {
			book, ok := books[t.TokenID]
			if !ok {
				s.metrics.Edge("missing_liquidity")
				slog.Debug("missing book for token", "condition_id", r.market.ConditionID, "token_id", t.TokenID)
				continue
			}
			found++
			rec, ok := domain.ComputeEdge(r.market.Title(), r.market.ConditionID, r.forecast, t, book.Asks)
			if !ok {
				s.metrics.Edge("missing_liquidity")
				slog.Debug("no asks for token", "condition_id", r.market.ConditionID, "token_id", t.TokenID)
				continue
			}
			s.metrics.Edge("computed")
			records = append(records, rec)
		}
		if found == 0 && booksErr != nil {
			failures = append(failures, domain.MarketFailure{
				ConditionID: r.market.ConditionID,
				Stage:       domain.StageBooks,
				Reason:      booksErr.Error(),
			})
		}
	}
	return records, failures
}

// flattenEvents devuelve los mercados de todos los eventos. Un mercado sin descripción
// o sin fecha de resolución hereda la del evento.
func flattenEvents(events []domain.Event) []domain.Market {
	var markets []domain.Market
	for _, e := range events {
		for _, m := range e.Markets {
			if m.Description == "" {
				m.Description = e.Description
			}
			if m.EndDate.IsZero() {
				m.EndDate = e.EndDate
			}
			markets = append(markets, m)
		}
	}
	return markets
}
