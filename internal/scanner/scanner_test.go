package scanner_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
	"github.com/alejandrodnm/polyedge/internal/scanner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockMarketProvider struct {
	markets []domain.Market
	err     error
	calls   int
}

func (m *mockMarketProvider) FetchMarkets(_ context.Context) ([]domain.Market, error) {
	m.calls++
	return m.markets, m.err
}

type mockEventProvider struct {
	events []domain.Event
	query  ports.EventQuery
}

func (m *mockEventProvider) FetchEvents(_ context.Context, q ports.EventQuery) ([]domain.Event, error) {
	m.query = q
	return m.events, nil
}

type mockBookProvider struct {
	books     map[string]domain.OrderBook
	err       error
	requested []string
}

func (m *mockBookProvider) FetchOrderBooks(_ context.Context, ids []string) (map[string]domain.OrderBook, error) {
	m.requested = ids
	return m.books, m.err
}

// mockForecaster responde por descripción; delay simula latencia variable entre mercados.
type mockForecaster struct {
	forecasts map[string]domain.Forecast
	errs      map[string]error
	delay     map[string]time.Duration
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
}

func (m *mockForecaster) Forecast(_ context.Context, desc string) (domain.Forecast, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if d := m.delay[desc]; d > 0 {
		time.Sleep(d)
	}
	if err := m.errs[desc]; err != nil {
		return domain.Forecast{}, err
	}
	f, ok := m.forecasts[desc]
	if !ok {
		return domain.Forecast{}, fmt.Errorf("forecast.Pipeline: %w", domain.ErrExtraction)
	}
	return f, nil
}

type mockNotifier struct {
	notified *domain.Run
	err      error
}

func (m *mockNotifier) Notify(_ context.Context, run domain.Run) error {
	m.notified = &run
	return m.err
}

type mockStorage struct {
	mu        sync.Mutex
	snapshots map[string][]domain.Market
	saved     []domain.Run
	err       error
}

func (m *mockStorage) SaveMarketSnapshot(_ context.Context, day time.Time, markets []domain.Market) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshots == nil {
		m.snapshots = map[string][]domain.Market{}
	}
	m.snapshots[day.UTC().Format("2006-01-02")] = markets
	return nil
}

func (m *mockStorage) LoadMarketSnapshot(_ context.Context, day time.Time) ([]domain.Market, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	markets, ok := m.snapshots[day.UTC().Format("2006-01-02")]
	return markets, ok, nil
}

func (m *mockStorage) SaveRun(_ context.Context, run domain.Run) error {
	m.saved = append(m.saved, run)
	return m.err
}

func (m *mockStorage) GetHistory(_ context.Context, _, _ time.Time) ([]domain.EdgeRecord, error) {
	return nil, nil
}

func (m *mockStorage) Close() error { return nil }

// --- helpers ---

func makeMarket(condID, desc string) domain.Market {
	return domain.Market{
		ConditionID: condID,
		Question:    "Q " + condID,
		Description: desc,
		Category:    "Economics",
		EndDate:     time.Now().Add(72 * time.Hour),
		Active:      true,
		Tokens: []domain.Token{
			{TokenID: condID + "_yes", Outcome: domain.OutcomeYes},
			{TokenID: condID + "_no", Outcome: domain.OutcomeNo},
		},
	}
}

func makeBook(tokenID string, askPrice, askSize float64) domain.OrderBook {
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    []domain.BookEntry{{Price: askPrice - 0.02, Size: 50}},
		Asks:    []domain.BookEntry{{Price: askPrice, Size: askSize}},
	}
}

func forecastOf(p float64) domain.Forecast {
	return domain.Forecast{
		Reasoning:       "r",
		Probability:     p,
		Uncertainty:     domain.Uncertainty{LowerBound: p - 0.1, UpperBound: p + 0.1, ConfidenceLevel: 0.9},
		ModelConfidence: 0.8,
	}
}

func testConfig() scanner.Config {
	cfg := scanner.DefaultConfig()
	cfg.Workers = 2
	cfg.Once = true
	cfg.Filter = scanner.FilterConfig{}
	return cfg
}

// --- tests ---

func TestScanner_RunOnce_Success(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{
		makeMarket("0xa", "desc a"),
		makeMarket("0xb", "desc b"),
	}}
	fc := &mockForecaster{forecasts: map[string]domain.Forecast{
		"desc a": forecastOf(0.7),
		"desc b": forecastOf(0.2),
	}}
	bp := &mockBookProvider{books: map[string]domain.OrderBook{
		"0xa_yes": makeBook("0xa_yes", 0.50, 100), // edge +0.2, ev 20
		"0xa_no":  makeBook("0xa_no", 0.45, 100),  // edge -0.15
		"0xb_yes": makeBook("0xb_yes", 0.25, 100), // edge -0.05
		"0xb_no":  makeBook("0xb_no", 0.70, 500),  // edge +0.1, ev 50
	}}

	s := scanner.New(testConfig(), mp, nil, bp, fc, nil, &mockNotifier{}, nil)
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.MarketsScanned)
	assert.Equal(t, 2, run.Forecasts)
	assert.Empty(t, run.Failures)
	assert.Len(t, run.Edges, 4)
	assert.ElementsMatch(t, []string{"0xa_yes", "0xa_no", "0xb_yes", "0xb_no"}, bp.requested)

	require.Len(t, run.ByEdge, 2)
	assert.Equal(t, "0xa_yes", run.ByEdge[0].TokenID)
	assert.InDelta(t, 0.2, run.ByEdge[0].Edge, 1e-9)

	require.Len(t, run.ByEV, 2)
	assert.Equal(t, "0xb_no", run.ByEV[0].TokenID)
	assert.InDelta(t, 50.0, run.ByEV[0].AdjustedEV, 1e-9)
	assert.Equal(t, "Q 0xb", run.ByEV[0].Title)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestScanner_RunOnce_FailuresDoNotAbortBatch(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{
		makeMarket("0xa", "desc a"),
		makeMarket("0xb", "desc b"),
		makeMarket("0xc", "desc c"),
	}}
	fc := &mockForecaster{
		forecasts: map[string]domain.Forecast{"desc b": forecastOf(0.9)},
		errs: map[string]error{
			"desc a": fmt.Errorf("forecast.Pipeline: %w",
				domain.NewUpstreamError(domain.StageResearch, errors.New("status 502"))),
		},
		// "desc c" no tiene forecast → ErrExtraction
	}
	bp := &mockBookProvider{books: map[string]domain.OrderBook{
		"0xb_yes": makeBook("0xb_yes", 0.60, 10),
	}}

	s := scanner.New(testConfig(), mp, nil, bp, fc, nil, &mockNotifier{}, nil)
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, run.MarketsScanned)
	assert.Equal(t, 1, run.Forecasts)
	require.Len(t, run.Failures, 2)
	assert.Equal(t, "0xa", run.Failures[0].ConditionID)
	assert.Equal(t, domain.StageResearch, run.Failures[0].Stage)
	assert.Contains(t, run.Failures[0].Reason, "status 502")
	assert.Equal(t, "0xc", run.Failures[1].ConditionID)
	assert.Equal(t, domain.StageExtraction, run.Failures[1].Stage)

	// solo se piden books de los mercados con forecast
	assert.ElementsMatch(t, []string{"0xb_yes", "0xb_no"}, bp.requested)
	require.Len(t, run.ByEdge, 1)
	assert.Equal(t, "0xb_yes", run.ByEdge[0].TokenID)
}

func TestScanner_RunOnce_ResultsInInputOrder(t *testing.T) {
	var markets []domain.Market
	forecasts := map[string]domain.Forecast{}
	delay := map[string]time.Duration{}
	books := map[string]domain.OrderBook{}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("0x%d", i)
		desc := "desc " + id
		markets = append(markets, makeMarket(id, desc))
		forecasts[desc] = forecastOf(0.9)
		// los primeros tardan más: terminan en orden inverso
		delay[desc] = time.Duration(6-i) * 5 * time.Millisecond
		books[id+"_yes"] = makeBook(id+"_yes", 0.5, 10) // mismo edge y EV para todos
	}

	fc := &mockForecaster{forecasts: forecasts, delay: delay}
	cfg := testConfig()
	cfg.Workers = 3

	s := scanner.New(cfg, &mockMarketProvider{markets: markets}, nil,
		&mockBookProvider{books: books}, fc, nil, &mockNotifier{}, nil)
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, run.ByEV, 6)
	for i, r := range run.ByEV {
		assert.Equal(t, fmt.Sprintf("0x%d", i), r.ConditionID, "empates en orden de entrada")
	}
	assert.LessOrEqual(t, fc.maxSeen.Load(), int32(3))
}

func TestScanner_RunOnce_MissingLiquidity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mp := &mockMarketProvider{markets: []domain.Market{makeMarket("0xa", "desc a")}}
	fc := &mockForecaster{forecasts: map[string]domain.Forecast{"desc a": forecastOf(0.7)}}
	bp := &mockBookProvider{books: map[string]domain.OrderBook{
		"0xa_yes": {TokenID: "0xa_yes", Bids: []domain.BookEntry{{Price: 0.5, Size: 1}}}, // sin asks
		// 0xa_no no viene en la respuesta
	}}

	s := scanner.New(testConfig(), mp, nil, bp, fc, nil, &mockNotifier{}, m)
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Forecasts)
	assert.Empty(t, run.Edges)
	assert.Empty(t, run.ByEV)

	count, err := testutil.GatherAndCount(reg, "polyedge_ranking_edges_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScanner_RunOnce_FetchMarketsError(t *testing.T) {
	mp := &mockMarketProvider{err: errors.New("network down")}
	s := scanner.New(testConfig(), mp, nil, &mockBookProvider{}, &mockForecaster{}, nil, &mockNotifier{}, nil)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

func TestScanner_RunOnce_FetchBooksErrorKeepsOtherMarkets(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{
		makeMarket("0xa", "desc a"),
		makeMarket("0xb", "desc b"),
	}}
	fc := &mockForecaster{forecasts: map[string]domain.Forecast{
		"desc a": forecastOf(0.7),
		"desc b": forecastOf(0.7),
	}}
	// solo llegó el batch con los tokens de 0xa
	bp := &mockBookProvider{
		books: map[string]domain.OrderBook{
			"0xa_yes": makeBook("0xa_yes", 0.50, 100),
			"0xa_no":  makeBook("0xa_no", 0.20, 100),
		},
		err: errors.New("clob.FetchOrderBooks: batch 1: books unavailable"),
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := scanner.New(testConfig(), mp, nil, bp, fc, nil, &mockNotifier{}, m)
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, run.Forecasts)
	require.Len(t, run.ByEdge, 2)
	for _, rec := range run.ByEdge {
		assert.Equal(t, "0xa", rec.ConditionID)
	}

	require.Len(t, run.Failures, 1)
	assert.Equal(t, "0xb", run.Failures[0].ConditionID)
	assert.Equal(t, domain.StageBooks, run.Failures[0].Stage)
	assert.Contains(t, run.Failures[0].Reason, "books unavailable")

	expected := `
# HELP polyedge_ranking_edges_total Edge computations by result
# TYPE polyedge_ranking_edges_total counter
polyedge_ranking_edges_total{result="computed"} 2
polyedge_ranking_edges_total{result="missing_liquidity"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "polyedge_ranking_edges_total"))
}

func TestScanner_RunOnce_FailedBookBatchAgainstCLOB(t *testing.T) {
	var markets []domain.Market
	forecasts := map[string]domain.Forecast{}
	for i := range 11 {
		id := fmt.Sprintf("0x%02d", i)
		markets = append(markets, makeMarket(id, "desc "+id))
		forecasts["desc "+id] = forecastOf(0.7)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		resp := make([]map[string]any, 0, len(body))
		for _, b := range body {
			if b["token_id"] == "0x10_yes" {
				http.Error(w, "bad token", http.StatusBadRequest)
				return
			}
			resp = append(resp, map[string]any{
				"asset_id": b["token_id"],
				"asks":     []map[string]string{{"price": "0.50", "size": "100"}},
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	clob := polymarket.NewClient(polymarket.Config{CLOBBase: srv.URL, MaxRetries: 1})
	fc := &mockForecaster{forecasts: forecasts}
	s := scanner.New(testConfig(), &mockMarketProvider{markets: markets}, nil, clob, fc, nil, &mockNotifier{}, nil)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	// 22 tokens → batch de 20 (0x00..0x09) + batch de 2 (0x10), el segundo falla
	assert.Equal(t, 11, run.Forecasts)
	assert.Len(t, run.ByEdge, 10, "los YES de los mercados con book tienen edge +0.2")
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "0x10", run.Failures[0].ConditionID)
	assert.Equal(t, domain.StageBooks, run.Failures[0].Stage)
}

func TestScanner_RunOnce_NoForecastsSkipsBooks(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{makeMarket("0xa", "desc a")}}
	bp := &mockBookProvider{err: errors.New("must not be called")}

	s := scanner.New(testConfig(), mp, nil, bp, &mockForecaster{}, nil, &mockNotifier{}, nil)
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, run.Failures, 1)
	assert.Nil(t, bp.requested)
}

func TestScanner_RunOnce_CancelledContext(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{makeMarket("0xa", "desc a")}}
	fc := &mockForecaster{forecasts: map[string]domain.Forecast{"desc a": forecastOf(0.7)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := scanner.New(testConfig(), mp, nil, &mockBookProvider{}, fc, nil, &mockNotifier{}, nil)
	_, err := s.RunOnce(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_SnapshotReusedSameDay(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{makeMarket("0xa", "desc a")}}
	fc := &mockForecaster{}
	st := &mockStorage{}

	s := scanner.New(testConfig(), mp, nil, &mockBookProvider{}, fc, st, &mockNotifier{}, nil)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, mp.calls, "el segundo run usa el snapshot del día")
	assert.Len(t, st.snapshots, 1)
}

func TestScanner_EventsSource(t *testing.T) {
	end := time.Now().Add(48 * time.Hour)
	ep := &mockEventProvider{events: []domain.Event{{
		ID:          "1001",
		Description: "event rules",
		EndDate:     end,
		Markets: []domain.Market{{
			ConditionID: "0xe1",
			Question:    "Will it happen?",
			Active:      true,
			Tokens:      []domain.Token{{TokenID: "e1_yes", Outcome: domain.OutcomeYes}},
		}},
	}}}
	fc := &mockForecaster{forecasts: map[string]domain.Forecast{"event rules": forecastOf(0.8)}}
	bp := &mockBookProvider{books: map[string]domain.OrderBook{"e1_yes": makeBook("e1_yes", 0.6, 10)}}
	mp := &mockMarketProvider{}

	cfg := testConfig()
	cfg.Source = scanner.SourceEvents
	cfg.Filter.RequireEndDate = true

	s := scanner.New(cfg, mp, ep, bp, fc, nil, &mockNotifier{}, nil)
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, mp.calls)
	assert.True(t, ep.query.OrderBook)
	assert.Equal(t, "Sports", ep.query.ExcludeTag)
	require.Len(t, run.ByEdge, 1)
	assert.InDelta(t, 0.2, run.ByEdge[0].Edge, 1e-9)
}

func TestScanner_EventsSource_NoProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Source = scanner.SourceEvents

	s := scanner.New(cfg, &mockMarketProvider{}, nil, &mockBookProvider{}, &mockForecaster{}, nil, &mockNotifier{}, nil)
	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestScanner_Run_Once_NotifiesAndSaves(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{makeMarket("0xa", "desc a")}}
	fc := &mockForecaster{forecasts: map[string]domain.Forecast{"desc a": forecastOf(0.7)}}
	bp := &mockBookProvider{books: map[string]domain.OrderBook{"0xa_yes": makeBook("0xa_yes", 0.5, 10)}}
	n := &mockNotifier{}
	st := &mockStorage{}

	s := scanner.New(testConfig(), mp, nil, bp, fc, st, n, nil)
	require.NoError(t, s.Run(context.Background()))

	require.NotNil(t, n.notified)
	assert.Len(t, n.notified.ByEdge, 1)
	require.Len(t, st.saved, 1)
	assert.Equal(t, n.notified.ID, st.saved[0].ID)
}

func TestScanner_Run_NotifierAndStorageErrorsAreNonFatal(t *testing.T) {
	mp := &mockMarketProvider{markets: []domain.Market{makeMarket("0xa", "desc a")}}
	fc := &mockForecaster{forecasts: map[string]domain.Forecast{"desc a": forecastOf(0.7)}}
	bp := &mockBookProvider{books: map[string]domain.OrderBook{}}

	s := scanner.New(testConfig(), mp, nil, bp, fc,
		&mockStorage{err: errors.New("disk full")},
		&mockNotifier{err: errors.New("broken pipe")}, nil)
	assert.NoError(t, s.Run(context.Background()))
}

func TestScanner_Run_Once_ReturnsCycleError(t *testing.T) {
	mp := &mockMarketProvider{err: errors.New("network down")}
	s := scanner.New(testConfig(), mp, nil, &mockBookProvider{}, &mockForecaster{}, nil, &mockNotifier{}, nil)
	assert.Error(t, s.Run(context.Background()))
}

func TestScanner_Run_StopsOnCancel(t *testing.T) {
	mp := &mockMarketProvider{}
	cfg := testConfig()
	cfg.Once = false
	cfg.ScanInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	s := scanner.New(cfg, mp, nil, &mockBookProvider{}, &mockForecaster{}, nil, &mockNotifier{}, nil)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
