package forecast_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alejandrodnm/polyedge/internal/cache"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/forecast"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forecastReply = "```json\n" + `{
  "reasoning": "base rate 40%, recent polling shifts it up",
  "probability": 0.55,
  "uncertainty": {"lower_bound": 0.45, "upper_bound": 0.65, "confidence_level": 0.8},
  "model_confidence": 0.6
}` + "\n```"

// --- mocks ---

type mockResearcher struct {
	reports map[string]string // descripción contenida en el prompt → informe
	report  string
	err     error
	calls   int
}

func (m *mockResearcher) Research(_ context.Context, _, user string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	for desc, r := range m.reports {
		if strings.Contains(user, desc) {
			return r, nil
		}
	}
	return m.report, nil
}

type mockReasoner struct {
	reply string
	err   error
	calls int
}

func (m *mockReasoner) Reason(context.Context, string, string) (string, error) {
	m.calls++
	return m.reply, m.err
}

type mockAssist struct {
	reply string
	calls int
}

func (m *mockAssist) ExtractForecast(context.Context, string, string) (string, error) {
	m.calls++
	return m.reply, nil
}

func newFileCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return cache.New(store)
}

// fullDiskStore no guarda nada: todas las escrituras fallan.
type fullDiskStore struct{}

func (fullDiskStore) Read(context.Context, string) ([]byte, error) { return nil, cache.ErrNotFound }
func (fullDiskStore) Write(context.Context, string, []byte) error {
	return errors.New("no space left on device")
}
func (fullDiskStore) Delete(context.Context, string) error { return nil }

// --- tests ---

func TestPipeline_Forecast(t *testing.T) {
	res := &mockResearcher{report: "report text"}
	rea := &mockReasoner{reply: forecastReply}
	p := forecast.NewPipeline(newFileCache(t), res, rea, forecast.NewExtractor(nil, nil), nil)

	f, err := p.Forecast(context.Background(), "Will X happen by June?")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, f.Probability, 1e-9)
	assert.InDelta(t, 0.6, f.ModelConfidence, 1e-9)
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, 1, rea.calls)
}

func TestPipeline_SecondCallIsServedFromCache(t *testing.T) {
	res := &mockResearcher{report: "report text"}
	rea := &mockReasoner{reply: forecastReply}
	p := forecast.NewPipeline(newFileCache(t), res, rea, forecast.NewExtractor(nil, nil), nil)
	ctx := context.Background()

	first, err := p.Forecast(ctx, "Will X happen by June?")
	require.NoError(t, err)
	second, err := p.Forecast(ctx, "Will X happen by June?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, 1, rea.calls)
}

func TestPipeline_CacheWriteFailureDoesNotAbort(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := cache.New(fullDiskStore{}, cache.WithMetrics(m))

	res := &mockResearcher{report: "report text"}
	rea := &mockReasoner{reply: forecastReply}
	p := forecast.NewPipeline(c, res, rea, forecast.NewExtractor(nil, nil), nil)
	ctx := context.Background()

	f, err := p.Forecast(ctx, "Will X happen by June?")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, f.Probability, 1e-9)

	// nada quedó guardado: la segunda llamada vuelve a los upstreams
	again, err := p.Forecast(ctx, "Will X happen by June?")
	require.NoError(t, err)
	assert.Equal(t, f, again)
	assert.Equal(t, 2, res.calls)
	assert.Equal(t, 2, rea.calls)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var writeErrors float64
	for _, mf := range mfs {
		if mf.GetName() == "polyedge_cache_write_errors_total" {
			writeErrors = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Positive(t, writeErrors)
}

func TestPipeline_IdenticalReportsShareForecast(t *testing.T) {
	// dos mercados distintos cuyo informe es idéntico byte a byte
	res := &mockResearcher{reports: map[string]string{
		"Market A description": "shared report",
		"Market B description": "shared report",
	}}
	rea := &mockReasoner{reply: forecastReply}
	p := forecast.NewPipeline(newFileCache(t), res, rea, forecast.NewExtractor(nil, nil), nil)
	ctx := context.Background()

	fa, err := p.Forecast(ctx, "Market A description")
	require.NoError(t, err)
	fb, err := p.Forecast(ctx, "Market B description")
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Equal(t, 2, res.calls, "each description needs its own report")
	assert.Equal(t, 1, rea.calls, "forecast stage is keyed by the report text")
}

func TestPipeline_ResearchFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	res := &mockResearcher{err: errors.New("status 502")}
	rea := &mockReasoner{reply: forecastReply}
	p := forecast.NewPipeline(newFileCache(t), res, rea, forecast.NewExtractor(nil, m), m)

	_, err := p.Forecast(context.Background(), "Will X happen?")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)

	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, domain.StageResearch, ue.Stage)
	assert.Equal(t, 0, rea.calls)

	n, err := testutil.GatherAndCount(reg, "polyedge_forecast_upstream_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipeline_ReasoningFailureIsNotCached(t *testing.T) {
	res := &mockResearcher{report: "report text"}
	rea := &mockReasoner{err: errors.New("timeout")}
	p := forecast.NewPipeline(newFileCache(t), res, rea, forecast.NewExtractor(nil, nil), nil)
	ctx := context.Background()

	_, err := p.Forecast(ctx, "Will X happen?")
	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, domain.StageForecast, ue.Stage)

	// el informe sí quedó cacheado; el forecast se reintenta
	rea.err = nil
	rea.reply = forecastReply
	f, err := p.Forecast(ctx, "Will X happen?")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, f.Probability, 1e-9)
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, 2, rea.calls)
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	res := &mockResearcher{report: "report text"}
	rea := &mockReasoner{reply: "I think it's likely, maybe 70%."}
	assist := &mockAssist{reply: "still not json"}
	p := forecast.NewPipeline(newFileCache(t), res, rea, forecast.NewExtractor(assist, nil), nil)
	ctx := context.Background()

	_, err := p.Forecast(ctx, "Will X happen?")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.NotErrorIs(t, err, domain.ErrUpstream)

	// la extracción fallida no se cachea: la siguiente llamada vuelve a razonar
	_, err = p.Forecast(ctx, "Will X happen?")
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.Equal(t, 2, rea.calls)
	assert.Equal(t, 2, assist.calls)
}

func TestPipeline_AssistedReparseRecovers(t *testing.T) {
	res := &mockResearcher{report: "report text"}
	rea := &mockReasoner{reply: "Final answer: 55% (45-65%), confidence moderate."}
	assist := &mockAssist{reply: forecastReply}
	p := forecast.NewPipeline(nil, res, rea, forecast.NewExtractor(assist, nil), nil)

	f, err := p.Forecast(context.Background(), "Will X happen?")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, f.Probability, 1e-9)
	assert.Equal(t, 1, assist.calls)
}

func TestPipeline_NilCacheAlwaysCallsUpstream(t *testing.T) {
	res := &mockResearcher{report: "report text"}
	rea := &mockReasoner{reply: forecastReply}
	p := forecast.NewPipeline(nil, res, rea, forecast.NewExtractor(nil, nil), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Forecast(ctx, "Will X happen?")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, res.calls)
	assert.Equal(t, 3, rea.calls)
}

func TestPipeline_Report(t *testing.T) {
	res := &mockResearcher{report: "fresh report"}
	p := forecast.NewPipeline(newFileCache(t), res, &mockReasoner{}, forecast.NewExtractor(nil, nil), nil)
	ctx := context.Background()

	r, err := p.Report(ctx, "desc")
	require.NoError(t, err)
	assert.Equal(t, "fresh report", r)

	r, err = p.Report(ctx, "desc")
	require.NoError(t, err)
	assert.Equal(t, "fresh report", r)
	assert.Equal(t, 1, res.calls)
}
