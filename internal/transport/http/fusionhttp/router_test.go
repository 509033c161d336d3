package fusionhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/WilliamsMiao/Quant-Banana/internal/config"
	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/performance"
)

type stubIngestor struct {
	lastSource string
	lastRaw    string
	fail       bool
}

func (s *stubIngestor) IngestSignal(_ context.Context, sourceName string, payload []byte) (fusion.Signal, error) {
	if s.fail {
		return fusion.Signal{}, errors.New("unknown source")
	}
	s.lastSource = sourceName
	s.lastRaw = string(payload)
	return fusion.Signal{
		Source:     fusion.SourceStrategy,
		Symbol:     "BTCUSDT",
		Direction:  fusion.DirectionBuy,
		Confidence: 80,
	}, nil
}

func (s *stubIngestor) IngestTradeResult(_ context.Context, payload []byte) (fusion.TradeResult, error) {
	if s.fail {
		return fusion.TradeResult{}, errors.New("bad payload")
	}
	return fusion.TradeResult{Symbol: "BTCUSDT", Won: true}, nil
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Ingest == nil {
		cfg.Ingest = &stubIngestor{}
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv
}

func perfConfig() config.PerformanceConfig {
	return config.PerformanceConfig{
		HistoryCap:      50,
		RecomputePeriod: "30m",
		Smoothing:       0.3,
		MinWeight:       0.2,
		MaxWeight:       0.8,
	}
}

func TestSignalIngestRoundTrip(t *testing.T) {
	ing := &stubIngestor{}
	srv := newTestServer(t, ServerConfig{Ingest: ing})

	body := `{"symbol":"BTCUSDT","direction":"BUY","confidence":80}`
	req := httptest.NewRequest(http.MethodPost, "/api/fusion/signals/trend-follower", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "trend-follower", ing.lastSource)
	assert.Equal(t, body, ing.lastRaw)
	assert.Equal(t, "BTCUSDT", gjson.Get(rec.Body.String(), "symbol").String())
}

func TestSignalIngestRejectedPayload(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Ingest: &stubIngestor{fail: true}})

	req := httptest.NewRequest(http.MethodPost, "/api/fusion/signals/x", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown source")
}

func TestIngestRateLimit(t *testing.T) {
	srv := newTestServer(t, ServerConfig{
		Ingest:             &stubIngestor{},
		RateLimitPerSecond: 1,
		RateLimitBurst:     2,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/fusion/signals/s", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusAccepted, codes[0])
	assert.Equal(t, http.StatusAccepted, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestWeightsEndpoint(t *testing.T) {
	tracker := performance.NewTracker(perfConfig(), nil)
	srv := newTestServer(t, ServerConfig{Tracker: tracker})

	req := httptest.NewRequest(http.MethodGet, "/api/fusion/weights", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.InDelta(t, 0.45, gjson.Get(body, "weights.STRATEGY").Float(), 1e-9)
	assert.InDelta(t, 0.55, gjson.Get(body, "weights.AI").Float(), 1e-9)
}

func TestUnavailableDependenciesReturn503(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	for _, path := range []string{
		"/api/fusion/weights",
		"/api/fusion/stats",
		"/api/fusion/states",
		"/api/fusion/decisions",
		"/api/fusion/audit",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "path %s", path)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWeightChartRenders(t *testing.T) {
	tracker := performance.NewTracker(perfConfig(), nil)
	tracker.RecordOutcome(fusion.SourceStrategy, true)
	tracker.RecomputeWeights()
	srv := newTestServer(t, ServerConfig{Tracker: tracker})

	req := httptest.NewRequest(http.MethodGet, "/chart/weights", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Source weights")
}
