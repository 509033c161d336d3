package performance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/config"
	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPerfConfig() config.PerformanceConfig {
	return config.PerformanceConfig{
		HistoryCap:      50,
		RecomputePeriod: "30m",
		Smoothing:       0.3,
		MinWeight:       0.2,
		MaxWeight:       0.8,
	}
}

type fakeStore struct {
	saved  [][]SourceStats
	loaded []SourceStats
	err    error
}

func (f *fakeStore) SavePerformance(_ context.Context, rows []SourceStats) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rows)
	return nil
}

func (f *fakeStore) LoadPerformance(context.Context) ([]SourceStats, error) {
	return f.loaded, f.err
}

func TestInitialWeights(t *testing.T) {
	tr := NewTracker(testPerfConfig(), nil)
	w := tr.Weights()
	assert.InDelta(t, 0.45, w.Of(fusion.SourceStrategy), 1e-9)
	assert.InDelta(t, 0.55, w.Of(fusion.SourceAI), 1e-9)
}

func TestRecomputeKeepsWeightsBoundedAndNormalized(t *testing.T) {
	cfg := testPerfConfig()
	tr := NewTracker(cfg, nil)
	for i := 0; i < 20; i++ {
		tr.RecordOutcome(fusion.SourceStrategy, true)
		tr.RecordOutcome(fusion.SourceAI, i%4 == 0)
	}
	for cycle := 0; cycle < 10; cycle++ {
		w := tr.RecomputeWeights()
		var sum float64
		for _, v := range w {
			assert.GreaterOrEqual(t, v, cfg.MinWeight)
			assert.LessOrEqual(t, v, cfg.MaxWeight)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		// Feed more outcomes so subsequent cycles keep adapting.
		tr.RecordOutcome(fusion.SourceStrategy, true)
		tr.RecordOutcome(fusion.SourceAI, false)
	}
}

func TestRecomputeShiftsTrustTowardWinningSource(t *testing.T) {
	tr := NewTracker(testPerfConfig(), nil)
	for i := 0; i < 30; i++ {
		tr.RecordOutcome(fusion.SourceStrategy, true)
		tr.RecordOutcome(fusion.SourceAI, false)
	}
	w := tr.RecomputeWeights()
	assert.Greater(t, w.Of(fusion.SourceStrategy), w.Of(fusion.SourceAI))
}

func TestRecomputeIdempotentWithoutNewOutcomes(t *testing.T) {
	tr := NewTracker(testPerfConfig(), nil)
	tr.RecordOutcome(fusion.SourceStrategy, true)
	tr.RecordOutcome(fusion.SourceAI, false)

	first := tr.RecomputeWeights()
	firstVersion := tr.Snapshot().Version
	second := tr.RecomputeWeights()

	assert.Equal(t, first, second)
	assert.Equal(t, firstVersion, tr.Snapshot().Version)
}

func TestSourceWithoutOutcomesNotBlended(t *testing.T) {
	tr := NewTracker(testPerfConfig(), nil)
	for i := 0; i < 10; i++ {
		tr.RecordOutcome(fusion.SourceStrategy, true)
	}
	w := tr.RecomputeWeights()
	// The AI side has no data, so only normalization may move it. It must not
	// be dragged toward the lower bound by a zero success rate.
	assert.Greater(t, w.Of(fusion.SourceAI), testPerfConfig().MinWeight)
	var sum float64
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	cfg := testPerfConfig()
	cfg.HistoryCap = 5
	tr := NewTracker(cfg, nil)
	for i := 0; i < 5; i++ {
		tr.RecordOutcome(fusion.SourceAI, false)
	}
	for i := 0; i < 5; i++ {
		tr.RecordOutcome(fusion.SourceAI, true)
	}
	for _, s := range tr.Stats() {
		if s.Source != fusion.SourceAI {
			continue
		}
		assert.Equal(t, 5, s.Total)
		assert.Equal(t, 5, s.Wins)
		assert.InDelta(t, 1.0, s.SuccessRate, 1e-9)
	}
}

func TestRecordTradeResultAttributesAllSources(t *testing.T) {
	tr := NewTracker(testPerfConfig(), nil)
	tr.RecordTradeResult(fusion.TradeResult{
		Symbol:   "BTCUSDT",
		Sources:  []fusion.Source{fusion.SourceStrategy, fusion.SourceAI},
		Won:      true,
		ClosedAt: time.Now(),
	})
	for _, s := range tr.Stats() {
		assert.Equal(t, 1, s.Total)
		assert.Equal(t, 1, s.Wins)
	}
}

func TestPersistFailureRetriedNextCycle(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	tr := NewTracker(testPerfConfig(), store)
	tr.RecordOutcome(fusion.SourceStrategy, true)
	tr.RecomputeWeights()
	assert.Empty(t, store.saved)

	// Store recovers; the next cycle retries even without new outcomes.
	store.err = nil
	tr.RecomputeWeights()
	require.Len(t, store.saved, 1)
}

func TestRestoreSeedsWeightsFromStore(t *testing.T) {
	store := &fakeStore{loaded: []SourceStats{
		{Source: fusion.SourceStrategy, Weight: 0.62},
		{Source: fusion.SourceAI, Weight: 0.38},
	}}
	tr := NewTracker(testPerfConfig(), store)
	w := tr.Weights()
	assert.InDelta(t, 0.62, w.Of(fusion.SourceStrategy), 1e-9)
	assert.InDelta(t, 0.38, w.Of(fusion.SourceAI), 1e-9)
}
