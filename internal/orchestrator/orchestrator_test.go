package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/config"
	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWeights struct{}

func (stubWeights) Weights() fusion.Weights {
	return fusion.Weights{fusion.SourceStrategy: 0.45, fusion.SourceAI: 0.55}
}

type decisionSink struct {
	mu        sync.Mutex
	decisions []fusion.Decision
	notify    chan fusion.Decision
}

func newDecisionSink() *decisionSink {
	return &decisionSink{notify: make(chan fusion.Decision, 16)}
}

func (s *decisionSink) emit(dec fusion.Decision) {
	s.mu.Lock()
	s.decisions = append(s.decisions, dec)
	s.mu.Unlock()
	s.notify <- dec
}

func (s *decisionSink) wait(t *testing.T, timeout time.Duration) fusion.Decision {
	t.Helper()
	select {
	case dec := <-s.notify:
		return dec
	case <-time.After(timeout):
		t.Fatal("timeout waiting for decision")
		return fusion.Decision{}
	}
}

func (s *decisionSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

func testEngine() *fusion.Engine {
	return fusion.NewEngine(config.FusionConfig{
		AgreementBonus:             10,
		ConflictThreshold:          30,
		ConflictConfidencePenalty:  0.7,
		ConflictPositionPenalty:    0.7,
		HoldCounterpartDiscount:    0.85,
		WindowExpiryDiscount:       0.75,
		ConservativeHoldConfidence: 40,
		MinConfidence:              60,
		MinRiskReward:              1.3,
		MaxPositionRatio:           0.3,
	})
}

func newTestOrchestrator(sink *decisionSink, window, cooldown time.Duration) *Orchestrator {
	return New(Config{PairingWindow: window, Cooldown: cooldown}, testEngine(), stubWeights{}, sink.emit)
}

func signal(source fusion.Source, symbol string, dir fusion.Direction, conf float64) fusion.Signal {
	return fusion.Signal{Source: source, Symbol: symbol, Direction: dir, Confidence: conf, Timestamp: time.Now()}
}

func TestPairedSignalsFuseBeforeWindow(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, time.Second, 50*time.Millisecond)
	defer orc.Stop()

	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 70)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "BTCUSDT", fusion.DirectionBuy, 80)))

	dec := sink.wait(t, time.Second)
	assert.Equal(t, fusion.FusionEnhanced, dec.FusionType)
	assert.Equal(t, "BTCUSDT", dec.Symbol)
	assert.InDelta(t, 85.5, dec.Confidence, 1e-9)
}

func TestSingleSourceOnlyAfterWindowExpiry(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, 80*time.Millisecond, 10*time.Millisecond)
	defer orc.Stop()

	start := time.Now()
	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "ETHUSDT", fusion.DirectionBuy, 90)))

	dec := sink.wait(t, time.Second)
	assert.Equal(t, fusion.FusionSingleSource, dec.FusionType)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestSameSourceReplacementLatestWins(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, time.Second, 10*time.Millisecond)
	defer orc.Stop()

	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 50)))
	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 90)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "BTCUSDT", fusion.DirectionBuy, 80)))

	dec := sink.wait(t, time.Second)
	// 0.45*90 + 0.55*80 + 10: the replaced signal's confidence is gone.
	assert.InDelta(t, 94.5, dec.Confidence, 1e-9)
	assert.Equal(t, 1, sink.count())
}

func TestCooldownRejectsSignalsUntilElapsed(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, 30*time.Millisecond, 150*time.Millisecond)
	defer orc.Stop()

	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 90)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "BTCUSDT", fusion.DirectionBuy, 90)))
	first := sink.wait(t, time.Second)
	require.True(t, first.Actionable())

	// Signals during cooldown must not produce a second decision.
	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionSell, 95)))
	select {
	case <-sink.notify:
		t.Fatal("decision emitted during cooldown")
	case <-time.After(100 * time.Millisecond):
	}

	// After the cooldown the symbol accepts signals again.
	time.Sleep(100 * time.Millisecond)
	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 90)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "BTCUSDT", fusion.DirectionBuy, 90)))
	second := sink.wait(t, time.Second)
	assert.True(t, second.Actionable())
}

func TestHoldDecisionSkipsCooldown(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, 30*time.Millisecond, time.Hour)
	defer orc.Stop()

	// Conservative hold: 0.45*60 - 0.55*90 = -22.5, inside the threshold.
	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 60)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "BTCUSDT", fusion.DirectionSell, 90)))
	first := sink.wait(t, time.Second)
	require.Equal(t, fusion.FusionConservativeHold, first.FusionType)

	// No cooldown was opened, so the next pair fuses immediately.
	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 90)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "BTCUSDT", fusion.DirectionBuy, 90)))
	second := sink.wait(t, time.Second)
	assert.True(t, second.Actionable())
}

func TestSymbolsAreIndependent(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, 500*time.Millisecond, 10*time.Millisecond)
	defer orc.Stop()

	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 70)))
	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, "ETHUSDT", fusion.DirectionSell, 70)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "BTCUSDT", fusion.DirectionBuy, 80)))
	require.True(t, orc.Dispatch(signal(fusion.SourceAI, "ETHUSDT", fusion.DirectionSell, 80)))

	seen := map[string]fusion.Direction{}
	for i := 0; i < 2; i++ {
		dec := sink.wait(t, time.Second)
		seen[dec.Symbol] = dec.Direction
	}
	assert.Equal(t, fusion.DirectionBuy, seen["BTCUSDT"])
	assert.Equal(t, fusion.DirectionSell, seen["ETHUSDT"])
}

func TestDispatchNormalizesSymbol(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, 20*time.Millisecond, 10*time.Millisecond)
	defer orc.Stop()

	require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, " btcusdt ", fusion.DirectionBuy, 90)))
	dec := sink.wait(t, time.Second)
	assert.Equal(t, "BTCUSDT", dec.Symbol)
}

func TestStatesIsSafeDuringDispatch(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, 20*time.Millisecond, 10*time.Millisecond)
	defer orc.Stop()

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT", "ADAUSDT", "DOGEUSDT", "LTCUSDT"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			for sym, state := range orc.States() {
				switch state {
				case StateIdle, StateAwaitingPair, StateCooldown:
				default:
					t.Errorf("unexpected state %q for %s", state, sym)
				}
			}
		}
	}()

	for _, sym := range symbols {
		require.True(t, orc.Dispatch(signal(fusion.SourceStrategy, sym, fusion.DirectionBuy, 80)))
		require.True(t, orc.Dispatch(signal(fusion.SourceAI, sym, fusion.DirectionBuy, 85)))
	}
	<-done

	for i := 0; i < len(symbols); i++ {
		sink.wait(t, time.Second)
	}
	assert.Len(t, orc.States(), len(symbols))
}

func TestDispatchAfterStopReturnsFalse(t *testing.T) {
	sink := newDecisionSink()
	orc := newTestOrchestrator(sink, 20*time.Millisecond, 10*time.Millisecond)
	orc.Stop()
	assert.False(t, orc.Dispatch(signal(fusion.SourceStrategy, "BTCUSDT", fusion.DirectionBuy, 90)))
}
