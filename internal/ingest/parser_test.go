package ingest

import (
	"testing"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignalBasic(t *testing.T) {
	raw := []byte(`{
		"symbol": "btcusdt",
		"direction": "BUY",
		"confidence": 72.5,
		"reason": "ema crossover",
		"price": 65000,
		"stop_price": 63500,
		"target_price": 68000,
		"timestamp": "2026-08-30T12:00:00Z"
	}`)
	sig, err := ParseSignal(fusion.SourceStrategy, raw)
	require.NoError(t, err)

	assert.Equal(t, fusion.SourceStrategy, sig.Source)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, fusion.DirectionBuy, sig.Direction)
	assert.InDelta(t, 72.5, sig.Confidence, 1e-9)
	assert.Equal(t, "ema crossover", sig.Reason)
	assert.InDelta(t, 63500, sig.StopPrice, 1e-9)
	assert.InDelta(t, 68000, sig.TargetPrice, 1e-9)
	assert.Equal(t, 2026, sig.Timestamp.Year())
}

func TestParseSignalToleratesAliasesAndStringNumbers(t *testing.T) {
	raw := []byte(`{
		"symbol": "ETHUSDT",
		"action": "long",
		"confidence": "80",
		"stop_loss": "3100.5",
		"take_profit": "3600"
	}`)
	sig, err := ParseSignal(fusion.SourceAI, raw)
	require.NoError(t, err)

	assert.Equal(t, fusion.DirectionBuy, sig.Direction)
	assert.InDelta(t, 80, sig.Confidence, 1e-9)
	assert.InDelta(t, 3100.5, sig.StopPrice, 1e-9)
	assert.InDelta(t, 3600, sig.TargetPrice, 1e-9)
	assert.False(t, sig.Timestamp.IsZero())
}

func TestParseSignalRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"missing_symbol":     `{"direction": "BUY", "confidence": 70}`,
		"missing_confidence": `{"symbol": "BTCUSDT", "direction": "BUY"}`,
		"bad_confidence":     `{"symbol": "BTCUSDT", "direction": "BUY", "confidence": 130}`,
		"bad_direction":      `{"symbol": "BTCUSDT", "direction": "sideways", "confidence": 70}`,
		"not_json":           `signal BUY BTCUSDT`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSignal(fusion.SourceStrategy, []byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseTradeResult(t *testing.T) {
	raw := []byte(`{
		"symbol": "btcusdt",
		"won": true,
		"trace_id": "abc-123",
		"source_attribution": ["strategy", "ai"],
		"closed_at": 1756600000
	}`)
	res, err := ParseTradeResult(raw)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.True(t, res.Won)
	assert.Equal(t, "abc-123", res.TraceID)
	assert.Equal(t, []fusion.Source{fusion.SourceStrategy, fusion.SourceAI}, res.Sources)
	assert.Equal(t, time.Unix(1756600000, 0), res.ClosedAt)
}

func TestParseTradeResultSourcesAlias(t *testing.T) {
	raw := []byte(`{"symbol": "ETHUSDT", "won": false, "sources": ["LLM"]}`)
	res, err := ParseTradeResult(raw)
	require.NoError(t, err)
	assert.Equal(t, []fusion.Source{fusion.SourceAI}, res.Sources)
	assert.False(t, res.Won)
}

func TestParseTradeResultRejectsMissingAttribution(t *testing.T) {
	_, err := ParseTradeResult([]byte(`{"symbol": "BTCUSDT", "won": true}`))
	assert.Error(t, err)

	_, err = ParseTradeResult([]byte(`{"symbol": "BTCUSDT", "won": true, "sources": ["oracle"]}`))
	assert.Error(t, err)
}
