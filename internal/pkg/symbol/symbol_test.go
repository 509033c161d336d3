package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAcceptedSpellings(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":       "BTCUSDT",
		"btc/usdt":      "BTCUSDT",
		"BTC/USDT:USDT": "BTCUSDT",
		" eth/usdt ":    "ETHUSDT",
		"SOLUSDC":       "SOLUSDC",
		"WEIRDPAIR":     "WEIRDPAIR", // no known quote, bare uppercase
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestParseSplitsBaseAndQuote(t *testing.T) {
	sym := Parse("1000PEPEUSDT")
	assert.Equal(t, "1000PEPE", sym.Base)
	assert.Equal(t, "USDT", sym.Quote)
	assert.Equal(t, "1000PEPE/USDT", sym.Pair())
	assert.True(t, IsValid("1000PEPEUSDT"))
	assert.False(t, IsValid("USDT"))
}

func TestNormalizeListDedupes(t *testing.T) {
	got := NormalizeList([]string{"btc/usdt", "BTCUSDT", "", "ethusdt"})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
}
