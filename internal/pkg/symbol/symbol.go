package symbol

import (
	"strings"
)

// Symbol is a parsed trading pair. The pipeline keys everything by the
// canonical compact form ("BTCUSDT"), but upstream producers send pairs in
// several shapes: "BTCUSDT", "BTC/USDT", "btc/usdt:USDT".
type Symbol struct {
	Base  string
	Quote string
}

// Canonical returns the compact uppercase form used as the pipeline key.
func (s Symbol) Canonical() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Pair returns the slash-separated display form.
func (s Symbol) Pair() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	// Settlement suffix ("BTC/USDT:USDT") carries no information here.
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	quoteCurrencies := []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize maps any accepted spelling to the canonical compact form. Inputs
// with no recognizable quote currency fall back to bare uppercasing so that
// uncommon pairs still round-trip.
func Normalize(s string) string {
	if canon := Parse(s).Canonical(); canon != "" {
		return canon
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeList normalizes and dedupes, preserving first-seen order.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
