package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

// ParseSignal validates and extracts one inbound signal payload for the
// given source. Extraction is tolerant about field aliases: "direction" may
// arrive as "action" or "signal", stop/target accept the common
// stop_loss/take_profit spellings, and numbers may be JSON strings.
func ParseSignal(source fusion.Source, raw []byte) (fusion.Signal, error) {
	if err := validatePayload(signalSchema, raw); err != nil {
		return fusion.Signal{}, fmt.Errorf("signal payload rejected: %w", err)
	}
	doc := gjson.ParseBytes(raw)

	dirRaw := firstString(doc, "direction", "action", "signal")
	direction, ok := fusion.ParseDirection(dirRaw)
	if !ok {
		return fusion.Signal{}, fmt.Errorf("unknown direction %q", dirRaw)
	}

	sig := fusion.Signal{
		Source:      source,
		Symbol:      symbol.Normalize(doc.Get("symbol").String()),
		Direction:   direction,
		Confidence:  doc.Get("confidence").Float(),
		Reason:      strings.TrimSpace(doc.Get("reason").String()),
		Price:       firstFloat(doc, "price", "current_price", "entry_price"),
		StopPrice:   firstFloat(doc, "stop_price", "stop_loss", "sl"),
		TargetPrice: firstFloat(doc, "target_price", "take_profit", "tp"),
		Timestamp:   parseTimestamp(doc.Get("timestamp")),
	}
	if sig.Confidence < 0 || sig.Confidence > 100 {
		return fusion.Signal{}, fmt.Errorf("confidence %.1f out of range", sig.Confidence)
	}
	return sig, nil
}

// ParseTradeResult validates and extracts a realized trade outcome.
func ParseTradeResult(raw []byte) (fusion.TradeResult, error) {
	if err := validatePayload(tradeResultSchema, raw); err != nil {
		return fusion.TradeResult{}, fmt.Errorf("trade result payload rejected: %w", err)
	}
	doc := gjson.ParseBytes(raw)

	attribution := doc.Get("source_attribution")
	if !attribution.Exists() {
		attribution = doc.Get("sources")
	}
	var sources []fusion.Source
	for _, item := range attribution.Array() {
		src, ok := fusion.ParseSource(item.String())
		if !ok {
			return fusion.TradeResult{}, fmt.Errorf("unknown source %q in attribution", item.String())
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return fusion.TradeResult{}, fmt.Errorf("trade result without source attribution")
	}

	res := fusion.TradeResult{
		TraceID:  strings.TrimSpace(doc.Get("trace_id").String()),
		Symbol:   symbol.Normalize(doc.Get("symbol").String()),
		Sources:  sources,
		Won:      doc.Get("won").Bool(),
		ClosedAt: parseTimestamp(doc.Get("closed_at")),
	}
	return res, nil
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := doc.Get(key); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstFloat(doc gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := doc.Get(key); v.Exists() {
			if f := v.Float(); f > 0 {
				return f
			}
		}
	}
	return 0
}

// parseTimestamp accepts RFC3339 strings, unix seconds and unix millis,
// falling back to now when absent or unreadable.
func parseTimestamp(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return ts
		}
	case gjson.Number:
		n := v.Int()
		switch {
		case n > 1e12:
			return time.UnixMilli(n)
		case n > 0:
			return time.Unix(n, 0)
		}
	}
	return time.Now()
}
