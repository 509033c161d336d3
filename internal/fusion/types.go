package fusion

import (
	"strings"
	"time"
)

// Source identifies which side of the pipeline produced a signal.
type Source string

const (
	SourceStrategy Source = "STRATEGY"
	SourceAI       Source = "AI"
)

// ParseSource normalizes common source spellings.
func ParseSource(raw string) (Source, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "STRATEGY", "STRAT", "INDICATOR", "TECHNICAL":
		return SourceStrategy, true
	case "AI", "LLM", "MODEL", "ADVISORY":
		return SourceAI, true
	default:
		return "", false
	}
}

// Direction is the trading intent of a signal or decision.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// ParseDirection normalizes the direction aliases seen from upstream
// producers ("long", "short", "wait" and friends).
func ParseDirection(raw string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG", "OPEN_LONG", "BULLISH":
		return DirectionBuy, true
	case "SELL", "SHORT", "OPEN_SHORT", "BEARISH":
		return DirectionSell, true
	case "HOLD", "WAIT", "NEUTRAL", "NONE", "FLAT":
		return DirectionHold, true
	default:
		return "", false
	}
}

// Sign maps BUY to +1, SELL to -1 and HOLD to 0.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

// Actionable reports whether the direction implies a trade.
func (d Direction) Actionable() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Signal is one directional opinion from a single source. Immutable once
// created. Price is the reference price at signal time; price fields use 0
// for "unset".
type Signal struct {
	Source      Source
	Symbol      string
	Direction   Direction
	Confidence  float64 // 0-100
	Reason      string
	Price       float64
	StopPrice   float64
	TargetPrice float64
	Timestamp   time.Time
}

// FusionType labels how a decision was derived.
type FusionType string

const (
	FusionEnhanced         FusionType = "ENHANCED"
	FusionConflictResolved FusionType = "CONFLICT_RESOLVED"
	FusionSingleSource     FusionType = "SINGLE_SOURCE"
	FusionConservativeHold FusionType = "CONSERVATIVE_HOLD"
)

// Decision is the fused output for one symbol. Created exactly once per
// completed fusion cycle and never mutated afterwards.
type Decision struct {
	TraceID        string
	Symbol         string
	Direction      Direction
	Confidence     float64 // 0-100
	PositionWeight float64 // 0-1 fraction of allowed capital
	StopPrice      float64
	TargetPrice    float64
	FusionType     FusionType
	Reason         string
	GateNotes      []string
	Contributing   []Signal
	Weights        Weights
	CreatedAt      time.Time
}

// Actionable reports whether the decision should reach execution.
func (d Decision) Actionable() bool {
	return d.Direction.Actionable() && d.PositionWeight > 0
}

// TradeResult reports the realized outcome of an executed decision, with the
// sources that contributed to it.
type TradeResult struct {
	TraceID  string
	Symbol   string
	Sources  []Source
	Won      bool
	ClosedAt time.Time
}

// Weights is an immutable trust-weight snapshot keyed by source.
type Weights map[Source]float64

// Of returns the weight for source, falling back to an even split when the
// snapshot has no entry.
func (w Weights) Of(s Source) float64 {
	if v, ok := w[s]; ok {
		return v
	}
	return 0.5
}
