package fusion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/config"

	"github.com/google/uuid"
)

// ErrNoSignals is returned when Fuse is called without any signal.
var ErrNoSignals = errors.New("fusion requires at least one signal")

// Engine combines a strategy signal and an AI signal for one symbol into a
// single decision. The engine itself is stateless; trust weights are passed
// in per call so a computation always uses one coherent snapshot.
type Engine struct {
	cfg config.FusionConfig
}

func NewEngine(cfg config.FusionConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Fuse computes the decision for symbol from the available signals. Either
// signal may be nil (single-source mode); both nil is an input error.
func (e *Engine) Fuse(symbol string, strategy, ai *Signal, weights Weights) (Decision, error) {
	if strategy == nil && ai == nil {
		return Decision{}, ErrNoSignals
	}

	var dec Decision
	var refPrice float64
	switch {
	case strategy != nil && ai != nil:
		dec, refPrice = e.fusePair(*strategy, *ai, weights)
	case strategy != nil:
		dec, refPrice = e.fuseSingle(*strategy, e.cfg.WindowExpiryDiscount, "no AI decision within pairing window")
	default:
		dec, refPrice = e.fuseSingle(*ai, e.cfg.WindowExpiryDiscount, "no strategy signal within pairing window")
	}

	dec.TraceID = uuid.NewString()
	dec.Symbol = symbol
	dec.Weights = weights
	dec.CreatedAt = time.Now()
	dec = applyGates(e.cfg, dec, refPrice)
	return dec, nil
}

func (e *Engine) fusePair(strategy, ai Signal, weights Weights) (Decision, float64) {
	ws := weights.Of(SourceStrategy)
	wa := weights.Of(SourceAI)

	switch {
	case strategy.Direction == ai.Direction:
		return e.fuseAgreement(strategy, ai, ws, wa)
	case strategy.Direction.Actionable() && ai.Direction.Actionable():
		return e.fuseConflict(strategy, ai, ws, wa)
	case strategy.Direction.Actionable():
		dec, ref := e.fuseSingle(strategy, e.cfg.HoldCounterpartDiscount, "AI advises holding")
		dec.Contributing = []Signal{strategy, ai}
		return dec, ref
	default:
		dec, ref := e.fuseSingle(ai, e.cfg.HoldCounterpartDiscount, "strategy advises holding")
		dec.Contributing = []Signal{strategy, ai}
		return dec, ref
	}
}

// fuseAgreement handles both sources pointing the same way, HOLD included.
func (e *Engine) fuseAgreement(strategy, ai Signal, ws, wa float64) (Decision, float64) {
	confidence := math.Min(100, ws*strategy.Confidence+wa*ai.Confidence+e.cfg.AgreementBonus)
	dec := Decision{
		Direction:    strategy.Direction,
		Confidence:   confidence,
		FusionType:   FusionEnhanced,
		Reason:       fmt.Sprintf("strategy and AI agree on %s", strategy.Direction),
		Contributing: []Signal{strategy, ai},
	}
	if dec.Direction.Actionable() {
		dec.PositionWeight = e.positionFor(confidence)
		dec.StopPrice, dec.TargetPrice = mergeLevels(dec.Direction, strategy, ai)
	}
	return dec, pickRefPrice(strategy, ai)
}

// fuseConflict handles opposite actionable directions. The signed score per
// source is weight * confidence * direction sign; a decisive sum follows the
// winner with penalties, an indecisive one collapses to a conservative hold.
func (e *Engine) fuseConflict(strategy, ai Signal, ws, wa float64) (Decision, float64) {
	score := ws*strategy.Confidence*strategy.Direction.Sign() +
		wa*ai.Confidence*ai.Direction.Sign()
	if math.Abs(score) < e.cfg.ConflictThreshold {
		return Decision{
			Direction:    DirectionHold,
			Confidence:   e.cfg.ConservativeHoldConfidence,
			FusionType:   FusionConservativeHold,
			Reason:       fmt.Sprintf("sources disagree without a clear winner (score %.1f)", score),
			Contributing: []Signal{strategy, ai},
		}, 0
	}

	winner := strategy
	if (score > 0) != (strategy.Direction == DirectionBuy) {
		winner = ai
	}
	confidence := winner.Confidence * e.cfg.ConflictConfidencePenalty
	return Decision{
		Direction:      winner.Direction,
		Confidence:     confidence,
		PositionWeight: e.positionFor(confidence) * e.cfg.ConflictPositionPenalty,
		StopPrice:      winner.StopPrice,
		TargetPrice:    winner.TargetPrice,
		FusionType:     FusionConflictResolved,
		Reason:         fmt.Sprintf("conflict resolved toward %s by %s (score %.1f)", winner.Direction, winner.Source, score),
		Contributing:   []Signal{strategy, ai},
	}, winner.Price
}

// fuseSingle builds a decision from one signal, discounting its confidence
// for the missing corroboration.
func (e *Engine) fuseSingle(sig Signal, discount float64, note string) (Decision, float64) {
	dec := Decision{
		Direction:    sig.Direction,
		Confidence:   sig.Confidence,
		FusionType:   FusionSingleSource,
		Reason:       fmt.Sprintf("%s %s stands alone: %s", sig.Source, sig.Direction, note),
		Contributing: []Signal{sig},
	}
	if !dec.Direction.Actionable() {
		return dec, 0
	}
	dec.Confidence = sig.Confidence * discount
	dec.PositionWeight = e.positionFor(dec.Confidence)
	dec.StopPrice = sig.StopPrice
	dec.TargetPrice = sig.TargetPrice
	return dec, sig.Price
}

// positionFor scales the position weight proportionally to confidence,
// bounded by the configured ratio cap.
func (e *Engine) positionFor(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	return math.Min(e.cfg.MaxPositionRatio, e.cfg.MaxPositionRatio*confidence/100)
}

// mergeLevels picks the tighter of the two stop/target pairs for an agreed
// direction: for BUY the higher stop and lower target, mirrored for SELL.
// An unset level on one side falls through to the other.
func mergeLevels(dir Direction, a, b Signal) (stop, target float64) {
	stop = mergePrice(a.StopPrice, b.StopPrice, dir == DirectionBuy)
	target = mergePrice(a.TargetPrice, b.TargetPrice, dir == DirectionSell)
	return stop, target
}

// mergePrice returns the max of the two prices when wantMax, else the min,
// ignoring unset (zero) values.
func mergePrice(a, b float64, wantMax bool) float64 {
	switch {
	case a <= 0:
		return math.Max(b, 0)
	case b <= 0:
		return a
	case wantMax:
		return math.Max(a, b)
	default:
		return math.Min(a, b)
	}
}

func pickRefPrice(strategy, ai Signal) float64 {
	if strategy.Price > 0 {
		return strategy.Price
	}
	return ai.Price
}
