package fusion

import (
	"fmt"
	"math"

	"github.com/WilliamsMiao/Quant-Banana/internal/config"

	"github.com/shopspring/decimal"
)

// applyGates runs the post-fusion quality gates in order. A confidence or
// risk/reward failure downgrades the decision to HOLD with zero position; an
// oversized position is clamped rather than rejected. Gate outcomes are
// recorded on the decision so the audit trail shows why a trade was blocked.
func applyGates(cfg config.FusionConfig, dec Decision, refPrice float64) Decision {
	if !dec.Direction.Actionable() {
		return dec
	}
	if dec.Confidence < cfg.MinConfidence {
		dec.GateNotes = append(dec.GateNotes,
			fmt.Sprintf("confidence %.1f below minimum %.1f", dec.Confidence, cfg.MinConfidence))
		return demoteToHold(dec)
	}
	if rr, ok := riskReward(refPrice, dec.StopPrice, dec.TargetPrice); ok && rr < cfg.MinRiskReward {
		dec.GateNotes = append(dec.GateNotes,
			fmt.Sprintf("risk/reward %.2f below minimum %.2f", rr, cfg.MinRiskReward))
		return demoteToHold(dec)
	}
	if dec.PositionWeight > cfg.MaxPositionRatio {
		dec.GateNotes = append(dec.GateNotes,
			fmt.Sprintf("position %.3f clamped to %.3f", dec.PositionWeight, cfg.MaxPositionRatio))
		dec.PositionWeight = cfg.MaxPositionRatio
	}
	return dec
}

func demoteToHold(dec Decision) Decision {
	dec.Direction = DirectionHold
	dec.PositionWeight = 0
	return dec
}

// riskReward computes |target-price| / |price-stop| with decimal arithmetic
// so tight stops near the reference price do not lose precision. Returns
// ok=false when any of the three prices is unset, so the gate is skipped for
// signals without price levels.
func riskReward(price, stop, target float64) (float64, bool) {
	if price <= 0 || stop <= 0 || target <= 0 {
		return 0, false
	}
	p := decimal.NewFromFloat(price)
	risk := p.Sub(decimal.NewFromFloat(stop)).Abs()
	reward := decimal.NewFromFloat(target).Sub(p).Abs()
	if risk.IsZero() {
		return math.Inf(1), true
	}
	return reward.Div(risk).InexactFloat64(), true
}
