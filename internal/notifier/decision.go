package notifier

import (
	"fmt"
	"strings"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
)

func decisionIcon(d fusion.Decision) string {
	switch d.Direction {
	case fusion.DirectionBuy:
		return "🟢"
	case fusion.DirectionSell:
		return "🔴"
	default:
		return "⏸️"
	}
}

// DecisionMessage renders one fused decision as a structured push.
func DecisionMessage(d fusion.Decision) StructuredMessage {
	core := []string{
		fmt.Sprintf("Direction: %s", d.Direction),
		fmt.Sprintf("Confidence: %.1f", d.Confidence),
		fmt.Sprintf("Position: %.1f%%", d.PositionWeight*100),
		fmt.Sprintf("Fusion: %s", d.FusionType),
	}
	if d.StopPrice > 0 {
		core = append(core, fmt.Sprintf("Stop: %.6g", d.StopPrice))
	}
	if d.TargetPrice > 0 {
		core = append(core, fmt.Sprintf("Target: %.6g", d.TargetPrice))
	}

	var contrib []string
	for _, sig := range d.Contributing {
		contrib = append(contrib, fmt.Sprintf("%s %s conf=%.1f w=%.2f",
			sig.Source, sig.Direction, sig.Confidence, d.Weights.Of(sig.Source)))
	}

	sections := []MessageSection{
		{Title: "Decision", Lines: core},
		{Title: "Sources", Lines: contrib},
	}
	if len(d.GateNotes) > 0 {
		sections = append(sections, MessageSection{Title: "Gates", Lines: d.GateNotes})
	}
	if reason := strings.TrimSpace(d.Reason); reason != "" {
		sections = append(sections, MessageSection{Title: "Reason", Lines: []string{reason}})
	}

	return StructuredMessage{
		Icon:      decisionIcon(d),
		Title:     fmt.Sprintf("%s fused decision", d.Symbol),
		Sections:  sections,
		Footer:    "trace " + d.TraceID,
		Timestamp: d.CreatedAt,
	}
}
