package app

import (
	"fmt"
	"sort"
	"strings"

	qbcfg "github.com/WilliamsMiao/Quant-Banana/internal/config"
	cfgloader "github.com/WilliamsMiao/Quant-Banana/internal/config/loader"
)

type StartupSummary struct {
	Fusion  FusionSummary
	Pairing PairingSummary
	Sources []SourceSummary
}

type FusionSummary struct {
	MinConfidence    float64
	MinRiskReward    float64
	MaxPositionRatio float64
	AgreementBonus   float64
}

type PairingSummary struct {
	WindowSeconds   int
	CooldownSeconds int
	RecomputePeriod string
}

type SourceSummary struct {
	Name    string
	Kind    string
	Enabled bool
	Symbols []string
}

func buildStartupSummary(cfg *qbcfg.Config, sources *cfgloader.SourceLoader) *StartupSummary {
	s := &StartupSummary{
		Fusion: FusionSummary{
			MinConfidence:    cfg.Fusion.MinConfidence,
			MinRiskReward:    cfg.Fusion.MinRiskReward,
			MaxPositionRatio: cfg.Fusion.MaxPositionRatio,
			AgreementBonus:   cfg.Fusion.AgreementBonus,
		},
		Pairing: PairingSummary{
			WindowSeconds:   cfg.Pairing.WindowSeconds,
			CooldownSeconds: cfg.Pairing.CooldownSeconds,
			RecomputePeriod: cfg.Performance.RecomputePeriod,
		},
	}
	snap := sources.Snapshot()
	names := make([]string, 0, len(snap.Sources))
	for name := range snap.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := snap.Sources[name]
		s.Sources = append(s.Sources, SourceSummary{
			Name:    def.Name,
			Kind:    def.Kind,
			Enabled: def.Enabled,
			Symbols: def.Symbols,
		})
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[FUSION]")
	fmt.Printf("  min confidence: %.1f\n", s.Fusion.MinConfidence)
	fmt.Printf("  min risk/reward: %.2f\n", s.Fusion.MinRiskReward)
	fmt.Printf("  max position ratio: %.2f\n", s.Fusion.MaxPositionRatio)
	fmt.Printf("  agreement bonus: %.1f\n", s.Fusion.AgreementBonus)
	fmt.Println()

	fmt.Println("[PAIRING & WEIGHTS]")
	fmt.Printf("  pairing window: %ds\n", s.Pairing.WindowSeconds)
	fmt.Printf("  cooldown: %ds\n", s.Pairing.CooldownSeconds)
	fmt.Printf("  weight recompute: %s\n", s.Pairing.RecomputePeriod)
	fmt.Println()

	fmt.Println("[SIGNAL SOURCES]")
	if len(s.Sources) == 0 {
		fmt.Println("  (none)")
	} else {
		for _, src := range s.Sources {
			state := "enabled"
			if !src.Enabled {
				state = "disabled"
			}
			fmt.Printf("  > %s (%s, %s) symbols: %s\n", src.Name, src.Kind, state, formatList(src.Symbols))
		}
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "all"
	}
	return strings.Join(items, ", ")
}
