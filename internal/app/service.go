package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/WilliamsMiao/Quant-Banana/internal/bus"
	"github.com/WilliamsMiao/Quant-Banana/internal/config/loader"
	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/ingest"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/auditlog"
)

// FusionService validates raw source payloads against the source registry
// and feeds accepted events onto the bus. It is the single entry point for
// everything arriving over HTTP.
type FusionService struct {
	bus     *bus.Bus
	sources *loader.SourceLoader
	audit   *auditlog.Store
}

func NewFusionService(b *bus.Bus, sources *loader.SourceLoader, audit *auditlog.Store) *FusionService {
	return &FusionService{bus: b, sources: sources, audit: audit}
}

// IngestSignal parses one raw signal payload for a registered source and
// publishes it on the source kind's topic.
func (s *FusionService) IngestSignal(ctx context.Context, sourceName string, payload []byte) (fusion.Signal, error) {
	name := strings.ToLower(strings.TrimSpace(sourceName))
	def, ok := s.sources.Source(name)
	if !ok {
		return fusion.Signal{}, fmt.Errorf("source %q not registered", sourceName)
	}
	if !def.Enabled {
		return fusion.Signal{}, fmt.Errorf("source %q is disabled", sourceName)
	}

	kind := fusion.SourceStrategy
	topic := bus.TopicStrategySignal
	if def.Kind == "ai" {
		kind = fusion.SourceAI
		topic = bus.TopicAIDecision
	}

	sig, err := ingest.ParseSignal(kind, payload)
	if err != nil {
		return fusion.Signal{}, err
	}
	if !s.sources.Accepts(name, sig.Symbol) {
		return fusion.Signal{}, fmt.Errorf("source %q may not emit signals for %s", sourceName, sig.Symbol)
	}

	if s.audit != nil {
		_ = s.audit.Append(ctx, "", sig.Symbol, auditlog.StageSignal, sig)
	}
	if err := s.bus.Publish(ctx, topic, sig); err != nil {
		return fusion.Signal{}, err
	}
	return sig, nil
}

// IngestTradeResult parses one realized trade outcome and publishes it.
func (s *FusionService) IngestTradeResult(ctx context.Context, payload []byte) (fusion.TradeResult, error) {
	res, err := ingest.ParseTradeResult(payload)
	if err != nil {
		return fusion.TradeResult{}, err
	}
	if err := s.bus.Publish(ctx, bus.TopicTradeResult, res); err != nil {
		return fusion.TradeResult{}, err
	}
	return res, nil
}
