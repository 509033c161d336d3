package app

import (
	"context"
	"fmt"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/bus"
	qbcfg "github.com/WilliamsMiao/Quant-Banana/internal/config"
	cfgloader "github.com/WilliamsMiao/Quant-Banana/internal/config/loader"
	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
	"github.com/WilliamsMiao/Quant-Banana/internal/notifier"
	"github.com/WilliamsMiao/Quant-Banana/internal/orchestrator"
	"github.com/WilliamsMiao/Quant-Banana/internal/performance"
	"github.com/WilliamsMiao/Quant-Banana/internal/scheduler"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/auditlog"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/gormstore"
	"github.com/WilliamsMiao/Quant-Banana/internal/transport/http/fusionhttp"
)

type AppBuilder struct {
	cfg *qbcfg.Config

	stateStoreFn   func(string) (*gormstore.Store, error)
	auditStoreFn   func(string) (*auditlog.Store, error)
	sourceLoaderFn func(string) (*cfgloader.SourceLoader, error)
	notifierFn     func(qbcfg.NotifyConfig) notifier.TextNotifier
	serverFn       func(fusionhttp.ServerConfig) (*fusionhttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *qbcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		stateStoreFn:   gormstore.NewStore,
		auditStoreFn:   auditlog.NewStore,
		sourceLoaderFn: cfgloader.NewSourceLoader,
		notifierFn:     buildNotifier,
		serverFn:       fusionhttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildNotifier(cfg qbcfg.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return notifier.Noop{}
	}
	return notifier.NewGuarded("telegram", notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	stateStore, err := b.stateStoreFn(cfg.Store.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	auditStore, err := b.auditStoreFn(cfg.Store.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	sources, err := b.sourceLoaderFn(cfg.Sources.Path)
	if err != nil {
		return nil, fmt.Errorf("load source registry: %w", err)
	}
	logger.Infof("✓ source registry loaded: %d sources", len(sources.Snapshot().Sources))

	tracker := performance.NewTracker(cfg.Performance, stateStore)
	engine := fusion.NewEngine(cfg.Fusion)
	eventBus := bus.New(cfg.Bus.BufferSize)
	sendText := b.notifierFn(cfg.Notify)

	orch := orchestrator.New(orchestrator.Config{
		PairingWindow: time.Duration(cfg.Pairing.WindowSeconds) * time.Second,
		Cooldown:      time.Duration(cfg.Pairing.CooldownSeconds) * time.Second,
	}, engine, tracker, func(dec fusion.Decision) {
		if err := eventBus.Publish(context.Background(), bus.TopicFusionDecision, dec); err != nil {
			logger.Errorf("publish decision %s failed: %v", dec.TraceID, err)
		}
	})

	wireSignalRoutes(eventBus, orch)
	wireDecisionRoutes(eventBus, stateStore, auditStore, sendText)
	wireOutcomeRoutes(eventBus, tracker, stateStore, auditStore)

	service := NewFusionService(eventBus, sources, auditStore)
	server, err := b.serverFn(fusionhttp.ServerConfig{
		Addr:               cfg.App.HTTPAddr,
		Ingest:             service,
		Decisions:          stateStore,
		Audit:              auditStore,
		Tracker:            tracker,
		Orch:               orch,
		Sources:            sources,
		RateLimitPerSecond: cfg.Ingest.RateLimitPerSecond,
		RateLimitBurst:     cfg.Ingest.RateLimitBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	recompute, ok := scheduler.ParseIntervalDuration(cfg.Performance.RecomputePeriod)
	if !ok {
		return nil, fmt.Errorf("invalid performance.recompute_period %q", cfg.Performance.RecomputePeriod)
	}

	return &App{
		cfg:        cfg,
		bus:        eventBus,
		orch:       orch,
		tracker:    tracker,
		stateStore: stateStore,
		auditStore: auditStore,
		sources:    sources,
		service:    service,
		server:     server,
		recompute:  recompute,
		Summary:    buildStartupSummary(cfg, sources),
	}, nil
}

// wireSignalRoutes forwards parsed signals from both source kinds into the
// per-symbol orchestrator.
func wireSignalRoutes(eventBus *bus.Bus, orch *orchestrator.Orchestrator) {
	forward := func(evt bus.Event) {
		sig, ok := evt.Payload.(fusion.Signal)
		if !ok {
			logger.Warnf("ignoring %s event with payload %T", evt.Topic, evt.Payload)
			return
		}
		if !orch.Dispatch(sig) {
			logger.Warnf("orchestrator stopped, dropping %s signal for %s", sig.Source, sig.Symbol)
		}
	}
	eventBus.Subscribe(bus.TopicStrategySignal, forward)
	eventBus.Subscribe(bus.TopicAIDecision, forward)
}

// wireDecisionRoutes archives every decision, records its audit trail and
// pushes actionable ones to the notification channel.
func wireDecisionRoutes(eventBus *bus.Bus, stateStore *gormstore.Store, auditStore *auditlog.Store, sendText notifier.TextNotifier) {
	eventBus.Subscribe(bus.TopicFusionDecision, func(evt bus.Event) {
		dec, ok := evt.Payload.(fusion.Decision)
		if !ok {
			logger.Warnf("ignoring %s event with payload %T", evt.Topic, evt.Payload)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stateStore.SaveDecision(ctx, dec); err != nil {
			logger.Errorf("archive decision %s failed: %v", dec.TraceID, err)
		}
		if err := auditStore.Append(ctx, dec.TraceID, dec.Symbol, auditlog.StageDecision, dec); err != nil {
			logger.Errorf("audit decision %s failed: %v", dec.TraceID, err)
		}
		if len(dec.GateNotes) > 0 {
			if err := auditStore.Append(ctx, dec.TraceID, dec.Symbol, auditlog.StageGate, dec.GateNotes); err != nil {
				logger.Errorf("audit gates %s failed: %v", dec.TraceID, err)
			}
		}
		if dec.Actionable() {
			// Channel retries sleep between attempts; keep the bus loop clear.
			go func() {
				if err := sendText.SendText(notifier.DecisionMessage(dec).RenderMarkdown()); err != nil {
					logger.Warnf("decision notify %s failed: %v", dec.TraceID, err)
				}
			}()
		}
	})
}

// wireOutcomeRoutes feeds realized trade outcomes back into the performance
// tracker and the decision archive.
func wireOutcomeRoutes(eventBus *bus.Bus, tracker *performance.Tracker, stateStore *gormstore.Store, auditStore *auditlog.Store) {
	eventBus.Subscribe(bus.TopicTradeResult, func(evt bus.Event) {
		res, ok := evt.Payload.(fusion.TradeResult)
		if !ok {
			logger.Warnf("ignoring %s event with payload %T", evt.Topic, evt.Payload)
			return
		}
		tracker.RecordTradeResult(res)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if res.TraceID != "" {
			if err := stateStore.MarkDecisionOutcome(ctx, res.TraceID, res.Won, res.ClosedAt); err != nil {
				logger.Warnf("mark outcome for trace %s failed: %v", res.TraceID, err)
			}
		}
		if err := auditStore.Append(ctx, res.TraceID, res.Symbol, auditlog.StageOutcome, res); err != nil {
			logger.Errorf("audit outcome %s failed: %v", res.TraceID, err)
		}
	})
}
