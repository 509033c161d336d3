package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/WilliamsMiao/Quant-Banana/internal/bus"
	qbcfg "github.com/WilliamsMiao/Quant-Banana/internal/config"
	cfgloader "github.com/WilliamsMiao/Quant-Banana/internal/config/loader"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
	"github.com/WilliamsMiao/Quant-Banana/internal/orchestrator"
	"github.com/WilliamsMiao/Quant-Banana/internal/performance"
	"github.com/WilliamsMiao/Quant-Banana/internal/scheduler"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/auditlog"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/gormstore"
	"github.com/WilliamsMiao/Quant-Banana/internal/transport/http/fusionhttp"
)

// App owns application-level orchestration: load config, build the fusion
// pipeline, then run the HTTP surface and the weight recompute cycle.
type App struct {
	cfg        *qbcfg.Config
	bus        *bus.Bus
	orch       *orchestrator.Orchestrator
	tracker    *performance.Tracker
	stateStore *gormstore.Store
	auditStore *auditlog.Store
	sources    *cfgloader.SourceLoader
	service    *FusionService
	server     *fusionhttp.Server
	recompute  time.Duration
	Summary    *StartupSummary
}

// NewApp builds the application from config without starting it.
func NewApp(cfg *qbcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves HTTP and drives the weight recompute cycle until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("fusion http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		scheduler.NewAlignedScheduler(ctx, a.recompute, 0).Start(func() {
			a.tracker.RecomputeWeights()
		})
		return nil
	})

	err := group.Wait()
	a.Close()
	return err
}

// Close stops the pipeline and releases storage handles.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.orch != nil {
		a.orch.Stop()
	}
	if a.bus != nil {
		a.bus.Stop()
	}
	if a.stateStore != nil {
		_ = a.stateStore.Close()
	}
	if a.auditStore != nil {
		_ = a.auditStore.Close()
	}
}

// Service exposes the ingest service, used by replay and test harnesses.
func (a *App) Service() *FusionService {
	if a == nil {
		return nil
	}
	return a.service
}
