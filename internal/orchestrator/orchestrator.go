package orchestrator

import (
	"strings"
	"sync"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
)

// Config holds the pairing machine timings.
type Config struct {
	PairingWindow time.Duration
	Cooldown      time.Duration
}

// WeightsProvider hands out the trust snapshot used for one fusion call.
type WeightsProvider interface {
	Weights() fusion.Weights
}

// EmitFunc receives every decision produced by the orchestrator.
type EmitFunc func(fusion.Decision)

// Orchestrator demultiplexes signals by symbol onto per-symbol actors,
// guaranteeing at most one fusion computation in flight per symbol while
// unrelated symbols proceed in parallel.
type Orchestrator struct {
	cfg     Config
	engine  *fusion.Engine
	weights WeightsProvider
	emit    EmitFunc

	mu      sync.Mutex
	actors  map[string]*symbolActor
	stopped bool
	wg      sync.WaitGroup
}

func New(cfg Config, engine *fusion.Engine, weights WeightsProvider, emit EmitFunc) *Orchestrator {
	if cfg.PairingWindow <= 0 {
		cfg.PairingWindow = 30 * time.Second
	}
	if emit == nil {
		emit = func(fusion.Decision) {}
	}
	return &Orchestrator{
		cfg:     cfg,
		engine:  engine,
		weights: weights,
		emit:    emit,
		actors:  make(map[string]*symbolActor),
	}
}

// Dispatch routes one signal to its symbol's actor, creating the actor on
// the first signal for that symbol. Returns false after Stop.
func (o *Orchestrator) Dispatch(sig fusion.Signal) bool {
	symbol := strings.ToUpper(strings.TrimSpace(sig.Symbol))
	if symbol == "" {
		logger.Warnf("orchestrator dropped signal without symbol from %s", sig.Source)
		return false
	}
	sig.Symbol = symbol
	actor := o.actorFor(symbol)
	if actor == nil {
		return false
	}
	return actor.send(message{kind: msgSignal, sig: sig})
}

func (o *Orchestrator) actorFor(symbol string) *symbolActor {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil
	}
	actor, ok := o.actors[symbol]
	if !ok {
		actor = newSymbolActor(symbol, o)
		o.actors[symbol] = actor
		actor.start()
		logger.Infof("orchestrator started actor for %s", symbol)
	}
	return actor
}

// States returns the current pairing state per symbol, for the query API.
// Each value is an atomic snapshot and may lag the actor by one message.
func (o *Orchestrator) States() map[string]State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]State, len(o.actors))
	for sym, actor := range o.actors {
		out[sym] = actor.currentState()
	}
	return out
}

// Stop shuts every actor down and waits for their loops to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	actors := make([]*symbolActor, 0, len(o.actors))
	for _, a := range o.actors {
		actors = append(actors, a)
	}
	o.mu.Unlock()
	for _, a := range actors {
		a.stop()
	}
	o.wg.Wait()
}
