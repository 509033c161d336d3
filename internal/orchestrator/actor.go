package orchestrator

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
)

// State of one symbol's pairing machine.
type State string

const (
	StateIdle         State = "IDLE"
	StateAwaitingPair State = "AWAITING_PAIR"
	StateCooldown     State = "COOLDOWN"
)

type msgKind int

const (
	msgSignal msgKind = iota
	msgPairTimeout
	msgCooldownOver
)

// message is the only thing that crosses into an actor's loop. seq guards
// timer messages against firing for a superseded pairing round.
type message struct {
	kind msgKind
	sig  fusion.Signal
	seq  int64
}

// symbolActor serializes all fusion work for one symbol. Every mutation of
// the pairing state happens inside runLoop, so no fusion computation for the
// same symbol can overlap another.
type symbolActor struct {
	symbol string
	orc    *Orchestrator

	msgCh  chan message
	stopCh chan struct{}

	// state is written only inside runLoop but read by States() from other
	// goroutines, so access goes through currentState/setState.
	state atomic.Value

	pending  *fusion.Signal
	seq      int64
	timer    *time.Timer
	coolSeq  int64
	coolUntl time.Time
}

func newSymbolActor(symbol string, orc *Orchestrator) *symbolActor {
	a := &symbolActor{
		symbol: symbol,
		orc:    orc,
		msgCh:  make(chan message, 100),
		stopCh: make(chan struct{}),
	}
	a.state.Store(StateIdle)
	return a
}

func (a *symbolActor) currentState() State {
	return a.state.Load().(State)
}

func (a *symbolActor) setState(s State) {
	a.state.Store(s)
}

func (a *symbolActor) start() {
	a.orc.wg.Add(1)
	go a.runLoop()
}

func (a *symbolActor) stop() {
	close(a.stopCh)
}

func (a *symbolActor) send(m message) bool {
	select {
	case a.msgCh <- m:
		return true
	case <-a.stopCh:
		return false
	}
}

func (a *symbolActor) runLoop() {
	defer a.orc.wg.Done()
	for {
		select {
		case m := <-a.msgCh:
			a.handle(m)
		case <-a.stopCh:
			if a.timer != nil {
				a.timer.Stop()
			}
			return
		}
	}
}

func (a *symbolActor) handle(m message) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("symbol actor %s panic: %v", a.symbol, r)
			debug.PrintStack()
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("symbol actor %s slow message kind=%d took %v", a.symbol, m.kind, dur)
		}
	}()

	switch m.kind {
	case msgSignal:
		a.onSignal(m.sig)
	case msgPairTimeout:
		a.onPairTimeout(m.seq)
	case msgCooldownOver:
		a.onCooldownOver(m.seq)
	}
}

func (a *symbolActor) onSignal(sig fusion.Signal) {
	switch a.currentState() {
	case StateIdle:
		a.pending = &sig
		a.seq++
		a.setState(StateAwaitingPair)
		a.armPairTimer(a.seq)
		logger.Debugf("%s awaiting pair for %s signal", a.symbol, sig.Source)

	case StateAwaitingPair:
		if a.pending != nil && a.pending.Source == sig.Source {
			// Latest wins; the pairing timer keeps running so one chatty
			// source cannot stall the window forever.
			a.pending = &sig
			logger.Debugf("%s replaced pending %s signal", a.symbol, sig.Source)
			return
		}
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		first := a.pending
		a.pending = nil
		a.fuseAndEmit(first, &sig)

	case StateCooldown:
		logger.Debugf("%s in cooldown until %s, ignoring %s signal",
			a.symbol, a.coolUntl.Format(time.RFC3339), sig.Source)
	}
}

func (a *symbolActor) onPairTimeout(seq int64) {
	if a.currentState() != StateAwaitingPair || seq != a.seq {
		return
	}
	a.timer = nil
	sig := a.pending
	a.pending = nil
	logger.Debugf("%s pairing window expired, fusing single source", a.symbol)
	a.fuseAndEmit(sig, nil)
}

func (a *symbolActor) onCooldownOver(seq int64) {
	if a.currentState() != StateCooldown || seq != a.coolSeq {
		return
	}
	a.setState(StateIdle)
	logger.Debugf("%s cooldown over", a.symbol)
}

func (a *symbolActor) armPairTimer(seq int64) {
	a.timer = time.AfterFunc(a.orc.cfg.PairingWindow, func() {
		a.send(message{kind: msgPairTimeout, seq: seq})
	})
}

// fuseAndEmit sorts the one or two collected signals into their strategy/AI
// slots, invokes the engine and publishes the decision. A non-HOLD decision
// opens the cooldown; anything else returns the machine to IDLE.
func (a *symbolActor) fuseAndEmit(first, second *fusion.Signal) {
	var strategy, ai *fusion.Signal
	for _, sig := range []*fusion.Signal{first, second} {
		if sig == nil {
			continue
		}
		switch sig.Source {
		case fusion.SourceStrategy:
			strategy = sig
		case fusion.SourceAI:
			ai = sig
		}
	}

	dec, err := a.orc.engine.Fuse(a.symbol, strategy, ai, a.orc.weights.Weights())
	if err != nil {
		logger.Errorf("%s fuse failed: %v", a.symbol, err)
		a.setState(StateIdle)
		return
	}
	a.orc.emit(dec)

	if dec.Direction.Actionable() {
		a.coolSeq++
		a.coolUntl = time.Now().Add(a.orc.cfg.Cooldown)
		a.setState(StateCooldown)
		seq := a.coolSeq
		time.AfterFunc(a.orc.cfg.Cooldown, func() {
			a.send(message{kind: msgCooldownOver, seq: seq})
		})
		return
	}
	a.setState(StateIdle)
}
