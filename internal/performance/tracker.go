package performance

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/config"
	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
)

// Initial trust split before any outcomes are recorded.
const (
	initialStrategyWeight = 0.45
	initialAIWeight       = 0.55
)

const weightHistoryCap = 288

// Store persists tracker state between runs. Persistence is best-effort; a
// failed write is logged and retried on the next recompute cycle.
type Store interface {
	SavePerformance(ctx context.Context, rows []SourceStats) error
	LoadPerformance(ctx context.Context) ([]SourceStats, error)
}

// SourceStats is the externally visible per-source record.
type SourceStats struct {
	Source      fusion.Source
	Wins        int
	Total       int
	SuccessRate float64
	Weight      float64
	UpdatedAt   time.Time
}

// Snapshot is an immutable weight set. Readers always see a fully-formed
// snapshot; the recompute cycle swaps in a new one atomically.
type Snapshot struct {
	Weights    fusion.Weights
	Version    int64
	ComputedAt time.Time
}

// WeightPoint is one entry of the weight history kept for charting.
type WeightPoint struct {
	At      time.Time
	Weights fusion.Weights
}

type sourceHistory struct {
	outcomes []bool // ring, oldest first
	wins     int
	weight   float64
	dirty    bool // outcomes recorded since last recompute
	updated  time.Time
}

func (h *sourceHistory) successRate() float64 {
	if len(h.outcomes) == 0 {
		return 0
	}
	return float64(h.wins) / float64(len(h.outcomes))
}

// Tracker converts realized trade outcomes into adaptive trust weights. All
// mutation happens under one mutex; the fusion path reads weights through the
// lock-free snapshot.
type Tracker struct {
	cfg   config.PerformanceConfig
	store Store

	mu           sync.Mutex
	histories    map[fusion.Source]*sourceHistory
	history      []WeightPoint
	persistDirty bool

	snapshot atomic.Value // Snapshot
}

// NewTracker builds a tracker with the initial trust split, optionally
// restoring persisted weights from store. store may be nil.
func NewTracker(cfg config.PerformanceConfig, store Store) *Tracker {
	t := &Tracker{
		cfg:   cfg,
		store: store,
		histories: map[fusion.Source]*sourceHistory{
			fusion.SourceStrategy: {weight: initialStrategyWeight},
			fusion.SourceAI:       {weight: initialAIWeight},
		},
	}
	t.restore()
	t.publishLocked(time.Now())
	return t
}

func (t *Tracker) restore() {
	if t.store == nil {
		return
	}
	rows, err := t.store.LoadPerformance(context.Background())
	if err != nil {
		logger.Warnf("performance restore failed, starting from defaults: %v", err)
		return
	}
	for _, row := range rows {
		h, ok := t.histories[row.Source]
		if !ok {
			continue
		}
		if row.Weight > 0 {
			h.weight = row.Weight
		}
		h.updated = row.UpdatedAt
	}
	if len(rows) > 0 {
		logger.Infof("performance restored weights for %d sources", len(rows))
	}
}

// RecordOutcome appends one win/loss to the source's bounded history and
// refreshes its success rate. Outcomes beyond the cap evict the oldest entry.
func (t *Tracker) RecordOutcome(source fusion.Source, won bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.histories[source]
	if !ok {
		return
	}
	h.outcomes = append(h.outcomes, won)
	if won {
		h.wins++
	}
	if len(h.outcomes) > t.cfg.HistoryCap {
		if h.outcomes[0] {
			h.wins--
		}
		h.outcomes = h.outcomes[1:]
	}
	h.dirty = true
	h.updated = time.Now()
}

// RecordTradeResult attributes one trade outcome to every contributing source.
func (t *Tracker) RecordTradeResult(res fusion.TradeResult) {
	for _, src := range res.Sources {
		t.RecordOutcome(src, res.Won)
	}
}

// Weights returns the current trust snapshot without locking.
func (t *Tracker) Weights() fusion.Weights {
	return t.Snapshot().Weights
}

// Snapshot returns the last published weight snapshot.
func (t *Tracker) Snapshot() Snapshot {
	return t.snapshot.Load().(Snapshot)
}

// Stats returns a copy of the per-source records, for the query API.
func (t *Tracker) Stats() []SourceStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SourceStats, 0, len(t.histories))
	for src, h := range t.histories {
		out = append(out, SourceStats{
			Source:      src,
			Wins:        h.wins,
			Total:       len(h.outcomes),
			SuccessRate: h.successRate(),
			Weight:      h.weight,
			UpdatedAt:   h.updated,
		})
	}
	return out
}

// WeightHistory returns the recorded weight trajectory, oldest first.
func (t *Tracker) WeightHistory() []WeightPoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WeightPoint, len(t.history))
	copy(out, t.history)
	return out
}

// RecomputeWeights rebuilds the trust weights from the recorded outcomes and
// publishes a new snapshot. Sources without new outcomes since the previous
// cycle keep their weight, so calling twice in a row changes nothing.
func (t *Tracker) RecomputeWeights() fusion.Weights {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for _, h := range t.histories {
		if h.dirty {
			changed = true
			break
		}
	}
	if changed {
		t.recomputeLocked()
		t.publishLocked(time.Now())
		t.persistDirty = true
	}
	if t.persistDirty {
		t.persistLocked()
	}
	return t.Snapshot().Weights
}

// recomputeLocked blends the success-rate targets into the previous weights,
// then clamps and renormalizes so every weight stays within bounds and the
// set sums to 1.
func (t *Tracker) recomputeLocked() {
	var rateSum float64
	for _, h := range t.histories {
		if len(h.outcomes) > 0 {
			rateSum += h.successRate()
		}
	}
	for _, h := range t.histories {
		if !h.dirty || len(h.outcomes) == 0 || rateSum <= 0 {
			h.dirty = false
			continue
		}
		target := h.successRate() / rateSum
		h.weight = (1-t.cfg.Smoothing)*h.weight + t.cfg.Smoothing*target
		h.dirty = false
	}
	t.normalizeLocked()
}

// normalizeLocked projects the weights onto the constraint set: each weight
// within [min,max] and the total equal to 1. A few clamp-and-rescale passes
// converge for any satisfiable bounds.
func (t *Tracker) normalizeLocked() {
	lo, hi := t.cfg.MinWeight, t.cfg.MaxWeight
	for i := 0; i < 8; i++ {
		var sum float64
		for _, h := range t.histories {
			h.weight = math.Min(hi, math.Max(lo, h.weight))
			sum += h.weight
		}
		if sum <= 0 {
			break
		}
		if math.Abs(sum-1) < 1e-12 {
			return
		}
		for _, h := range t.histories {
			h.weight /= sum
		}
	}
	for _, h := range t.histories {
		h.weight = math.Min(hi, math.Max(lo, h.weight))
	}
}

func (t *Tracker) publishLocked(now time.Time) {
	weights := make(fusion.Weights, len(t.histories))
	for src, h := range t.histories {
		weights[src] = h.weight
	}
	var version int64 = 1
	if prev, ok := t.snapshot.Load().(Snapshot); ok {
		version = prev.Version + 1
	}
	t.snapshot.Store(Snapshot{Weights: weights, Version: version, ComputedAt: now})
	t.history = append(t.history, WeightPoint{At: now, Weights: weights})
	if len(t.history) > weightHistoryCap {
		t.history = t.history[1:]
	}
}

func (t *Tracker) persistLocked() {
	if t.store == nil {
		t.persistDirty = false
		return
	}
	rows := make([]SourceStats, 0, len(t.histories))
	for src, h := range t.histories {
		rows = append(rows, SourceStats{
			Source:      src,
			Wins:        h.wins,
			Total:       len(h.outcomes),
			SuccessRate: h.successRate(),
			Weight:      h.weight,
			UpdatedAt:   h.updated,
		})
	}
	if err := t.store.SavePerformance(context.Background(), rows); err != nil {
		logger.Warnf("performance persist failed, will retry next cycle: %v", err)
		return
	}
	t.persistDirty = false
}
