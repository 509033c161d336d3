package config

import "strings"

// Default values. The fusion policy numbers mirror the production tuning and
// should only change together with the quality gates.
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9991"
	defaultAppLogPath   = "/data/logs/fusion-live.log"
	defaultBusBuffer    = 100
	defaultSourcesPath  = "configs/sources.yaml"
	defaultStatePath    = "/data/db/fusion_state.db"
	defaultAuditLogPath = "/data/db/fusion_audit.db"

	defaultAgreementBonus       = 10
	defaultConflictThreshold    = 30
	defaultConflictConfPenalty  = 0.7
	defaultConflictPosPenalty   = 0.7
	defaultHoldCounterpartDisc  = 0.85
	defaultWindowExpiryDisc     = 0.75
	defaultConservativeHoldConf = 40
	defaultMinConfidence        = 60
	defaultMinRiskReward        = 1.3
	defaultMaxPositionRatio     = 0.3

	defaultPairingWindowSeconds   = 30
	defaultPairingCooldownSeconds = 60

	defaultPerfHistoryCap = 50
	defaultPerfRecompute  = "30m"
	defaultPerfSmoothing  = 0.3
	defaultPerfMinWeight  = 0.2
	defaultPerfMaxWeight  = 0.8

	defaultIngestRate  = 50.0
	defaultIngestBurst = 100
)

// applyDefaults applies defaults to all sub-configs.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Bus.applyDefaults(keys)
	c.Fusion.applyDefaults(keys)
	c.Pairing.applyDefaults(keys)
	c.Performance.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Ingest.applyDefaults(keys)
	c.Sources.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (b *BusConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "bus.buffer_size",
			need:  func() bool { return b.BufferSize <= 0 },
			apply: func() { b.BufferSize = defaultBusBuffer },
		},
	)
}

func (f *FusionConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("fusion.agreement_bonus", &f.AgreementBonus, defaultAgreementBonus),
		floatFieldDefault("fusion.conflict_threshold", &f.ConflictThreshold, defaultConflictThreshold),
		floatFieldDefault("fusion.conflict_confidence_penalty", &f.ConflictConfidencePenalty, defaultConflictConfPenalty),
		floatFieldDefault("fusion.conflict_position_penalty", &f.ConflictPositionPenalty, defaultConflictPosPenalty),
		floatFieldDefault("fusion.hold_counterpart_discount", &f.HoldCounterpartDiscount, defaultHoldCounterpartDisc),
		floatFieldDefault("fusion.window_expiry_discount", &f.WindowExpiryDiscount, defaultWindowExpiryDisc),
		floatFieldDefault("fusion.conservative_hold_confidence", &f.ConservativeHoldConfidence, defaultConservativeHoldConf),
		floatFieldDefault("fusion.min_confidence", &f.MinConfidence, defaultMinConfidence),
		floatFieldDefault("fusion.min_risk_reward", &f.MinRiskReward, defaultMinRiskReward),
		floatFieldDefault("fusion.max_position_ratio", &f.MaxPositionRatio, defaultMaxPositionRatio),
	)
}

func (p *PairingConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "pairing.window_seconds",
			need:  func() bool { return p.WindowSeconds <= 0 },
			apply: func() { p.WindowSeconds = defaultPairingWindowSeconds },
		},
		fieldDefault{
			key:   "pairing.cooldown_seconds",
			need:  func() bool { return p.CooldownSeconds < 0 },
			apply: func() { p.CooldownSeconds = defaultPairingCooldownSeconds },
		},
	)
}

func (p *PerformanceConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "performance.history_cap",
			need:  func() bool { return p.HistoryCap <= 0 },
			apply: func() { p.HistoryCap = defaultPerfHistoryCap },
		},
		stringFieldDefault("performance.recompute_period", &p.RecomputePeriod, defaultPerfRecompute),
		floatFieldDefault("performance.smoothing", &p.Smoothing, defaultPerfSmoothing),
		floatFieldDefault("performance.min_weight", &p.MinWeight, defaultPerfMinWeight),
		floatFieldDefault("performance.max_weight", &p.MaxWeight, defaultPerfMaxWeight),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.state_path", &s.StatePath, defaultStatePath),
		stringFieldDefault("store.audit_log_path", &s.AuditLogPath, defaultAuditLogPath),
	)
}

func (i *IngestConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("ingest.rate_limit_per_second", &i.RateLimitPerSecond, defaultIngestRate),
		fieldDefault{
			key:   "ingest.rate_limit_burst",
			need:  func() bool { return i.RateLimitBurst <= 0 },
			apply: func() { i.RateLimitBurst = defaultIngestBurst },
		},
	)
}

func (s *SourcesConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("sources.path", &s.Path, defaultSourcesPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
