package config

import (
	"fmt"
	"strings"
)

// validate performs basic sanity checks on the loaded configuration.
func validate(c *Config) error {
	if err := c.Fusion.validate(); err != nil {
		return err
	}
	if err := c.Pairing.validate(); err != nil {
		return err
	}
	if err := c.Performance.validate(); err != nil {
		return err
	}
	if err := c.Bus.validate(); err != nil {
		return err
	}
	if err := c.Ingest.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (f *FusionConfig) validate() error {
	if f.MinConfidence < 0 || f.MinConfidence > 100 {
		return fmt.Errorf("fusion.min_confidence must be in [0,100]")
	}
	if f.ConservativeHoldConfidence < 0 || f.ConservativeHoldConfidence > 100 {
		return fmt.Errorf("fusion.conservative_hold_confidence must be in [0,100]")
	}
	if f.MinRiskReward <= 0 {
		return fmt.Errorf("fusion.min_risk_reward must be > 0")
	}
	if f.MaxPositionRatio <= 0 || f.MaxPositionRatio > 1 {
		return fmt.Errorf("fusion.max_position_ratio must be in (0,1]")
	}
	for name, v := range map[string]float64{
		"fusion.conflict_confidence_penalty": f.ConflictConfidencePenalty,
		"fusion.conflict_position_penalty":   f.ConflictPositionPenalty,
		"fusion.hold_counterpart_discount":   f.HoldCounterpartDiscount,
		"fusion.window_expiry_discount":      f.WindowExpiryDiscount,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0,1]", name)
		}
	}
	if f.ConflictThreshold < 0 || f.ConflictThreshold > 100 {
		return fmt.Errorf("fusion.conflict_threshold must be in [0,100]")
	}
	if f.AgreementBonus < 0 {
		return fmt.Errorf("fusion.agreement_bonus must be >= 0")
	}
	return nil
}

func (p *PairingConfig) validate() error {
	if p.WindowSeconds <= 0 {
		return fmt.Errorf("pairing.window_seconds must be > 0")
	}
	if p.CooldownSeconds < 0 {
		return fmt.Errorf("pairing.cooldown_seconds must be >= 0")
	}
	return nil
}

func (p *PerformanceConfig) validate() error {
	if p.HistoryCap <= 0 {
		return fmt.Errorf("performance.history_cap must be > 0")
	}
	if !IsValidInterval(strings.TrimSpace(p.RecomputePeriod)) {
		return fmt.Errorf("performance.recompute_period is not a valid interval: %s", p.RecomputePeriod)
	}
	if p.Smoothing <= 0 || p.Smoothing > 1 {
		return fmt.Errorf("performance.smoothing must be in (0,1]")
	}
	if p.MinWeight < 0 || p.MaxWeight > 1 || p.MinWeight >= p.MaxWeight {
		return fmt.Errorf("performance weight bounds require 0 <= min_weight < max_weight <= 1")
	}
	// Two sources must be able to satisfy the bounds simultaneously.
	if 2*p.MinWeight > 1 || 2*p.MaxWeight < 1 {
		return fmt.Errorf("performance weight bounds cannot sum to 1 for two sources")
	}
	return nil
}

func (b *BusConfig) validate() error {
	if b.BufferSize <= 0 {
		return fmt.Errorf("bus.buffer_size must be > 0")
	}
	return nil
}

func (i *IngestConfig) validate() error {
	if i.RateLimitPerSecond <= 0 {
		return fmt.Errorf("ingest.rate_limit_per_second must be > 0")
	}
	if i.RateLimitBurst <= 0 {
		return fmt.Errorf("ingest.rate_limit_burst must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

// IsValidInterval reports whether s looks like "30m", "1h", "2d" or "1w":
// digits followed by one of m/h/d/w.
func IsValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
