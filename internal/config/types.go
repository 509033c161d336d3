package config

import "strings"

// Config is the main configuration carrier for the fusion service.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Bus         BusConfig         `mapstructure:"bus"`
	Fusion      FusionConfig      `mapstructure:"fusion"`
	Pairing     PairingConfig     `mapstructure:"pairing"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Store       StoreConfig       `mapstructure:"store"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Sources     SourcesConfig     `mapstructure:"sources"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
}

// BusConfig controls the in-process event bus.
type BusConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// FusionConfig holds the fusion policy knobs. Weight handling lives under
// PerformanceConfig; these values shape a single fusion decision.
type FusionConfig struct {
	AgreementBonus             float64 `mapstructure:"agreement_bonus"`
	ConflictThreshold          float64 `mapstructure:"conflict_threshold"`
	ConflictConfidencePenalty  float64 `mapstructure:"conflict_confidence_penalty"`
	ConflictPositionPenalty    float64 `mapstructure:"conflict_position_penalty"`
	HoldCounterpartDiscount    float64 `mapstructure:"hold_counterpart_discount"`
	WindowExpiryDiscount       float64 `mapstructure:"window_expiry_discount"`
	ConservativeHoldConfidence float64 `mapstructure:"conservative_hold_confidence"`
	MinConfidence              float64 `mapstructure:"min_confidence"`
	MinRiskReward              float64 `mapstructure:"min_risk_reward"`
	MaxPositionRatio           float64 `mapstructure:"max_position_ratio"`
}

// PairingConfig controls the per-symbol pairing state machine.
type PairingConfig struct {
	WindowSeconds   int `mapstructure:"window_seconds"`
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// PerformanceConfig controls outcome tracking and adaptive source weights.
type PerformanceConfig struct {
	HistoryCap      int     `mapstructure:"history_cap"`
	RecomputePeriod string  `mapstructure:"recompute_period"`
	Smoothing       float64 `mapstructure:"smoothing"`
	MinWeight       float64 `mapstructure:"min_weight"`
	MaxWeight       float64 `mapstructure:"max_weight"`
}

type StoreConfig struct {
	StatePath    string `mapstructure:"state_path"`
	AuditLogPath string `mapstructure:"audit_log_path"`
}

// IngestConfig bounds the HTTP signal ingest surface.
type IngestConfig struct {
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// SourcesConfig points at the signal source registry file.
type SourcesConfig struct {
	Path string `mapstructure:"path"`
}

// keySet tracks the field paths explicitly set in the config files so that
// defaults do not stomp on deliberate zero values.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default-value rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
