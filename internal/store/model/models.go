package model

import "gorm.io/datatypes"

// SourcePerformanceModel persists the tracker state for one signal source.
type SourcePerformanceModel struct {
	Source        string  `gorm:"column:source;primaryKey"`
	Wins          int     `gorm:"column:wins"`
	Total         int     `gorm:"column:total"`
	SuccessRate   float64 `gorm:"column:success_rate"`
	Weight        float64 `gorm:"column:weight"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (SourcePerformanceModel) TableName() string { return "source_performance" }

// FusionDecisionModel archives one emitted decision. Outcome fields stay
// empty until the matching trade result arrives.
type FusionDecisionModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	TraceID        string         `gorm:"column:trace_id;uniqueIndex"`
	Symbol         string         `gorm:"column:symbol;index"`
	Direction      string         `gorm:"column:direction"`
	Confidence     float64        `gorm:"column:confidence"`
	PositionWeight float64        `gorm:"column:position_weight"`
	StopPrice      float64        `gorm:"column:stop_price"`
	TargetPrice    float64        `gorm:"column:target_price"`
	FusionType     string         `gorm:"column:fusion_type;index"`
	Reason         string         `gorm:"column:reason"`
	GateNotes      datatypes.JSON `gorm:"column:gate_notes"`
	Contributing   datatypes.JSON `gorm:"column:contributing"`
	Weights        datatypes.JSON `gorm:"column:weights"`
	Outcome        string         `gorm:"column:outcome"`
	ClosedAtUnix   int64          `gorm:"column:closed_at"`
	CreatedAtUnix  int64          `gorm:"column:created_at;index"`
}

func (FusionDecisionModel) TableName() string { return "fusion_decisions" }
