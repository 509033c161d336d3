package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/performance"
	storemodel "github.com/WilliamsMiao/Quant-Banana/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type (
	sourcePerformanceModel = storemodel.SourcePerformanceModel
	fusionDecisionModel    = storemodel.FusionDecisionModel
)

// Store keeps the tracker state and the decision archive in one SQLite file
// via gorm.
type Store struct {
	db *gorm.DB
}

var _ performance.Store = (*Store)(nil)

// NewStore opens (and migrates) the state database at path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: state path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sourcePerformanceModel{}, &fusionDecisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a little parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- performance.Store implementation ---------------------

func (s *Store) SavePerformance(ctx context.Context, rows []performance.SourceStats) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if len(rows) == 0 {
		return nil
	}
	models := make([]sourcePerformanceModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, sourcePerformanceModel{
			Source:        string(row.Source),
			Wins:          row.Wins,
			Total:         row.Total,
			SuccessRate:   row.SuccessRate,
			Weight:        row.Weight,
			UpdatedAtUnix: row.UpdatedAt.Unix(),
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}},
			DoUpdates: clause.AssignmentColumns([]string{"wins", "total", "success_rate", "weight", "updated_at"}),
		}).
		Create(&models).Error
}

func (s *Store) LoadPerformance(ctx context.Context) ([]performance.SourceStats, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []sourcePerformanceModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]performance.SourceStats, 0, len(models))
	for _, m := range models {
		src, ok := fusion.ParseSource(m.Source)
		if !ok {
			continue
		}
		out = append(out, performance.SourceStats{
			Source:      src,
			Wins:        m.Wins,
			Total:       m.Total,
			SuccessRate: m.SuccessRate,
			Weight:      m.Weight,
			UpdatedAt:   time.Unix(m.UpdatedAtUnix, 0),
		})
	}
	return out, nil
}

// --------------------------- decision archive -------------------------------

// SaveDecision archives one decision. Re-saving the same trace id is a no-op,
// so the archive subscriber tolerates redelivery.
func (s *Store) SaveDecision(ctx context.Context, dec fusion.Decision) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if strings.TrimSpace(dec.TraceID) == "" {
		return fmt.Errorf("decision archive requires trace_id")
	}
	model := newFusionDecisionModel(dec)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trace_id"}},
			DoNothing: true,
		}).
		Create(&model).Error
}

// MarkDecisionOutcome links a realized trade result back to the archived
// decision row.
func (s *Store) MarkDecisionOutcome(ctx context.Context, traceID string, won bool, closedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return fmt.Errorf("trade result requires trace_id")
	}
	outcome := "LOSS"
	if won {
		outcome = "WIN"
	}
	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	res := s.db.WithContext(ctx).Model(&fusionDecisionModel{}).
		Where("trace_id = ?", traceID).
		Updates(map[string]interface{}{
			"outcome":   outcome,
			"closed_at": closedAt.Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecisionQuery filters the archive listing.
type DecisionQuery struct {
	Symbol     string
	FusionType string
	Limit      int
	Offset     int
}

// ArchivedDecision is one archive row as served by the query API.
type ArchivedDecision struct {
	TraceID        string          `json:"trace_id"`
	Symbol         string          `json:"symbol"`
	Direction      string          `json:"direction"`
	Confidence     float64         `json:"confidence"`
	PositionWeight float64         `json:"position_weight"`
	StopPrice      float64         `json:"stop_price,omitempty"`
	TargetPrice    float64         `json:"target_price,omitempty"`
	FusionType     string          `json:"fusion_type"`
	Reason         string          `json:"reason"`
	GateNotes      []string        `json:"gate_notes,omitempty"`
	Contributing   json.RawMessage `json:"contributing,omitempty"`
	Weights        json.RawMessage `json:"weights,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
	ClosedAt       int64           `json:"closed_at,omitempty"`
	CreatedAt      int64           `json:"created_at"`
}

// ListDecisions returns archived decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, q DecisionQuery) ([]ArchivedDecision, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	query := s.db.WithContext(ctx).Model(&fusionDecisionModel{})
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	if ft := strings.ToUpper(strings.TrimSpace(q.FusionType)); ft != "" {
		query = query.Where("fusion_type = ?", ft)
	}
	var models []fusionDecisionModel
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ArchivedDecision, 0, len(models))
	for _, m := range models {
		out = append(out, fusionDecisionModelToRecord(m))
	}
	return out, nil
}

// GetDecision fetches a single archived decision by trace id.
func (s *Store) GetDecision(ctx context.Context, traceID string) (ArchivedDecision, bool, error) {
	if s == nil || s.db == nil {
		return ArchivedDecision{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m fusionDecisionModel
	err := s.db.WithContext(ctx).Where("trace_id = ?", strings.TrimSpace(traceID)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ArchivedDecision{}, false, nil
		}
		return ArchivedDecision{}, false, err
	}
	return fusionDecisionModelToRecord(m), true, nil
}

// --------------------------- model helpers ----------------------------------

func newFusionDecisionModel(dec fusion.Decision) fusionDecisionModel {
	if dec.CreatedAt.IsZero() {
		dec.CreatedAt = time.Now()
	}
	gateNotes, _ := json.Marshal(dec.GateNotes)
	contributing, _ := json.Marshal(dec.Contributing)
	weights, _ := json.Marshal(dec.Weights)
	return fusionDecisionModel{
		TraceID:        strings.TrimSpace(dec.TraceID),
		Symbol:         strings.ToUpper(strings.TrimSpace(dec.Symbol)),
		Direction:      string(dec.Direction),
		Confidence:     dec.Confidence,
		PositionWeight: dec.PositionWeight,
		StopPrice:      dec.StopPrice,
		TargetPrice:    dec.TargetPrice,
		FusionType:     string(dec.FusionType),
		Reason:         dec.Reason,
		GateNotes:      datatypes.JSON(gateNotes),
		Contributing:   datatypes.JSON(contributing),
		Weights:        datatypes.JSON(weights),
		CreatedAtUnix:  dec.CreatedAt.UnixMilli(),
	}
}

func fusionDecisionModelToRecord(m fusionDecisionModel) ArchivedDecision {
	var gateNotes []string
	if len(m.GateNotes) > 0 {
		_ = json.Unmarshal(m.GateNotes, &gateNotes)
	}
	return ArchivedDecision{
		TraceID:        m.TraceID,
		Symbol:         m.Symbol,
		Direction:      m.Direction,
		Confidence:     m.Confidence,
		PositionWeight: m.PositionWeight,
		StopPrice:      m.StopPrice,
		TargetPrice:    m.TargetPrice,
		FusionType:     m.FusionType,
		Reason:         m.Reason,
		GateNotes:      gateNotes,
		Contributing:   json.RawMessage(m.Contributing),
		Weights:        json.RawMessage(m.Weights),
		Outcome:        m.Outcome,
		ClosedAt:       m.ClosedAtUnix,
		CreatedAt:      m.CreatedAtUnix,
	}
}
