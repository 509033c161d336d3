package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store keeps an append-only trail of every fusion cycle: the signals that
// entered, the decision that came out and the gate verdicts in between. It is
// a separate database from the state store so audit growth never contends
// with the hot path.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Entry is one audit record. Detail carries stage-specific JSON.
type Entry struct {
	ID        int64           `json:"id"`
	TraceID   string          `json:"trace_id"`
	Symbol    string          `json:"symbol"`
	Stage     string          `json:"stage"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

// Audit stages.
const (
	StageSignal   = "signal"
	StageDecision = "decision"
	StageGate     = "gate"
	StageOutcome  = "outcome"
)

// NewStore opens the audit database at path.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fusion_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT,
			symbol TEXT NOT NULL,
			stage TEXT NOT NULL,
			detail TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fusion_audit_trace ON fusion_audit(trace_id);`,
		`CREATE INDEX IF NOT EXISTS idx_fusion_audit_symbol ON fusion_audit(symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_fusion_audit_created ON fusion_audit(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append writes one entry. detail may be any JSON-marshalable value.
func (s *Store) Append(ctx context.Context, traceID, symbol, stage string, detail any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("audit log store closed")
	}
	var detailJSON []byte
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("audit detail marshal failed: %w", err)
		}
		detailJSON = b
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fusion_audit (trace_id, symbol, stage, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(traceID),
		strings.ToUpper(strings.TrimSpace(symbol)),
		stage,
		string(detailJSON),
		time.Now().UnixMilli(),
	)
	return err
}

// ListByTrace returns all entries for one trace id, oldest first.
func (s *Store) ListByTrace(ctx context.Context, traceID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("audit log store closed")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, symbol, stage, detail, created_at
		 FROM fusion_audit WHERE trace_id = ? ORDER BY id ASC`,
		strings.TrimSpace(traceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the newest entries, optionally filtered by symbol.
func (s *Store) Recent(ctx context.Context, symbol string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("audit log store closed")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, trace_id, symbol, stage, detail, created_at FROM fusion_audit`
	args := []any{}
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query += ` WHERE symbol = ?`
		args = append(args, sym)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Symbol, &e.Stage, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		if detail.Valid && detail.String != "" {
			e.Detail = json.RawMessage(detail.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
