package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"adsio/internal/analysis"
)

// Store wraps SQLite access for adverse event reports, agent memories, and
// pipeline runs.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			safetyreportid TEXT,
			receivedate TEXT,
			drug_name TEXT,
			reaction TEXT,
			raw_json TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_drug_name ON reports(drug_name);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_receivedate ON reports(receivedate);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_safetyreportid ON reports(safetyreportid);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity TEXT NOT NULL,
			insight_type TEXT NOT NULL,
			insight_text TEXT NOT NULL,
			confidence REAL DEFAULT 0.5,
			metadata TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_entity ON memories(entity);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(insight_type);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			drug TEXT,
			fetch_limit INTEGER,
			status TEXT,
			idempotency_key TEXT,
			signals INTEGER DEFAULT 0,
			report_path TEXT,
			last_error TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_idem ON runs(idempotency_key);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Report is one flattened adverse event row.
type Report struct {
	ID             int64  `json:"id"`
	SafetyReportID string `json:"safetyreportid"`
	ReceiveDate    string `json:"receivedate"`
	DrugName       string `json:"drug_name"`
	Reaction       string `json:"reaction"`
	RawJSON        string `json:"-"`
}

// StoreReports inserts flattened report rows; a row that fails to insert is
// skipped, matching the upstream tolerance for partial data. Returns the
// number inserted.
func (s *Store) StoreReports(ctx context.Context, reports []Report) (int, error) {
	if len(reports) == 0 {
		return 0, nil
	}
	stmt, err := s.db.PrepareContext(ctx, `INSERT INTO reports
		(safetyreportid, receivedate, drug_name, reaction, raw_json)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	inserted := 0
	for _, r := range reports {
		if _, err := stmt.ExecContext(ctx, r.SafetyReportID, r.ReceiveDate, r.DrugName, r.Reaction, r.RawJSON); err != nil {
			continue
		}
		inserted++
	}
	return inserted, nil
}

// LoadReports returns the engine-facing view of all reports whose drug name
// contains the given name (LIKE match; ingest stores mixed-case product
// names).
func (s *Store) LoadReports(ctx context.Context, drugName string) ([]analysis.Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT safetyreportid, receivedate, reaction
		FROM reports WHERE drug_name LIKE ?`, "%"+drugName+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []analysis.Report
	for rows.Next() {
		var rep analysis.Report
		var id, date, reaction sql.NullString
		if err := rows.Scan(&id, &date, &reaction); err != nil {
			return nil, err
		}
		rep.SafetyReportID = id.String
		rep.ReceiveDate = date.String
		rep.Reactions = reaction.String
		out = append(out, rep)
	}
	return out, rows.Err()
}

// SampleReport is a short illustrative excerpt used for LLM context.
type SampleReport struct {
	SafetyReportID string `json:"safetyreportid"`
	Reactions      string `json:"reactions"`
}

// SampleReports returns recent report excerpts for a drug.
func (s *Store) SampleReports(ctx context.Context, drugName string, limit int) ([]SampleReport, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx, `SELECT safetyreportid, reaction FROM reports
		WHERE drug_name LIKE ? ORDER BY id DESC LIMIT ?`, "%"+drugName+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SampleReport
	for rows.Next() {
		var sr SampleReport
		var id, reaction sql.NullString
		if err := rows.Scan(&id, &reaction); err != nil {
			return nil, err
		}
		sr.SafetyReportID = id.String
		sr.Reactions = reaction.String
		out = append(out, sr)
	}
	return out, rows.Err()
}

// ListDrugs returns the distinct drug names present in the reports table.
func (s *Store) ListDrugs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT drug_name FROM reports
		WHERE drug_name IS NOT NULL AND drug_name != '' ORDER BY drug_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Memory is one stored insight about an entity.
type Memory struct {
	ID          int64     `json:"id"`
	Entity      string    `json:"entity"`
	InsightType string    `json:"insight_type"`
	InsightText string    `json:"insight_text"`
	Confidence  float64   `json:"confidence"`
	Metadata    *string   `json:"metadata"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) InsertMemory(ctx context.Context, m Memory) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO memories
		(entity, insight_type, insight_text, confidence, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Entity, m.InsightType, m.InsightText, m.Confidence, m.Metadata, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Memories returns stored insights for an entity, newest and most confident
// first. insightType filters when non-empty.
func (s *Store) Memories(ctx context.Context, entity, insightType string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, entity, insight_type, insight_text, confidence, metadata, created_at
		FROM memories WHERE entity = ?`
	args := []any{entity}
	if insightType != "" {
		query += ` AND insight_type = ?`
		args = append(args, insightType)
	}
	query += ` ORDER BY created_at DESC, confidence DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Memory
	for rows.Next() {
		var m Memory
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.Entity, &m.InsightType, &m.InsightText, &m.Confidence, &meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			m.Metadata = &meta.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Run statuses.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is a pipeline execution record.
type Run struct {
	ID             int64      `json:"id"`
	Drug           string     `json:"drug"`
	FetchLimit     int        `json:"fetch_limit"`
	Status         string     `json:"status"`
	IdempotencyKey string     `json:"idempotency_key"`
	Signals        int        `json:"signals"`
	ReportPath     string     `json:"report_path"`
	LastError      *string    `json:"last_error"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
}

var ErrConflict = errors.New("idempotent run already exists")

// InsertRunIdempotent records a run unless one with the same idempotency key
// exists, in which case the existing run is returned with ErrConflict.
func (s *Store) InsertRunIdempotent(ctx context.Context, r *Run) (*Run, error) {
	existing, err := s.fetchRunByIdempotency(ctx, r.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrConflict
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(drug, fetch_limit, status, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Drug, r.FetchLimit, r.Status, r.IdempotencyKey, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	return r, nil
}

func (s *Store) fetchRunByIdempotency(ctx context.Context, key string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, drug, fetch_limit, status, idempotency_key,
		signals, report_path, last_error, created_at, updated_at, started_at, finished_at
		FROM runs WHERE idempotency_key = ?`, key)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *Store) MarkRunStarted(ctx context.Context, id int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status=?, started_at=?, updated_at=? WHERE id=?`,
		RunRunning, ts, ts, id)
	return err
}

// MarkRunFinished records the terminal state of a run.
func (s *Store) MarkRunFinished(ctx context.Context, id int64, status string, signals int, reportPath string, errMsg *string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status=?, signals=?, report_path=?, last_error=?, finished_at=?, updated_at=? WHERE id=?`,
		status, signals, reportPath, errMsg, ts, ts, id)
	return err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, drug, fetch_limit, status, idempotency_key,
		signals, report_path, last_error, created_at, updated_at, started_at, finished_at
		FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run for a drug, or nil.
func (s *Store) LatestRun(ctx context.Context, drug string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, drug, fetch_limit, status, idempotency_key,
		signals, report_path, last_error, created_at, updated_at, started_at, finished_at
		FROM runs WHERE drug = ? ORDER BY created_at DESC, id DESC LIMIT 1`, drug)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var r Run
	var reportPath, lastErr sql.NullString
	var started, finished sql.NullTime
	err := scan(&r.ID, &r.Drug, &r.FetchLimit, &r.Status, &r.IdempotencyKey,
		&r.Signals, &reportPath, &lastErr, &r.CreatedAt, &r.UpdatedAt, &started, &finished)
	if err != nil {
		return nil, err
	}
	r.ReportPath = reportPath.String
	if lastErr.Valid {
		r.LastError = &lastErr.String
	}
	if started.Valid {
		r.StartedAt = &started.Time
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// Health returns err if the DB is not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
