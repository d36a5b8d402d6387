// Package runlog persists automation pass reports so run history
// survives restarts and stays queryable over HTTP.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"vigil/internal/automation"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at_unix INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	market_open INTEGER NOT NULL,
	total_triggered INTEGER NOT NULL,
	error_count INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	report_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_reports_started ON run_reports(started_at_unix);
`

// Store is a SQLite-backed automation.Recorder.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run log dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate run log: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) RecordRun(ctx context.Context, rep automation.Report) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_reports
			(started_at_unix, skipped, reason, market_open, total_triggered, error_count, duration_ms, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.StartedAt.Unix(), boolToInt(rep.Skipped), rep.Reason, boolToInt(rep.MarketOpen),
		rep.TotalTriggered, len(rep.TotalErrors), rep.DurationMs, string(raw))
	if err != nil {
		return fmt.Errorf("insert run report: %w", err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]automation.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_json FROM run_reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query run reports: %w", err)
	}
	defer rows.Close()

	var out []automation.Report
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run report: %w", err)
		}
		var rep automation.Report
		if err := json.Unmarshal([]byte(raw), &rep); err != nil {
			return nil, fmt.Errorf("decode run report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
