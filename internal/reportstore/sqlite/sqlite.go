// Package sqlite stores analysis reports in an embedded SQLite database.
// Meant for local development where no DynamoDB table is available; TTL
// expiry is applied lazily on access.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_reports (
	report_id  TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	ttl        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_analysis_reports_user ON analysis_reports(user_id, created_at DESC);
`

// Store implements reportstore.Store on a local SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the parent directory and database file if needed and applies
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create report db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open report db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply report schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

var _ reportstore.Store = (*Store)(nil)

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) expire(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_reports WHERE ttl > 0 AND ttl <= ?`, s.now().Unix())
	return err
}

// Put writes or replaces a report.
func (s *Store) Put(ctx context.Context, report *model.AnalysisReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_reports (report_id, user_id, status, payload, created_at, ttl)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			ttl = excluded.ttl`,
		report.ReportID, report.UserID, string(report.Status), string(payload),
		report.CreatedAt.Unix(), report.TTL)
	if err != nil {
		return fmt.Errorf("put report %s: %w", report.ReportID, err)
	}
	return nil
}

// Get fetches a live report by id.
func (s *Store) Get(ctx context.Context, reportID string) (*model.AnalysisReport, error) {
	if err := s.expire(ctx); err != nil {
		return nil, fmt.Errorf("expire reports: %w", err)
	}
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM analysis_reports WHERE report_id = ?`, reportID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reportstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	var report model.AnalysisReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", reportID, err)
	}
	return &report, nil
}

// ListByUser returns the user's live reports newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.AnalysisReport, error) {
	if err := s.expire(ctx); err != nil {
		return nil, fmt.Errorf("expire reports: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM analysis_reports WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports for user %s: %w", userID, err)
	}
	defer rows.Close()
	var out []model.AnalysisReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var report model.AnalysisReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

// Delete removes a report. Deleting an absent report is not an error.
func (s *Store) Delete(ctx context.Context, reportID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_reports WHERE report_id = ?`, reportID); err != nil {
		return fmt.Errorf("delete report %s: %w", reportID, err)
	}
	return nil
}
