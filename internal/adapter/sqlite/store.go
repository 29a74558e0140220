// Package sqlite archives run summaries in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/hydrometric-etl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS run_summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	station TEXT NOT NULL,
	variable TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	peak_label TEXT NOT NULL,
	peak_return_period REAL,
	summary TEXT NOT NULL,
	UNIQUE(station, variable, generated_at)
);
CREATE INDEX IF NOT EXISTS idx_station_time ON run_summaries(station, generated_at);`

// Store is the summary archive. It implements pipeline.Sink.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name implements pipeline.Sink.
func (s *Store) Name() string { return "archive" }

// Save implements pipeline.Sink by archiving the report summary. Saving the
// same station, variable and timestamp twice replaces the earlier row.
func (s *Store) Save(ctx context.Context, r domain.StationReport) error {
	sum := r.Summary()
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("serialize summary: %w", err)
	}

	var rp *float64
	if sum.PeakLabel.Kind == domain.LabelExceeds {
		rp = &sum.PeakPeriod
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_summaries(station, variable, generated_at, peak_label, peak_return_period, summary)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(station, variable, generated_at) DO UPDATE SET
		peak_label=excluded.peak_label,
		peak_return_period=excluded.peak_return_period,
		summary=excluded.summary`,
		sum.Station, string(sum.Variable), sum.GeneratedAt.UnixNano(), sum.PeakLabel.String(), rp, string(data))
	if err != nil {
		return fmt.Errorf("archive summary for %s: %w", sum.Station, err)
	}
	return nil
}

// Latest returns the most recent summary for a station, or
// domain.ErrNotArchived.
func (s *Store) Latest(ctx context.Context, station string) (domain.ReportSummary, error) {
	out, err := s.History(ctx, station, 1)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	if len(out) == 0 {
		return domain.ReportSummary{}, fmt.Errorf("station %s: %w", station, domain.ErrNotArchived)
	}
	return out[0], nil
}

// History returns up to limit summaries for a station, newest first.
func (s *Store) History(ctx context.Context, station string, limit int) ([]domain.ReportSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT summary FROM run_summaries
		WHERE station = ?
		ORDER BY generated_at DESC, id DESC
		LIMIT ?`, station, limit)
	if err != nil {
		return nil, fmt.Errorf("query summaries for %s: %w", station, err)
	}
	defer rows.Close()

	var out []domain.ReportSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		var sum domain.ReportSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Stations lists every archived station code, sorted.
func (s *Store) Stations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT station FROM run_summaries ORDER BY station`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		out = append(out, code)
	}
	return out, rows.Err()
}
