// Package history keeps a per-cluster record of audit runs in SQLite and
// derives the score trend against the previous run.
package history

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

	"kube-health-audit/internal/model"
	"kube-health-audit/internal/runner"
	"kube-health-audit/internal/trend"
)

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	cluster TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	score REAL NOT NULL,
	tier TEXT NOT NULL,
	domains TEXT NOT NULL,
	critical_findings INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_cluster_ts ON runs (cluster, timestamp);`

// tsLayout is fixed-width so text ordering in SQL matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one stored run.
type Entry struct {
	ID               string
	Cluster          string
	Timestamp        time.Time
	Score            float64
	Tier             model.HealthTier
	Domains          map[string]float64
	CriticalFindings int
}

// Store persists runs. Keep bounds the runs retained per cluster; zero keeps
// everything.
type Store struct {
	db   *sql.DB
	keep int
}

// Open creates (or opens) the database at path.
func Open(path string, keep int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One writer at a time; sqlite serialises anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db, keep: keep}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record stores rep and returns the trend against the cluster's previous run.
func (s *Store) Record(ctx context.Context, rep *runner.Report) (trend.Trend, error) {
	prev, err := s.Latest(ctx, rep.ClusterName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return trend.Trend{}, err
	}

	domains, err := json.Marshal(rep.Summary.ScoreBreakdown)
	if err != nil {
		return trend.Trend{}, fmt.Errorf("history: encode domains: %w", err)
	}
	critical := 0
	for _, res := range rep.Results {
		for _, f := range res.Summary.Findings {
			if f.Severity == model.SeverityCritical {
				critical++
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trend.Trend{}, fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs
		(id, cluster, timestamp, score, tier, domains, critical_findings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.ClusterName, rep.Timestamp.UTC().Format(tsLayout),
		rep.OverallScore, string(rep.HealthTier), string(domains), critical,
	); err != nil {
		return trend.Trend{}, fmt.Errorf("history: insert run: %w", err)
	}
	if s.keep > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE cluster = ? AND id NOT IN (
			SELECT id FROM runs WHERE cluster = ? ORDER BY timestamp DESC LIMIT ?)`,
			rep.ClusterName, rep.ClusterName, s.keep,
		); err != nil {
			return trend.Trend{}, fmt.Errorf("history: prune: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return trend.Trend{}, fmt.Errorf("history: commit: %w", err)
	}

	if prev == nil {
		return trend.First(rep.OverallScore), nil
	}
	return trend.Compute(prev.Score, rep.OverallScore).
		WithDomains(prev.Domains, rep.Summary.ScoreBreakdown), nil
}

// Latest returns the most recent run of cluster, or sql.ErrNoRows.
func (s *Store) Latest(ctx context.Context, cluster string) (*Entry, error) {
	entries, err := s.Recent(ctx, cluster, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sql.ErrNoRows
	}
	return &entries[0], nil
}

// Recent returns up to limit runs of cluster, newest first.
func (s *Store) Recent(ctx context.Context, cluster string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, cluster, timestamp, score, tier, domains, critical_findings
		FROM runs WHERE cluster = ? ORDER BY timestamp DESC LIMIT ?`, cluster, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			ts, domains string
			tier        string
		)
		if err := rows.Scan(&e.ID, &e.Cluster, &ts, &e.Score, &tier, &domains, &e.CriticalFindings); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if t, err := time.Parse(tsLayout, ts); err == nil {
			e.Timestamp = t
		}
		e.Tier = model.HealthTier(tier)
		if err := json.Unmarshal([]byte(domains), &e.Domains); err != nil {
			return nil, fmt.Errorf("history: decode domains of run %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
