package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hpc-job-metrics/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store backed by a single table with JSON metrics.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and initializes) an SQLite database.
// Example DSN: file:jobmetrics.db?_pragma=busy_timeout(5000)
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS points (
  cluster TEXT NOT NULL,
  job_id TEXT NOT NULL,
  source TEXT NOT NULL,
  ts INTEGER NOT NULL,
  metrics TEXT NOT NULL,
  PRIMARY KEY (cluster, job_id, source, ts)
);
`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SavePoints writes all points in one transaction. A point at an existing timestamp replaces it.
func (s *SQLiteStore) SavePoints(points []model.Point) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO points(cluster, job_id, source, ts, metrics) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range points {
		b, err := json.Marshal(p.Metrics)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal metrics: %w", err)
		}
		if _, err := stmt.Exec(p.Job.Cluster, p.Job.JobID, p.Source, p.Timestamp.Unix(), string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListJobs() ([]model.JobRef, error) {
	rows, err := s.db.Query(`SELECT DISTINCT cluster, job_id FROM points ORDER BY cluster, job_id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	out := []model.JobRef{}
	for rows.Next() {
		var j model.JobRef
		if err := rows.Scan(&j.Cluster, &j.JobID); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) QueryPoints(job model.JobRef, source string, start, end *time.Time) ([]model.Point, error) {
	q := `SELECT ts, metrics FROM points WHERE cluster = ? AND job_id = ? AND source = ?`
	args := []any{job.Cluster, job.JobID, source}
	if start != nil {
		q += ` AND ts >= ?`
		args = append(args, start.Unix())
	}
	if end != nil {
		q += ` AND ts <= ?`
		args = append(args, end.Unix())
	}
	q += ` ORDER BY ts ASC`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()
	var out []model.Point
	for rows.Next() {
		var ts int64
		var mjson string
		if err := rows.Scan(&ts, &mjson); err != nil {
			return nil, err
		}
		m := map[string]float64{}
		if err := json.Unmarshal([]byte(mjson), &m); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		out = append(out, model.Point{Job: job, Source: source, Timestamp: time.Unix(ts, 0).UTC(), Metrics: m})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
