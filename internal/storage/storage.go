package storage

import (
	"time"

	"hpc-job-metrics/internal/config"
	"hpc-job-metrics/internal/model"
)

// Store persists job metric points.
type Store interface {
	SavePoints(points []model.Point) error
	ListJobs() ([]model.JobRef, error)
	// QueryPoints returns the points of one source for job, ascending by time,
	// restricted to [start, end] when given.
	QueryPoints(job model.JobRef, source string, start, end *time.Time) ([]model.Point, error)
	Close() error
}

// Open prefers InfluxDB when fully configured, then SQLite, then an in-memory store.
func Open(cfg config.ArchiveConfig) (Store, error) {
	if cfg.Influx.Enabled() {
		return NewInfluxStore(cfg.Influx.URL, cfg.Influx.Org, cfg.Influx.Bucket, cfg.Influx.Token)
	}
	if cfg.SQLite != "" {
		return NewSQLiteStore(cfg.SQLite)
	}
	return NewMemoryStore(), nil
}

// Kind names the backend of s for log lines.
func Kind(s Store) string {
	switch s.(type) {
	case *InfluxStore:
		return "influx"
	case *SQLiteStore:
		return "sqlite"
	case *MemoryStore:
		return "memory"
	}
	return "unknown"
}

func inWindow(ts time.Time, start, end *time.Time) bool {
	if start != nil && ts.Before(*start) {
		return false
	}
	if end != nil && ts.After(*end) {
		return false
	}
	return true
}
