package storage

import (
	"sort"
	"sync"
	"time"

	"hpc-job-metrics/internal/model"
)

type seriesKey struct {
	job    model.JobRef
	source string
}

// MemoryStore is a threadsafe in-memory implementation of Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[seriesKey][]model.Point // ordered by time asc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[seriesKey][]model.Point)}
}

// SavePoints keeps each series ordered by time. A point at an existing timestamp replaces it.
func (m *MemoryStore) SavePoints(points []model.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		k := seriesKey{p.Job, p.Source}
		s := m.data[k]
		i := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(p.Timestamp) })
		if i < len(s) && s[i].Timestamp.Equal(p.Timestamp) {
			s[i] = p
			continue
		}
		s = append(s, model.Point{})
		copy(s[i+1:], s[i:])
		s[i] = p
		m.data[k] = s
	}
	return nil
}

func (m *MemoryStore) ListJobs() ([]model.JobRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[model.JobRef]bool{}
	out := []model.JobRef{}
	for k := range m.data {
		if !seen[k.job] {
			seen[k.job] = true
			out = append(out, k.job)
		}
	}
	sortJobs(out)
	return out, nil
}

func (m *MemoryStore) QueryPoints(job model.JobRef, source string, start, end *time.Time) ([]model.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.data[seriesKey{job, source}]
	if start == nil && end == nil {
		out := make([]model.Point, len(s))
		copy(out, s)
		return out, nil
	}
	var out []model.Point
	for _, p := range s {
		if inWindow(p.Timestamp, start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func sortJobs(jobs []model.JobRef) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Cluster != jobs[j].Cluster {
			return jobs[i].Cluster < jobs[j].Cluster
		}
		return jobs[i].JobID < jobs[j].JobID
	})
}
