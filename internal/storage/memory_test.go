package storage

import (
	"testing"
	"time"

	"hpc-job-metrics/internal/model"
)

var (
	jobA = model.JobRef{Cluster: "daint", JobID: "1"}
	jobB = model.JobRef{Cluster: "alps", JobID: "7"}
)

func pt(job model.JobRef, source string, ts time.Time, v float64) model.Point {
	return model.Point{Job: job, Source: source, Timestamp: ts, Metrics: map[string]float64{"read_bandwidth": v}}
}

func TestMemoryStore_SaveAndQueryOrder(t *testing.T) {
	st := NewMemoryStore()
	t0 := time.Now()
	in := []model.Point{
		pt(jobA, "capstor/global", t0.Add(2*time.Second), 2),
		pt(jobA, "capstor/global", t0.Add(1*time.Second), 1),
		pt(jobA, "capstor/global", t0.Add(3*time.Second), 3),
		pt(jobA, "gpu/temperature", t0, 50),
	}
	if err := st.SavePoints(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := st.QueryPoints(jobA, "capstor/global", nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("want 3 got %d", len(out))
	}
	if !out[0].Timestamp.Before(out[1].Timestamp) || !out[1].Timestamp.Before(out[2].Timestamp) {
		t.Fatalf("not ordered ascending by time: %#v", out)
	}
	if out[0].Metrics["read_bandwidth"] != 1 || out[2].Metrics["read_bandwidth"] != 3 {
		t.Fatalf("unexpected values: %#v", out)
	}
}

func TestMemoryStore_SameTimestampReplaces(t *testing.T) {
	st := NewMemoryStore()
	t0 := time.Unix(1000, 0).UTC()
	if err := st.SavePoints([]model.Point{pt(jobA, "capstor/global", t0, 1), pt(jobA, "capstor/global", t0.Add(time.Second), 2)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.SavePoints([]model.Point{pt(jobA, "capstor/global", t0, 5)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := st.QueryPoints(jobA, "capstor/global", nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 got %d", len(out))
	}
	if !out[0].Timestamp.Equal(t0) || out[0].Metrics["read_bandwidth"] != 5 {
		t.Fatalf("point at %s not replaced: %#v", t0, out[0])
	}
}

func TestMemoryStore_ListJobs(t *testing.T) {
	st := NewMemoryStore()
	_ = st.SavePoints([]model.Point{
		pt(jobA, "capstor/global", time.Now(), 1),
		pt(jobA, "gpu/temperature", time.Now(), 1),
		pt(jobB, "capstor/global", time.Now(), 1),
	})
	jobs, err := st.ListJobs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0] != jobB || jobs[1] != jobA {
		t.Fatalf("unexpected jobs: %#v", jobs)
	}
}

func TestMemoryStore_QueryWindow(t *testing.T) {
	st := NewMemoryStore()
	t0 := time.Now()
	for i := 0; i < 5; i++ {
		_ = st.SavePoints([]model.Point{pt(jobA, "capstor/global", t0.Add(time.Duration(i)*time.Second), float64(i))})
	}
	start := t0.Add(1 * time.Second)
	end := t0.Add(3 * time.Second)
	out, err := st.QueryPoints(jobA, "capstor/global", &start, &end)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("want 3 got %d", len(out))
	}
	none, err := st.QueryPoints(jobB, "capstor/global", nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("want no points for unknown job, got %d", len(none))
	}
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	st, err := Open(configWithSQLite(""))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if kind := Kind(st); kind != "memory" {
		t.Fatalf("want memory store, got %s", kind)
	}
}
