package storage

import (
	"path/filepath"
	"testing"
	"time"

	"hpc-job-metrics/internal/config"
	"hpc-job-metrics/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configWithSQLite(dsn string) config.ArchiveConfig {
	return config.ArchiveConfig{SQLite: dsn}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "archive.db")
	st, err := Open(configWithSQLite(dsn))
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, "sqlite", Kind(st))

	t0 := time.Unix(1000, 0).UTC()
	require.NoError(t, st.SavePoints([]model.Point{
		pt(jobA, "capstor/global", t0.Add(10*time.Second), 2),
		pt(jobA, "capstor/global", t0, 1),
		pt(jobB, "gpu/temperature", t0, 40),
	}))
	// same timestamp replaces
	require.NoError(t, st.SavePoints([]model.Point{pt(jobA, "capstor/global", t0, 5)}))

	out, err := st.QueryPoints(jobA, "capstor/global", nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, t0, out[0].Timestamp)
	assert.Equal(t, 5.0, out[0].Metrics["read_bandwidth"])
	assert.Equal(t, jobA, out[0].Job)
	assert.Equal(t, "capstor/global", out[1].Source)

	start := t0.Add(5 * time.Second)
	out, err = st.QueryPoints(jobA, "capstor/global", &start, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2.0, out[0].Metrics["read_bandwidth"])

	jobs, err := st.ListJobs()
	require.NoError(t, err)
	assert.Equal(t, []model.JobRef{jobB, jobA}, jobs)
}

func TestNewInfluxStore_RequiresSettings(t *testing.T) {
	_, err := NewInfluxStore("http://localhost:8086", "", "b", "t")
	require.Error(t, err)
}
