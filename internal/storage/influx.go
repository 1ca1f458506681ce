package storage

import (
	"context"
	"fmt"
	"time"

	"hpc-job-metrics/internal/model"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const influxMeasurement = "job_metrics"

// InfluxStore implements Store backed by InfluxDB v2.
type InfluxStore struct {
	client influxdb2.Client
	org    string
	bucket string
	wapi   api.WriteAPIBlocking
	qapi   api.QueryAPI
}

// NewInfluxStore builds a Store using InfluxDB v2 client.
// url example: http://localhost:8086
func NewInfluxStore(url, org, bucket, token string) (*InfluxStore, error) {
	if url == "" || org == "" || bucket == "" || token == "" {
		return nil, fmt.Errorf("influx: missing url/org/bucket/token")
	}
	client := influxdb2.NewClient(url, token)
	return &InfluxStore{
		client: client,
		org:    org,
		bucket: bucket,
		wapi:   client.WriteAPIBlocking(org, bucket),
		qapi:   client.QueryAPI(org),
	}, nil
}

// SavePoints writes one influx point per sample.
// measurement: job_metrics, tags: cluster, job_id, source, fields: metrics map
func (s *InfluxStore) SavePoints(points []model.Point) error {
	if len(points) == 0 {
		return nil
	}
	batch := make([]*write.Point, 0, len(points))
	for _, p := range points {
		fields := make(map[string]interface{}, len(p.Metrics))
		for k, v := range p.Metrics {
			fields[k] = v
		}
		tags := map[string]string{"cluster": p.Job.Cluster, "job_id": p.Job.JobID, "source": p.Source}
		batch = append(batch, influxdb2.NewPoint(influxMeasurement, tags, fields, p.Timestamp))
	}
	if err := s.wapi.WritePoint(context.Background(), batch...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (s *InfluxStore) ListJobs() ([]model.JobRef, error) {
	q := fmt.Sprintf(`from(bucket: %q)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %q)
  |> group(columns: ["cluster", "job_id"])
  |> distinct(column: "source")`, s.bucket, influxMeasurement)
	res, err := s.qapi.Query(context.Background(), q)
	if err != nil {
		return nil, fmt.Errorf("influx list jobs: %w", err)
	}
	defer res.Close()
	seen := map[model.JobRef]bool{}
	out := []model.JobRef{}
	for res.Next() {
		cluster, _ := res.Record().ValueByKey("cluster").(string)
		jobID, _ := res.Record().ValueByKey("job_id").(string)
		if cluster == "" || jobID == "" {
			continue
		}
		j := model.JobRef{Cluster: cluster, JobID: jobID}
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx list jobs: %w", res.Err())
	}
	sortJobs(out)
	return out, nil
}

// timeLiteral returns a Flux time literal suitable for range(), e.g., time(v: "2026-01-27T00:00:00Z").
func timeLiteral(t time.Time) string {
	return fmt.Sprintf("time(v: %q)", t.UTC().Format(time.RFC3339))
}

func (s *InfluxStore) QueryPoints(job model.JobRef, source string, start, end *time.Time) ([]model.Point, error) {
	startExpr := "0"
	if start != nil {
		startExpr = timeLiteral(*start)
	}
	stopExpr := ""
	if end != nil {
		// range() stop is exclusive
		stopExpr = ", stop: " + timeLiteral(end.Add(time.Second))
	}
	// Pivot fields so each timestamp becomes one row with all metric columns
	q := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s%s)
  |> filter(fn: (r) => r._measurement == %q and r.cluster == %q and r.job_id == %q and r.source == %q)
  |> pivot(rowKey:["_time"], columnKey:["_field"], valueColumn:"_value")
  |> group()
  |> sort(columns: ["_time"], desc: false)
`, s.bucket, startExpr, stopExpr, influxMeasurement, job.Cluster, job.JobID, source)
	res, err := s.qapi.Query(context.Background(), q)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w; flux=%s", err, q)
	}
	defer res.Close()
	var out []model.Point
	for res.Next() {
		rec := res.Record()
		metrics := map[string]float64{}
		for k, v := range rec.Values() {
			switch k {
			case "_time", "_start", "_stop", "_measurement", "result", "table", "cluster", "job_id", "source":
				continue
			}
			switch val := v.(type) {
			case float64:
				metrics[k] = val
			case int64:
				metrics[k] = float64(val)
			case uint64:
				metrics[k] = float64(val)
			}
		}
		out = append(out, model.Point{Job: job, Source: source, Timestamp: rec.Time().UTC(), Metrics: metrics})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	return out, nil
}

func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}
