package main

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"hpc-job-metrics/internal/api"
	"hpc-job-metrics/internal/model"
	"hpc-job-metrics/internal/storage"
)

const (
	seedNodes       = 4
	seedGPUsPerNode = 4
)

// parseJobRef parses "cluster/jobid".
func parseJobRef(s string) (model.JobRef, error) {
	cluster, id, ok := strings.Cut(s, "/")
	if !ok || cluster == "" || id == "" || strings.Contains(id, "/") {
		return model.JobRef{}, fmt.Errorf("job %q: want cluster/jobid", s)
	}
	return model.JobRef{Cluster: cluster, JobID: id}, nil
}

// seedJob stores synthetic capstor and GPU temperature series for job, one sample
// per step starting at start. The data depends only on job, start, samples and step.
func seedJob(store storage.Store, job model.JobRef, start time.Time, samples int, step time.Duration) error {
	if samples <= 0 {
		return fmt.Errorf("seed %s: samples must be positive", job)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(job.String()))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	capstor := &api.CapstorGlobal{}
	gpus := &api.GPUTemperature{Nodes: map[string][]api.GPUSeries{}}
	nodes := make([]string, seedNodes)
	for n := range nodes {
		nodes[n] = fmt.Sprintf("nid%06d", 1000+n)
		for g := 0; g < seedGPUsPerNode; g++ {
			gpus.Nodes[nodes[n]] = append(gpus.Nodes[nodes[n]], api.GPUSeries{GPUID: g, Unit: api.UnitTemperature})
		}
	}

	for i := 0; i < samples; i++ {
		ts := start.Add(time.Duration(i) * step).Unix()
		phase := 2 * math.Pi * float64(i) / float64(samples)
		capstor.Time = append(capstor.Time, ts)
		capstor.ReadBandwidth = append(capstor.ReadBandwidth, 2e9*(1+math.Sin(phase))+rng.Float64()*1e8)
		capstor.WriteBandwidth = append(capstor.WriteBandwidth, 1e9*(1+math.Cos(phase))+rng.Float64()*1e8)
		capstor.ReadIOPS = append(capstor.ReadIOPS, 4000*(1+math.Sin(phase))+rng.Float64()*200)
		capstor.WriteIOPS = append(capstor.WriteIOPS, 2500*(1+math.Cos(phase))+rng.Float64()*200)
		capstor.MetadataOps = append(capstor.MetadataOps, 800+rng.Float64()*400)

		buckets := make([]int64, api.LoadBuckets)
		remaining := int64(seedNodes * 8)
		for b := api.LoadBuckets - 1; b > 0; b-- {
			buckets[b] = rng.Int63n(remaining/int64(b+1) + 1)
			remaining -= buckets[b]
		}
		buckets[0] = remaining
		capstor.NodesLoadavg = append(capstor.NodesLoadavg, buckets)

		gpus.Time = append(gpus.Time, ts)
		for _, node := range nodes {
			series := gpus.Nodes[node]
			for g := range series {
				base := 45 + 5*float64(g)
				series[g].Temperature = append(series[g].Temperature, base+20*math.Abs(math.Sin(phase))+rng.Float64()*2)
			}
		}
	}

	if err := store.SavePoints(capstor.Points(job)); err != nil {
		return fmt.Errorf("seed %s: %w", job, err)
	}
	if err := store.SavePoints(gpus.Points(job)); err != nil {
		return fmt.Errorf("seed %s: %w", job, err)
	}
	return nil
}
