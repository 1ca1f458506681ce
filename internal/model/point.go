package model

import "time"

// JobRef identifies a job on a cluster.
type JobRef struct {
	Cluster string `json:"cluster"`
	JobID   string `json:"job_id"`
}

func (j JobRef) String() string { return j.Cluster + "/" + j.JobID }

// Point is one timestamped sample of all metrics an endpoint reports for a job.
type Point struct {
	Job       JobRef             `json:"job"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}
