package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobmetrics", Subsystem: "client", Name: "requests_total", Help: "Requests issued to the token and metrics endpoints.",
	}, []string{"endpoint", "code"})
	metricRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jobmetrics", Subsystem: "client", Name: "request_duration_seconds", Help: "Latency of token and metrics requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	metricSchemaErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobmetrics", Subsystem: "client", Name: "schema_errors_total", Help: "Responses rejected by schema validation.",
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(metricRequests, metricRequestDuration, metricSchemaErrors)
}

// observe records one request. code 0 means the request failed before a response arrived.
func observe(endpoint string, code int, start time.Time) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	metricRequests.WithLabelValues(endpoint, label).Inc()
	metricRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
