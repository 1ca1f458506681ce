// Command metrics-mock serves the job metrics API from an archive for local
// development and tests.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hpc-job-metrics/internal/config"
	"hpc-job-metrics/internal/logging"
	"hpc-job-metrics/internal/storage"
)

type seedFlags []string

func (s *seedFlags) String() string     { return strings.Join(*s, ",") }
func (s *seedFlags) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	metricsAddr := flag.String("metrics_addr", ":9103", "Prometheus metrics listen address")
	clientID := flag.String("client_id", "jobplot", "accepted OAuth2 client id")
	clientSecret := flag.String("client_secret", "", "accepted OAuth2 client secret (or "+config.EnvClientSecret+")")
	timezone := flag.String("timezone", config.DefaultTimezone, "timezone of the from/to parameters")
	sqliteDSN := flag.String("sqlite", "", "SQLite archive DSN, e.g. file:archive.db")
	influxURL := flag.String("influx_url", "", "InfluxDB URL, e.g. http://localhost:8086")
	influxOrg := flag.String("influx_org", "", "InfluxDB organization")
	influxBucket := flag.String("influx_bucket", "", "InfluxDB bucket")
	influxToken := flag.String("influx_token", "", "InfluxDB API token")
	logLevel := flag.String("log_level", "info", "log level")
	logFile := flag.String("log_file", "", "also write JSON logs to this rotated file")
	seedSamples := flag.Int("seed_samples", 120, "samples per seeded job")
	maxBodySize := flag.Int64("max_body_size", defaultMaxBodySize, "maximum request body size in bytes")
	seedStep := flag.Duration("seed_step", time.Minute, "interval between seeded samples")
	var seeds seedFlags
	flag.Var(&seeds, "seed", "seed synthetic data for cluster/jobid (repeatable)")
	flag.Parse()

	log, err := logging.New(logging.Options{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics-mock: %v\n", err)
		os.Exit(2)
	}
	log = log.With().Str("service", "metrics-mock").Logger()

	if v, ok := os.LookupEnv(config.EnvClientSecret); ok && *clientSecret == "" {
		*clientSecret = v
	}
	if *clientSecret == "" {
		log.Fatal().Msg("client secret is required")
	}
	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("timezone")
	}

	store, err := storage.Open(config.ArchiveConfig{
		SQLite: *sqliteDSN,
		Influx: config.InfluxConfig{URL: *influxURL, Org: *influxOrg, Bucket: *influxBucket, Token: *influxToken},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()
	log.Info().Str("store", storage.Kind(store)).Msg("store opened")

	seedStart := time.Now().Add(-time.Duration(*seedSamples) * *seedStep).Truncate(time.Minute)
	for _, s := range seeds {
		job, err := parseJobRef(s)
		if err != nil {
			log.Fatal().Err(err).Msg("seed")
		}
		if err := seedJob(store, job, seedStart, *seedSamples, *seedStep); err != nil {
			log.Fatal().Err(err).Msg("seed")
		}
		log.Info().Str("job", job.String()).Int("samples", *seedSamples).Msg("seeded")
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info().Str("addr", *metricsAddr).Msg("metrics listening")
		_ = http.ListenAndServe(*metricsAddr, metricsMux)
	}()

	handler := newServer(store, serverOptions{ClientID: *clientID, ClientSecret: *clientSecret, Location: loc, Logger: log, MaxBodySize: *maxBodySize})
	server := &http.Server{Addr: *addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", *addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
