package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hpc-job-metrics/internal/api"
	"hpc-job-metrics/internal/config"
	"hpc-job-metrics/internal/logging"
	"hpc-job-metrics/internal/model"
)

type globalOptions struct {
	configPath  string
	cluster     string
	job         string
	from        string
	to          string
	logLevel    string
	pushgateway string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "jobplot",
		Short: "Plot the metrics of an HPC job",
		Long: `
jobplot authenticates against the job metrics service with OAuth2 client
credentials, fetches the metrics of one job and renders them as charts.
`,
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML configuration")
	f.StringVar(&opts.cluster, "cluster", "daint", "cluster the job ran on")
	f.StringVar(&opts.job, "job", "", "job id")
	f.StringVar(&opts.from, "from", "", "start of the window, "+api.WindowLayout+" in the configured timezone")
	f.StringVar(&opts.to, "to", "", "end of the window, "+api.WindowLayout+" in the configured timezone")
	f.StringVar(&opts.logLevel, "log-level", "", "log level, overrides the configuration")
	f.StringVar(&opts.pushgateway, "pushgateway", "", "push client metrics to this Prometheus Pushgateway URL")
	_ = cmd.MarkPersistentFlagRequired("job")

	cmd.AddCommand(newCapstorCmd(opts), newGPUCmd(opts), newReadoutCmd(opts))
	return cmd
}

// session is everything a subcommand needs after start-up: configuration,
// logger and an authenticated client.
type session struct {
	cfg    config.Config
	log    zerolog.Logger
	job    model.JobRef
	window api.Window
	client *api.Client
	opts   *globalOptions
}

// newSession loads the configuration and acquires a token. When only the token
// request fails, the session is still returned so its logger can report the error.
func newSession(cmd *cobra.Command, opts *globalOptions) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Console: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}
	log = log.With().Str("cmd", cmd.Name()).Logger()

	window, err := parseWindow(opts.from, opts.to, cfg.Location())
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		log:    log,
		job:    model.JobRef{Cluster: opts.cluster, JobID: opts.job},
		window: window,
		opts:   opts,
	}

	hc := api.NewHTTPClient(cfg.Timeout, cfg.RetryMax, log)
	token, err := api.NewTokenProvider(cfg.ClientID, cfg.ClientSecret, cfg.TokenURL, hc.StandardClient()).Token(cmd.Context())
	if err != nil {
		return s, fmt.Errorf("get token: %w", err)
	}
	log.Debug().Str("token_url", cfg.TokenURL).Msg("token acquired")
	s.client = api.NewClient(cfg.BaseURL, token, api.WithHTTPClient(hc), api.WithLogger(log))
	return s, nil
}

// finish pushes the client metrics when a Pushgateway is configured. Failures are logged only.
func (s *session) finish() {
	if s.opts.pushgateway == "" {
		return
	}
	err := push.New(s.opts.pushgateway, "jobplot").
		Gatherer(prometheus.DefaultGatherer).
		Grouping("cluster", s.job.Cluster).
		Grouping("jobid", s.job.JobID).
		Push()
	if err != nil {
		s.log.Warn().Err(err).Str("pushgateway", s.opts.pushgateway).Msg("push metrics failed")
		return
	}
	s.log.Debug().Str("pushgateway", s.opts.pushgateway).Msg("metrics pushed")
}

func parseWindow(from, to string, loc *time.Location) (api.Window, error) {
	var w api.Window
	var err error
	if from != "" {
		if w.From, err = time.ParseInLocation(api.WindowLayout, from, loc); err != nil {
			return api.Window{}, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if w.To, err = time.ParseInLocation(api.WindowLayout, to, loc); err != nil {
			return api.Window{}, fmt.Errorf("--to: %w", err)
		}
	}
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return api.Window{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return w, nil
}

func runWithSession(opts *globalOptions, fn func(ctx context.Context, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd, opts)
		if s != nil {
			defer s.finish()
		}
		if err != nil {
			var log zerolog.Logger
			if s != nil {
				log = s.log
			} else {
				log = startupLogger(cmd, opts)
			}
			log.Error().Err(err).Str("job", model.JobRef{Cluster: opts.cluster, JobID: opts.job}.String()).Msg("start-up failed")
			return err
		}
		if err := fn(cmd.Context(), s); err != nil {
			s.log.Error().Err(err).Str("job", s.job.String()).Msg("failed")
			return err
		}
		return nil
	}
}

// startupLogger logs failures that happen before the configured logger exists.
func startupLogger(cmd *cobra.Command, opts *globalOptions) zerolog.Logger {
	log, err := logging.New(logging.Options{Level: opts.logLevel, Console: cmd.ErrOrStderr()})
	if err != nil {
		log, _ = logging.New(logging.Options{Console: cmd.ErrOrStderr()})
	}
	return log.With().Str("cmd", cmd.Name()).Logger()
}
