package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"hpc-job-metrics/internal/api"
	"hpc-job-metrics/internal/chart"
	"hpc-job-metrics/internal/model"
)

type capstorOptions struct {
	out     string
	loadOut string
	archive bool
	summary bool
}

func newCapstorCmd(g *globalOptions) *cobra.Command {
	opts := &capstorOptions{}
	cmd := &cobra.Command{
		Use:   "capstor",
		Short: "Plot global filesystem bandwidth, IOPS and node load",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&opts.out, "out", "capstor.png", "bandwidth/IOPS chart file")
	cmd.Flags().StringVar(&opts.loadOut, "load-out", "capstor_load.png", "node load chart file, empty to skip")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "store the fetched series in the configured archive")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print per-series statistics")

	cmd.RunE = runWithSession(g, func(ctx context.Context, s *session) error {
		resp, err := s.client.CapstorGlobal(ctx, s.job, s.window)
		if err != nil {
			return err
		}
		s.log.Info().Str("job", s.job.String()).Int("samples", len(resp.Time)).Msg("capstor metrics fetched")

		frame := resp.Frame()
		c, err := capstorChart(s, frame)
		if err != nil {
			return err
		}
		if err := c.Save(opts.out); err != nil {
			return fmt.Errorf("save %s: %w", opts.out, err)
		}
		s.log.Info().Str("file", opts.out).Msg("chart written")

		if opts.loadOut != "" {
			if err := loadChart(s, resp.LoadFrame()).Save(opts.loadOut); err != nil {
				return fmt.Errorf("save %s: %w", opts.loadOut, err)
			}
			s.log.Info().Str("file", opts.loadOut).Msg("chart written")
		}
		if opts.summary {
			printSummary(cmd.OutOrStdout(), frame)
		}
		if opts.archive {
			return archive(s, resp.Points(s.job))
		}
		return nil
	})
	return cmd
}

// capstorChart plots bandwidth on the left axis and operation rates, dashed, on the right.
func capstorChart(s *session, f model.Frame) (*chart.Chart, error) {
	primary, err := chart.AxisFromFrame("bandwidth", f, api.ReadBandwidth, api.WriteBandwidth)
	if err != nil {
		return nil, err
	}
	secondary, err := chart.AxisFromFrame("ops", f, api.ReadIOPS, api.WriteIOPS, api.MetadataOps)
	if err != nil {
		return nil, err
	}
	return &chart.Chart{
		Title:     fmt.Sprintf("%s %s", api.PathCapstorGlobal, s.job),
		Time:      f.Time,
		Primary:   primary,
		Secondary: &secondary,
		Location:  s.cfg.Location(),
	}, nil
}

// loadChart plots the two highest loadavg buckets.
func loadChart(s *session, load model.Frame) *chart.Chart {
	high := model.Frame{Time: load.Time, Series: load.Series[api.LoadBuckets-2:]}
	return &chart.Chart{
		Title:    fmt.Sprintf("node load %s", s.job),
		Time:     load.Time,
		Primary:  chart.AxisFromSeries("nodes", high),
		Location: s.cfg.Location(),
	}
}
