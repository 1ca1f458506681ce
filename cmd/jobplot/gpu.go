package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"hpc-job-metrics/internal/chart"
)

type gpuOptions struct {
	node    string
	out     string
	archive bool
	summary bool
}

func newGPUCmd(g *globalOptions) *cobra.Command {
	opts := &gpuOptions{}
	cmd := &cobra.Command{
		Use:   "gpu",
		Short: "Plot the GPU temperatures of one node",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&opts.node, "node", "", "node id, defaults to the first node of the job")
	cmd.Flags().StringVar(&opts.out, "out", "gpu_temperature.png", "chart file")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "store the fetched series in the configured archive")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print per-series statistics")

	cmd.RunE = runWithSession(g, func(ctx context.Context, s *session) error {
		resp, err := s.client.GPUTemperature(ctx, s.job, opts.node, s.window)
		if err != nil {
			return err
		}
		node := opts.node
		if node == "" {
			var ok bool
			if node, ok = resp.DefaultNode(); !ok {
				return fmt.Errorf("job %s reported no nodes", s.job)
			}
		}
		frame, err := resp.Frame(node)
		if err != nil {
			return err
		}
		s.log.Info().Str("job", s.job.String()).Str("node", node).Int("gpus", len(frame.Series)).
			Int("nodes", len(resp.Nodes)).Msg("gpu temperatures fetched")

		c := &chart.Chart{
			Title:    fmt.Sprintf("GPU temperature %s %s", s.job, node),
			Time:     frame.Time,
			Primary:  chart.AxisFromSeries("temperature", frame),
			Location: s.cfg.Location(),
		}
		if err := c.Save(opts.out); err != nil {
			return fmt.Errorf("save %s: %w", opts.out, err)
		}
		s.log.Info().Str("file", opts.out).Msg("chart written")

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
