package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type readoutOptions struct {
	at string
	y  float64
}

func newReadoutCmd(g *globalOptions) *cobra.Command {
	opts := &readoutOptions{}
	cmd := &cobra.Command{
		Use:   "readout",
		Short: "Print the bandwidth matching an ops value on the capstor chart",
		Long: `
readout lays out the capstor chart and reports, for a cursor at --at on the
right hand (ops) axis, the value the left hand (bandwidth) axis shows at the
same height.
`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVar(&opts.at, "at", "", "time of day, HH:MM or HH:MM:SS, on the day of the first sample")
	cmd.Flags().Float64Var(&opts.y, "y", 0, "value on the ops axis")
	_ = cmd.MarkFlagRequired("at")

	cmd.RunE = runWithSession(g, func(ctx context.Context, s *session) error {
		resp, err := s.client.CapstorGlobal(ctx, s.job, s.window)
		if err != nil {
			return err
		}
		frame := resp.Frame()
		if frame.Len() == 0 {
			return fmt.Errorf("job %s has no samples", s.job)
		}
		at, err := parseTimeOfDay(opts.at, frame.Time[0].In(s.cfg.Location()))
		if err != nil {
			return err
		}
		c, err := capstorChart(s, frame)
		if err != nil {
			return err
		}
		tw, err := c.Twin()
		if err != nil {
			return err
		}
		x := float64(at.Unix())
		s.log.Debug().Time("at", at).Float64("y", opts.y).Msg("readout")
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tw.Format(x, opts.y))
		return err
	})
	return cmd
}

// parseTimeOfDay places a clock time on the day of ref, in ref's location.
func parseTimeOfDay(s string, ref time.Time) (time.Time, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := ref.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, ref.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("--at %q: want HH:MM or HH:MM:SS", s)
}
