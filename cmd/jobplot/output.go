package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"hpc-job-metrics/internal/api"
	"hpc-job-metrics/internal/model"
	"hpc-job-metrics/internal/storage"
)

func printSummary(w io.Writer, f model.Frame) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIES\tSAMPLES\tMIN\tMEAN\tMAX")
	for _, st := range f.Summary() {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", st.Label, st.Count,
			formatValue(st.Min, st.Unit), formatValue(st.Mean, st.Unit), formatValue(st.Max, st.Unit))
	}
	_ = tw.Flush()
}

func formatValue(v float64, unit string) string {
	switch unit {
	case api.UnitBandwidth:
		if v < 0 || math.IsNaN(v) {
			return humanize.Commaf(v)
		}
		return humanize.Bytes(uint64(v)) + "/s"
	case api.UnitTemperature:
		return fmt.Sprintf("%.1f%s", v, unit)
	}
	return humanize.CommafWithDigits(v, 1)
}

func archive(s *session, points []model.Point) error {
	store, err := storage.Open(s.cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()
	if storage.Kind(store) == "memory" {
		s.log.Warn().Msg("no archive configured, points are kept in memory only")
	}
	if err := store.SavePoints(points); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	s.log.Info().Str("store", storage.Kind(store)).Int("points", len(points)).Msg("series archived")
	return nil
}
