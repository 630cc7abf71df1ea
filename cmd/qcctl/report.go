package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/report"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

func newReportCmd(opts *options) *cobra.Command {
	var (
		file        string
		theoretical float64
	)
	cmd := &cobra.Command{
		Use:   "report -f shift.yaml",
		Short: "Compute the full quality report of a shift snapshot",
		Long: `Reads a shift snapshot (declarations, records, curing cycles, cube sets and
the moisture sheet) from YAML and prints every verdict the server would show.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shift, err := loadShift(file)
			if err != nil {
				return err
			}
			rep := report.Build(shift, report.Options{TheoreticalLoad: theoretical})
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "shift snapshot YAML file")
	cmd.Flags().Float64Var(&theoretical, "theoretical", qc.DefaultTheoreticalLoad, "theoretical final tensioning load in kN")
	cmd.MarkFlagRequired("file") //nolint:errcheck
	return cmd
}

// loadShift reads a shift snapshot. The file name stands in for a missing id.
func loadShift(path string) (types.Shift, error) {
	var shift types.Shift
	data, err := os.ReadFile(path)
	if err != nil {
		return shift, fmt.Errorf("read shift file: %w", err)
	}
	if err := yaml.Unmarshal(data, &shift); err != nil {
		return shift, fmt.Errorf("parse shift file %s: %w", path, err)
	}
	if shift.ID == "" {
		shift.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return shift, nil
}

func printReport(out io.Writer, r report.ShiftReport) {
	fmt.Fprintf(out, "%s\n\n", heading("Shift "+r.ContainerID))

	fmt.Fprintln(out, heading("Batches"))
	if len(r.Batches) == 0 {
		fmt.Fprintln(out, "  none declared")
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, b := range r.Batches {
		line := fmt.Sprintf("  %s\t%s\trecords=%d\toutliers=%d", b.BatchNo, verdict(b.Status == types.ProportionOK), b.Records, b.Outliers)
		if len(b.Mismatched) > 0 {
			names := make([]string, len(b.Mismatched))
			for i, ing := range b.Mismatched {
				names[i] = string(ing)
			}
			line += "\tmismatched=" + strings.Join(names, ",")
		}
		fmt.Fprintln(w, line)
	}
	w.Flush() //nolint:errcheck

	t := r.Tensioning
	fmt.Fprintf(out, "\n%s (theoretical %g kN)\n", heading("Tensioning"), t.TheoreticalMean)
	fmt.Fprintf(out, "  n=%d mean=%.2f sd=%.3f cv=%.3f%% deviation=%.3f%%\n",
		t.Count, t.Mean, t.StdDev, t.CV, t.DeviationFromTheoretical)
	fmt.Fprintf(out, "  zones: normal %.1f%%  warning %.1f%%  action %.1f%%  out of control %.1f%%\n",
		t.Zones.Normal, t.Zones.Warning, t.Zones.Action, t.Zones.OutOfControl)

	c := r.Compaction.Capability
	fmt.Fprintf(out, "\n%s (spec %g..%g rpm)\n", heading("Compaction"), c.Limits.LSL, c.Limits.USL)
	fmt.Fprintf(out, "  n=%d within=%d out=%d %s cp=%.2f cpk=%.2f\n",
		c.Count, c.WithinSpec, c.OutOfSpec, verdict(c.OutOfSpec == 0), c.Cp, c.Cpk)

	fmt.Fprintf(out, "\n%s\n", heading("Curing"))
	fmt.Fprintf(out, "  cycles=%d failures=%d\n", r.Curing.TotalRecords, r.Curing.TotalOutliers)
	for _, v := range r.Curing.Verdicts {
		if v.OK {
			continue
		}
		phases := make([]string, len(v.Violations))
		for i, p := range v.Violations {
			phases[i] = string(p)
		}
		fmt.Fprintf(out, "  %s %s %s\n", v.BatchNo, verdict(false), strings.Join(phases, ","))
	}

	fmt.Fprintf(out, "\n%s\n", heading("Strength"))
	for _, v := range r.Strength {
		fmt.Fprintf(out, "  %s %s avg=%.2f min=%.2f threshold=%g %s\n",
			v.BatchNo, v.Grade, v.Average, v.Min, v.Threshold, verdict(v.Pass))
	}

	if m := r.Moisture; m != nil {
		fmt.Fprintf(out, "\n%s\n", heading("Moisture"))
		for _, agg := range types.Aggregates {
			a := m.Aggregates[agg]
			fmt.Fprintf(out, "  %s free=%.3f%% adopted=%g kg\n", agg, a.FreeMoisturePct, a.AdoptedWeightKg)
		}
		fmt.Fprintf(out, "  water=%.2f kg w/c=%.3f a/c=%.3f\n", m.AdjustedWaterKg, m.WaterCementRatio, m.AggregateCementRatio)
	}
}
