package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/types"
)

func newMoistureCmd(opts *options) *cobra.Command {
	var wet, dried, absorption, dryWeight string
	cmd := &cobra.Command{
		Use:   "moisture",
		Short: "Free-moisture correction of one aggregate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sample := types.NormalizeMoistureSample(map[string]any{
				"wet_sample_g":        wet,
				"dried_sample_g":      dried,
				"absorption_pct":      absorption,
				"batch_dry_weight_kg": dryWeight,
			})
			c := qc.CorrectMoisture(sample)
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "moisture in sample  %.3f g\n", c.MoistureInSampleG)
			fmt.Fprintf(out, "moisture            %.3f %%\n", c.MoisturePct)
			fmt.Fprintf(out, "free moisture       %.3f %%\n", c.FreeMoisturePct)
			fmt.Fprintf(out, "free moisture       %.3f kg\n", c.FreeMoistureKg)
			fmt.Fprintf(out, "adjusted weight     %.3f kg\n", c.AdjustedWeightKg)
			fmt.Fprintf(out, "adopted weight      %g kg\n", c.AdoptedWeightKg)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&wet, "wet", "", "wet sample weight in g")
	f.StringVar(&dried, "dried", "", "dried sample weight in g")
	f.StringVar(&absorption, "absorption", "", "absorption in percent")
	f.StringVar(&dryWeight, "dry-weight", "", "batch dry weight in kg")
	return cmd
}

func newSigmaCmd(opts *options) *cobra.Command {
	var theoretical float64
	cmd := &cobra.Command{
		Use:   "sigma [flags] value...",
		Short: "Control-chart sigma profile of sample values",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := qc.Classify(numbers(args), theoretical)
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), p)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "n=%d mean=%.3f sd=%.3f cv=%.3f%%\n", p.Count, p.Mean, p.StdDev, p.CV)
			fmt.Fprintf(out, "theoretical=%g deviation=%.3f%%\n", p.TheoreticalMean, p.DeviationFromTheoretical)
			fmt.Fprintf(out, "normal        %5.1f%% (%d)\n", p.Zones.Normal, p.ZoneCounts.Normal)
			fmt.Fprintf(out, "warning       %5.1f%% (%d)\n", p.Zones.Warning, p.ZoneCounts.Warning)
			fmt.Fprintf(out, "action        %5.1f%% (%d)\n", p.Zones.Action, p.ZoneCounts.Action)
			fmt.Fprintf(out, "out of control %4.1f%% (%d)\n", p.Zones.OutOfControl, p.ZoneCounts.OutOfControl)
			return nil
		},
	}
	cmd.Flags().Float64Var(&theoretical, "theoretical", qc.DefaultTheoreticalLoad, "theoretical mean")
	return cmd
}

func newStrengthCmd(opts *options) *cobra.Command {
	var grade string
	cmd := &cobra.Command{
		Use:   "strength --grade M-55 strength...",
		Short: "Pass/fail verdict of one cube set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := qc.EvaluateStrength(types.Grade(grade), numbers(args))
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s threshold >%g  avg=%.2f min=%.2f  %s\n",
				v.Grade, v.Threshold, v.Average, v.Min, verdict(v.Pass))
			for _, i := range v.Failing {
				fmt.Fprintf(out, "  cube %d: %s\n", i+1, args[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&grade, "grade", "", "concrete grade, e.g. M-55 or M-60")
	cmd.MarkFlagRequired("grade") //nolint:errcheck
	return cmd
}
