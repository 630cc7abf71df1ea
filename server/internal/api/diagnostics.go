package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sleeperqc/sleeperqc/pkg/qc"
	"github.com/sleeperqc/sleeperqc/pkg/report"
)

// DiagnosticHint is one human-readable finding about a shift. The UI shows
// these as chips on the shift card; clicking one shows Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// capabilityFloor is the Cpk below which vibrator RPM is reported as not
// capable.
const capabilityFloor = 1.33

// computeDiagnostics derives diagnostic hints from a shift report.
// Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(r report.ShiftReport) []DiagnosticHint {
	s := r.Summary
	if s.Batches == 0 && s.TensionSamples == 0 && s.RPMSamples == 0 &&
		r.Curing.TotalRecords == 0 && len(r.Strength) == 0 && r.Moisture == nil {
		return []DiagnosticHint{{
			Key:   "empty",
			Level: "info",
			Title: "No data yet",
			Detail: "Nothing has been declared or recorded for this shift. " +
				"Declare the batch classes first, then records from SCADA or manual entry will show up here.",
		}}
	}

	var hints []DiagnosticHint

	// Proportion
	var notOK []string
	for _, b := range r.Batches {
		if b.Status != "NOT_OK" {
			continue
		}
		ings := make([]string, 0, len(b.Mismatched))
		for _, ing := range b.Mismatched {
			ings = append(ings, string(ing))
		}
		notOK = append(notOK, fmt.Sprintf("%s (%s)", b.BatchNo, strings.Join(ings, ", ")))
	}
	if len(notOK) > 0 {
		v := float64(len(notOK))
		hints = append(hints, DiagnosticHint{
			Key:   "proportion_not_ok",
			Level: "critical",
			Title: fmt.Sprintf("%d batch(es) off proportion", len(notOK)),
			Detail: "The set values do not match the approved mix proportion within 1% for: " +
				strings.Join(notOK, "; ") + ". Correct the plant set values before casting.",
			Value: &v,
		})
	}

	// Ingredient outliers
	if s.IngredientOutliers > 0 {
		v := float64(s.IngredientOutliers)
		hints = append(hints, DiagnosticHint{
			Key:   "ingredient_outliers",
			Level: "warning",
			Title: fmt.Sprintf("%d weighment outlier(s)", s.IngredientOutliers),
			Detail: fmt.Sprintf(
				"%d actual weighments deviate from their set value by more than %.0f%%. "+
					"Check the batching scale calibration and the moisture correction for the affected batches.",
				s.IngredientOutliers, qc.OutlierTolerancePct),
			Value: &v,
		})
	}

	// Tensioning
	if t := r.Tensioning; t.Count > 0 {
		if t.Zones.OutOfControl > 0 {
			v := t.Zones.OutOfControl
			hints = append(hints, DiagnosticHint{
				Key:   "tension_out_of_control",
				Level: "critical",
				Title: "Tension out of control",
				Detail: fmt.Sprintf(
					"%.1f%% of final loads lie beyond 3 sigma of the shift mean %.1f kN. "+
						"Inspect the jack and pressure gauge on the affected lines.",
					t.Zones.OutOfControl, t.Mean),
				Value: &v,
			})
		} else if t.Zones.Action > 0 {
			v := t.Zones.Action
			hints = append(hints, DiagnosticHint{
				Key:    "tension_action",
				Level:  "warning",
				Title:  "Tension in action zone",
				Detail: fmt.Sprintf("%.1f%% of final loads lie between 2 and 3 sigma of the mean.", t.Zones.Action),
				Value:  &v,
			})
		}
		if d := t.DeviationFromTheoretical; d > 2 || d < -2 {
			hints = append(hints, DiagnosticHint{
				Key:   "tension_offset",
				Level: "info",
				Title: "Mean load off target",
				Detail: fmt.Sprintf("Mean final load %.1f kN deviates %.2f%% from the theoretical %.0f kN.",
					t.Mean, d, t.TheoreticalMean),
				Value: &d,
			})
		}
	}

	// Compaction
	if c := r.Compaction.Capability; c.Count > 0 {
		if c.OutOfSpec > 0 {
			v := c.OutOfSpecPct
			hints = append(hints, DiagnosticHint{
				Key:   "rpm_out_of_spec",
				Level: "warning",
				Title: fmt.Sprintf("%d RPM reading(s) out of spec", c.OutOfSpec),
				Detail: fmt.Sprintf("Vibrator speed left the %.0f to %.0f RPM window on %d of %d readings.",
					c.Limits.LSL, c.Limits.USL, c.OutOfSpec, c.Count),
				Value: &v,
			})
		}
		if c.StdDev > 0 && c.Cpk < capabilityFloor {
			v := c.Cpk
			hints = append(hints, DiagnosticHint{
				Key:    "rpm_capability",
				Level:  "info",
				Title:  "Low RPM capability",
				Detail: fmt.Sprintf("Cpk is %.2f, below %.2f. The vibrators are drifting towards a spec limit.", c.Cpk, capabilityFloor),
				Value:  &v,
			})
		}
	}

	// Curing
	if s.CuringFailures > 0 {
		v := float64(s.CuringFailures)
		hints = append(hints, DiagnosticHint{
			Key:   "curing_failures",
			Level: "critical",
			Title: fmt.Sprintf("%d curing cycle(s) failed", s.CuringFailures),
			Detail: "Steam-curing cycles broke their phase bounds: " + curingViolations(r.Curing) +
				". Hold the affected sleepers until strength results are in.",
			Value: &v,
		})
	}

	// Strength
	if s.StrengthFailures > 0 {
		var sets []string
		for _, sv := range r.Strength {
			if !sv.Pass {
				sets = append(sets, fmt.Sprintf("%s %s", sv.BatchNo, sv.Grade))
			}
		}
		v := float64(s.StrengthFailures)
		hints = append(hints, DiagnosticHint{
			Key:   "strength_failures",
			Level: "critical",
			Title: fmt.Sprintf("%d cube set(s) failed", s.StrengthFailures),
			Detail: "Every cube must exceed its grade threshold; failing sets: " + strings.Join(sets, ", ") +
				". A passing average does not release the batch.",
			Value: &v,
		})
	}

	// Moisture
	if m := r.Moisture; m != nil && m.AdjustedWaterKg < 0 {
		v := m.AdjustedWaterKg
		hints = append(hints, DiagnosticHint{
			Key:   "negative_water",
			Level: "critical",
			Title: "Negative adjusted water",
			Detail: fmt.Sprintf("Free moisture in the aggregates (%.1f kg) exceeds the dry water dose. "+
				"Re-sample the aggregates before batching.", m.TotalFreeMoistureKg),
			Value: &v,
		})
	}

	if len(hints) == 0 {
		return []DiagnosticHint{{
			Key:    "compliant",
			Level:  "ok",
			Title:  "All clear",
			Detail: "Every check on this shift is within its limits.",
		}}
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

// curingViolations lists each failed cycle with its violated phases.
func curingViolations(pr qc.PhaseReport) string {
	var parts []string
	for _, v := range pr.Verdicts {
		if v.OK {
			continue
		}
		phases := make([]string, 0, len(v.Violations))
		for _, p := range v.Violations {
			phases = append(phases, string(p))
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", v.BatchNo, strings.Join(phases, ", ")))
	}
	return strings.Join(parts, "; ")
}

func levelRank(level string) int {
	switch level {
	case "critical":
		return 0
	case "warning":
		return 1
	case "info":
		return 2
	default:
		return 3
	}
}
